package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionValid(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var nilSess *Session
	assert.False(t, nilSess.Valid(now))

	sess := sampleSession(now.Add(time.Minute))
	assert.True(t, sess.Valid(now))
	assert.False(t, sess.Valid(now.Add(time.Minute)), "expiry instant itself is invalid")

	anonymous := sampleSession(now.Add(time.Minute))
	anonymous.UserID = ""
	assert.False(t, anonymous.Valid(now))
}

func TestSessionTimeToLive(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	var nilSess *Session
	assert.Zero(t, nilSess.TimeToLive(now))

	sess := sampleSession(now.Add(90 * time.Second))
	assert.Equal(t, 90*time.Second, sess.TimeToLive(now))
	assert.Zero(t, sess.TimeToLive(now.Add(time.Hour)), "never negative")
}

func TestSessionClone(t *testing.T) {
	var nilSess *Session
	assert.Nil(t, nilSess.Clone())

	sess := sampleSession(time.Now())
	clone := sess.Clone()
	clone.AccessToken = "changed"
	assert.Equal(t, "access-token", sess.AccessToken)
}
