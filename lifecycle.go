package authkit

// LifecycleEvent is a process foreground/background transition as reported
// by the host application.
type LifecycleEvent int

const (
	// Foregrounded means the app became active. The refresh scheduler
	// resumes and, if the session is close to expiry, refreshes at once.
	Foregrounded LifecycleEvent = iota
	// Backgrounded means the app left the foreground. No refresh attempts
	// are made while backgrounded.
	Backgrounded
)

func (e LifecycleEvent) String() string {
	if e == Backgrounded {
		return "backgrounded"
	}
	return "foregrounded"
}

// LifecycleMonitor feeds foreground/background transitions to the Client.
// The Client consumes Events from a single goroutine; a closed channel
// permanently stops lifecycle-driven scheduling.
type LifecycleMonitor interface {
	Events() <-chan LifecycleEvent
}

// NotifierMonitor is the plain LifecycleMonitor most hosts want: the app
// shell calls Foreground and Background from its own lifecycle hooks.
type NotifierMonitor struct {
	ch chan LifecycleEvent
}

// NewNotifierMonitor returns a monitor with a small buffer so bursts of
// transitions never block the host's UI thread.
func NewNotifierMonitor() *NotifierMonitor {
	return &NotifierMonitor{ch: make(chan LifecycleEvent, 8)}
}

// Events implements LifecycleMonitor.
func (m *NotifierMonitor) Events() <-chan LifecycleEvent { return m.ch }

// Foreground reports that the app became active.
func (m *NotifierMonitor) Foreground() { m.send(Foregrounded) }

// Background reports that the app left the foreground.
func (m *NotifierMonitor) Background() { m.send(Backgrounded) }

// Close stops the stream. The host must not report events after Close.
func (m *NotifierMonitor) Close() { close(m.ch) }

func (m *NotifierMonitor) send(ev LifecycleEvent) {
	select {
	case m.ch <- ev:
	default:
		// Buffer full: the consumer is behind by several transitions and
		// only the latest matters; dropping is safe because the scheduler
		// re-reads the current state on every event.
	}
}
