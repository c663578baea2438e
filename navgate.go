package authkit

import "strings"

// Destination is a navigable surface of the host application.
type Destination int

const (
	DestLogin Destination = iota
	DestRegister
	DestOTP
	DestCreatePassword
	DestHome
	DestNotifications
	DestAccount
	DestSettings
	DestAboutUs
	DestContactUs
	DestHelpSupport
	DestAdminDashboard
)

var destinationNames = map[Destination]string{
	DestLogin:          "login",
	DestRegister:       "register",
	DestOTP:            "otp",
	DestCreatePassword: "create_password",
	DestHome:           "home",
	DestNotifications:  "notifications",
	DestAccount:        "account",
	DestSettings:       "settings",
	DestAboutUs:        "about_us",
	DestContactUs:      "contact_us",
	DestHelpSupport:    "help_support",
	DestAdminDashboard: "admin_dashboard",
}

func (d Destination) String() string {
	if name, ok := destinationNames[d]; ok {
		return name
	}
	return "unknown"
}

// DestinationSet is the set of destinations reachable in a given state.
type DestinationSet map[Destination]struct{}

// Contains reports membership.
func (s DestinationSet) Contains(d Destination) bool {
	_, ok := s[d]
	return ok
}

func (s DestinationSet) String() string {
	names := make([]string, 0, len(s))
	for d := range s {
		names = append(names, d.String())
	}
	// Set order is unspecified; sort for stable output.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return strings.Join(names, ",")
}

var (
	unauthenticatedDestinations = []Destination{
		DestLogin, DestRegister, DestOTP, DestCreatePassword,
	}
	memberDestinations = []Destination{
		DestHome, DestNotifications, DestAccount, DestSettings,
		DestAboutUs, DestContactUs, DestHelpSupport,
	}
)

// AllowedDestinations is the navigation gate: a pure mapping from a state
// snapshot to the reachable destination set, recomputed by the host on
// every state change.
//
// A refresh-failed session reaches only the login surface — any view
// already open may stay visible read-only, but that is the host's
// rendering concern, not the gate's. An authenticated-only destination is
// never reachable while signed out.
func AllowedDestinations(snap Snapshot) DestinationSet {
	out := make(DestinationSet)
	switch snap.State {
	case StateSignedOut, StateAuthenticating, StateChallengePending:
		for _, d := range unauthenticatedDestinations {
			out[d] = struct{}{}
		}
	case StateAuthenticated:
		for _, d := range memberDestinations {
			out[d] = struct{}{}
		}
		if snap.Role == RoleAdmin {
			out[DestAdminDashboard] = struct{}{}
		}
	case StateRefreshFailed:
		out[DestLogin] = struct{}{}
	}
	return out
}
