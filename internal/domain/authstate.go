package domain

// AuthState tracks whether a connector may use its credentials.
//
// The state starts Unknown, becomes Enabled once credentials are present and
// first used, and becomes Disabled permanently after the upstream reports an
// authentication or permission failure.
type AuthState int

const (
	AuthUnknown AuthState = iota
	AuthEnabled
	AuthDisabled
)

func (s AuthState) String() string {
	switch s {
	case AuthEnabled:
		return "enabled"
	case AuthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Auth is the mutable authentication state owned by one connector instance.
type Auth struct {
	state AuthState
}

// State returns the current state.
func (a *Auth) State() AuthState { return a.state }

// Enable marks the credentials as usable. Once disabled, the state never
// transitions back.
func (a *Auth) Enable() {
	if a.state == AuthUnknown {
		a.state = AuthEnabled
	}
}

// Disable marks the credentials as unusable for the rest of the process
// lifetime.
func (a *Auth) Disable() { a.state = AuthDisabled }

// Usable reports whether authenticated calls may be attempted.
func (a *Auth) Usable() bool { return a.state == AuthEnabled }
