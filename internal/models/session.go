package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Session timing constants.
const (
	InactivityTimeout  = 30 * time.Minute
	WarningLeadTime    = 5 * time.Minute
	ValidationInterval = 5 * time.Minute
	MaxSessionDuration = 24 * time.Hour
)

// Session store keys written by the lifecycle controller.
const (
	StoreKeyDeviceFingerprint = "deviceFingerprint"
	StoreKeyLoginTime         = "loginTime"
)

// SessionState is the observable state of the client session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateActive
	StateWarning
	StateExpired
	StateInvalid
	StateDeviceMismatch
	StateLoggedOut
)

// String returns the upper-case state name used in logs and in the API.
func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	case StateInvalid:
		return "INVALID"
	case StateDeviceMismatch:
		return "DEVICE_MISMATCH"
	case StateLoggedOut:
		return "LOGGED_OUT"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the state by name.
func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// IsLive reports whether a session is running (timers armed).
func (s SessionState) IsLive() bool {
	return s == StateActive || s == StateWarning
}

// IsTerminal reports whether the state is one of the session-ending states.
func (s SessionState) IsTerminal() bool {
	return s == StateExpired || s == StateInvalid || s == StateDeviceMismatch
}

// EndReason is why a session was torn down.
type EndReason string

const (
	ReasonTimeout        EndReason = "timeout"
	ReasonInvalid        EndReason = "invalid"
	ReasonDeviceMismatch EndReason = "device_mismatch"
	ReasonUserAction     EndReason = "user_action"
)

// State maps the reason onto the state entered before LOGGED_OUT.
func (r EndReason) State() SessionState {
	switch r {
	case ReasonTimeout:
		return StateExpired
	case ReasonInvalid:
		return StateInvalid
	case ReasonDeviceMismatch:
		return StateDeviceMismatch
	default:
		return StateLoggedOut
	}
}

// Notice is the plain message shown to the user when the session ends.
func (r EndReason) Notice() string {
	switch r {
	case ReasonTimeout:
		return "Your session has expired due to inactivity. Please log in again."
	case ReasonInvalid:
		return "Your session is no longer valid. Please log in again."
	case ReasonDeviceMismatch:
		return "Session detected from a different device. For security, you have been logged out."
	default:
		return "You have been logged out."
	}
}

// EventType names the events emitted towards the UI layer.
type EventType string

const (
	EventWarningRaised EventType = "warning_raised"
	EventSessionEnded  EventType = "session_ended"
)

// SessionEvent is emitted by the lifecycle controller.
type SessionEvent struct {
	Type             EventType `json:"type"`
	SecondsRemaining int       `json:"secondsRemaining,omitempty"`
	Reason           EndReason `json:"reason,omitempty"`
	Notice           string    `json:"notice,omitempty"`
	At               time.Time `json:"at"`
}

// StoreEntry is the envelope persisted for every session store key.
type StoreEntry struct {
	Value     json.RawMessage `json:"value"`
	WrittenAt int64           `json:"timestamp"` // unix milliseconds
}

// SessionSnapshot is the read model consumed by the UI layer.
type SessionSnapshot struct {
	State              SessionState `json:"state"`
	Principal          *Principal   `json:"principal,omitempty"`
	Profile            *Profile     `json:"profile,omitempty"`
	Enriched           bool         `json:"enriched"`
	SessionStart       time.Time    `json:"sessionStart,omitempty"`
	LastActivity       time.Time    `json:"lastActivity,omitempty"`
	SecondsUntilExpiry int          `json:"secondsUntilExpiry"`
	WarningCountdown   int          `json:"warningCountdown"`
}
