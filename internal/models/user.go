package models

import "time"

// Principal is the authenticated identity reported by the identity authority.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Provider    string `json:"provider"`
}

// Role of a portal user. Roles are assigned by administrators, never by the client.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleWorker  Role = "worker"
	RoleAdmin   Role = "admin"
)

// LoginDevice is the reduced fingerprint recorded on the profile at login.
type LoginDevice struct {
	UserAgent string `json:"userAgent"`
	TimeZone  string `json:"timezone"`
}

// Profile is the portal user record held by the profile store.
type Profile struct {
	PrincipalID     string       `json:"principalId"`
	FullName        string       `json:"fullName"`
	Email           string       `json:"email"`
	Role            Role         `json:"role"`
	IsActive        bool         `json:"isActive"`
	CreatedAt       time.Time    `json:"createdAt"`
	LastLogin       *time.Time   `json:"lastLogin,omitempty"`
	LastLoginDevice *LoginDevice `json:"lastLoginDevice,omitempty"`
}

// DeviceFingerprint is a semi-stable signature of the client environment.
// Only UserAgent, Platform and TimeZone take part in the security comparison.
type DeviceFingerprint struct {
	UserAgent          string `json:"userAgent"`
	Platform           string `json:"platform"`
	TimeZone           string `json:"timezone"`
	ScreenResolution   string `json:"screenResolution"`
	LanguageTag        string `json:"language"`
	RenderingSignature string `json:"renderingSignature"`
}

// ActivityKind is a user input signal that counts as activity.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityKeyDown     ActivityKind = "keydown"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityClick       ActivityKind = "click"
)

// TrackedActivityKinds is the fixed set of signals the activity tracker subscribes to.
var TrackedActivityKinds = []ActivityKind{
	ActivityPointerDown,
	ActivityKeyDown,
	ActivityScroll,
	ActivityTouchStart,
	ActivityClick,
}

// ParseActivityKind validates a kind received from the UI layer.
func ParseActivityKind(s string) (ActivityKind, bool) {
	for _, k := range TrackedActivityKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
