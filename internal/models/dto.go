package models

// ActivityRequest is posted by the UI layer for every observed input event.
type ActivityRequest struct {
	Kind string `json:"kind"`
}

// LocalLoginRequest signs a principal in with the local development authority.
type LocalLoginRequest struct {
	PrincipalID string `json:"principalId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// LocalLoginResponse carries the credential minted by the local authority.
type LocalLoginResponse struct {
	Token     string     `json:"token"`
	Principal *Principal `json:"principal"`
}

// LogoutResponse confirms an explicit logout.
type LogoutResponse struct {
	Message string `json:"message"`
}
