package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/civicportal/session-core/internal/models"
)

// ProfileRepository reads portal user records from the profile store.
type ProfileRepository interface {
	// FetchProfile returns ErrProfileNotFound if the principal has no profile yet.
	FetchProfile(ctx context.Context, principalID string) (*models.Profile, error)

	// RecordLogin stores the login time and the reduced login device on the profile.
	// It should return ErrProfileNotFound if the profile does not exist.
	RecordLogin(ctx context.Context, principalID string, at time.Time, device models.LoginDevice) error
}

// Common errors
var ErrProfileNotFound = fmt.Errorf("profile not found")
