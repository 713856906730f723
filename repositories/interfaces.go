package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/huntersguild/guild-backend/models"
)

// ErrProfileNotFound is returned when no profile row exists for a user id
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository defines the interface for profile data access
type ProfileRepository interface {
	// Create creates a new profile
	Create(ctx context.Context, profile *models.Profile) error

	// GetByUserID retrieves the profile for a backend user id.
	// Returns ErrProfileNotFound when no row exists.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// UpdateDiscordID sets the linked provider id on a profile
	UpdateDiscordID(ctx context.Context, userID uuid.UUID, discordID string) error

	// Update updates a profile's mutable fields
	Update(ctx context.Context, profile *models.Profile) error

	// Delete deletes a profile
	Delete(ctx context.Context, userID uuid.UUID) error
}
