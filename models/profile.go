package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-owned record extending an identity-backend user
// with app-specific fields. The row id equals the backend's user id.
type Profile struct {
	ID         uuid.UUID `json:"id" db:"id"`
	HunterName string    `json:"hunter_name" db:"hunter_name"`
	// DiscordID is the linked external-provider identity id. Empty until the
	// first OAuth login backfills it.
	DiscordID string    `json:"discord_id,omitempty" db:"discord_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// NewProfile creates a new Profile instance for a backend user id
func NewProfile(userID uuid.UUID, hunterName string) *Profile {
	now := time.Now()
	return &Profile{
		ID:         userID,
		HunterName: hunterName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// HasDiscordID returns true when a provider id has already been linked
func (p *Profile) HasDiscordID() bool {
	return p.DiscordID != ""
}
