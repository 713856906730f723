package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huntersguild/guild-backend/models"
	"github.com/huntersguild/guild-backend/repositories"
	"go.uber.org/zap"
)

// ProfileRepository implements the repositories.ProfileRepository interface
type ProfileRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, logger *zap.Logger) repositories.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (id, hunter_name, discord_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.HunterName,
		profile.DiscordID,
		profile.CreatedAt,
		profile.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	r.logger.Debug("profile created",
		zap.String("id", profile.ID.String()),
		zap.String("hunter_name", profile.HunterName))
	return nil
}

// GetByUserID retrieves the profile for a backend user id
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, hunter_name, COALESCE(discord_id, ''), created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	profile := &models.Profile{}

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID,
		&profile.HunterName,
		&profile.DiscordID,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repositories.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// UpdateDiscordID sets the linked provider id on a profile
func (r *ProfileRepository) UpdateDiscordID(ctx context.Context, userID uuid.UUID, discordID string) error {
	query := `
		UPDATE profiles
		SET discord_id = $2,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, discordID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update discord id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrProfileNotFound
	}

	r.logger.Debug("profile discord id updated",
		zap.String("id", userID.String()))
	return nil
}

// Update updates a profile's mutable fields
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE profiles
		SET hunter_name = $2,
		    discord_id = NULLIF($3, ''),
		    updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.HunterName,
		profile.DiscordID,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrProfileNotFound
	}

	r.logger.Debug("profile updated", zap.String("id", profile.ID.String()))
	return nil
}

// Delete deletes a profile
func (r *ProfileRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM profiles WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrProfileNotFound
	}

	r.logger.Debug("profile deleted", zap.String("id", userID.String()))
	return nil
}
