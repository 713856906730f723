package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/huntersguild/guild-backend/identity"
	"github.com/huntersguild/guild-backend/middleware"
	"github.com/huntersguild/guild-backend/models"
	"github.com/huntersguild/guild-backend/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// profileStore serves a single canned profile, or an error
type profileStore struct {
	stubProfiles
	profile *models.Profile
	err     error
}

func (s *profileStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.profile == nil || s.profile.ID != userID {
		return nil, repositories.ErrProfileNotFound
	}
	return s.profile, nil
}

func authedRequest(userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil)
	claims := &identity.ParsedClaims{Sub: userID, Email: "hunter@example.com"}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func TestHandleGetMe(t *testing.T) {
	t.Run("returns the caller's profile", func(t *testing.T) {
		userID := uuid.New()
		profile := models.NewProfile(userID, "Arya")
		profile.DiscordID = "123456789"
		handler := NewProfileHandler(&profileStore{profile: profile}, zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleGetMe(rec, authedRequest(userID))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data models.Profile `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, userID, resp.Data.ID)
		assert.Equal(t, "Arya", resp.Data.HunterName)
		assert.Equal(t, "123456789", resp.Data.DiscordID)
	})

	t.Run("missing claims", func(t *testing.T) {
		handler := NewProfileHandler(&profileStore{}, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil)
		rec := httptest.NewRecorder()
		handler.HandleGetMe(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("profile not found", func(t *testing.T) {
		handler := NewProfileHandler(&profileStore{}, zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleGetMe(rec, authedRequest(uuid.New()))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		handler := NewProfileHandler(&profileStore{err: errors.New("connection refused")}, zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleGetMe(rec, authedRequest(uuid.New()))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
