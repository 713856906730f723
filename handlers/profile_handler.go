package handlers

import (
	"errors"
	"net/http"

	"github.com/huntersguild/guild-backend/middleware"
	"github.com/huntersguild/guild-backend/repositories"
	"github.com/huntersguild/guild-backend/utils"
	"go.uber.org/zap"
)

// ProfileHandler exposes profile reads for the authenticated user
type ProfileHandler struct {
	profiles repositories.ProfileRepository
	logger   *zap.Logger
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles repositories.ProfileRepository, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// HandleGetMe handles GET /api/v1/profiles/me
func (h *ProfileHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	profile, err := h.profiles.GetByUserID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, repositories.ErrProfileNotFound) {
			_ = utils.WriteNotFound(w, "Profile not found")
			return
		}
		h.logger.Error("profile fetch failed",
			zap.String("user_id", claims.Sub.String()),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, profile)
}
