package handlers

import (
	"net/http"

	"github.com/huntersguild/guild-backend/identity"
	"github.com/huntersguild/guild-backend/session"
	"github.com/huntersguild/guild-backend/utils"
	"go.uber.org/zap"
)

// AuthHandler exposes the session manager's actions over HTTP
type AuthHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *session.Manager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// signUpRequest is the body for POST /auth/signup
type signUpRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	HunterName string `json:"hunter_name"`
}

// signInRequest is the body for POST /auth/signin
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// resetRequest is the body for POST /auth/reset
type resetRequest struct {
	Email string `json:"email"`
}

// sessionResponse is the snapshot returned by GET /auth/session
type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Loading       bool           `json:"loading"`
	User          *identity.User `json:"user,omitempty"`
}

// HandleSignUp handles POST /auth/signup
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.sessions.SignUp(r.Context(), req.Email, req.Password, req.HunterName); err != nil {
		h.logger.Warn("sign-up failed", zap.String("email", req.Email), zap.Error(err))
		writeActionError(w, err)
		return
	}

	_ = utils.WriteOK(w, map[string]string{
		"message": "confirmation email sent",
	})
}

// HandleSignIn handles POST /auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.sessions.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.logger.Warn("sign-in failed", zap.String("email", req.Email), zap.Error(err))
		writeActionError(w, err)
		return
	}

	_ = utils.WriteOK(w, snapshotResponse(h.sessions.State()))
}

// HandleDiscord handles GET /auth/discord: redirects to the backend's OAuth
// authorize endpoint for the discord provider
func (h *AuthHandler) HandleDiscord(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := h.sessions.SignInWithDiscord(r.Context())
	if err != nil {
		h.logger.Error("discord sign-in failed", zap.Error(err))
		writeActionError(w, err)
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleReset handles POST /auth/reset
func (h *AuthHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), req.Email); err != nil {
		h.logger.Warn("password reset failed", zap.String("email", req.Email), zap.Error(err))
		writeActionError(w, err)
		return
	}

	_ = utils.WriteOK(w, map[string]string{
		"message": "password reset email sent",
	})
}

// HandleSignOut handles POST /auth/signout. The local state is always
// cleared, so this never fails.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(r.Context())
	utils.WriteNoContent(w)
}

// HandleSession handles GET /auth/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, snapshotResponse(h.sessions.State()))
}

// snapshotResponse converts a state snapshot into its wire form. Tokens stay
// server-side; only the user mirror and flags go out.
func snapshotResponse(state session.State) sessionResponse {
	return sessionResponse{
		Authenticated: state.Session != nil,
		Loading:       state.Loading,
		User:          state.User,
	}
}
