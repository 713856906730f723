package identity

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys the application reads from or writes into user records.
const (
	// ProviderIDKey is the user metadata key carrying the external
	// provider identity id (populated by the backend on OAuth login).
	ProviderIDKey = "provider_id"

	// HunterNameKey is the user metadata key carrying the display name
	// attached at sign-up.
	HunterNameKey = "hunter_name"
)

// AuthEvent identifies a change in the backend-held authentication state.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthChange is delivered to OnAuthChange listeners. Session is nil when the
// session was invalidated.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// User is the identity record owned by the backend. Holders only ever see a
// read-only, possibly stale copy.
type User struct {
	ID           uuid.UUID      `json:"id"`
	Aud          string         `json:"aud"`
	Role         string         `json:"role"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ProviderID returns the external provider identity id from user metadata,
// or "" when none is present.
func (u *User) ProviderID() string {
	if u == nil || u.UserMetadata == nil {
		return ""
	}
	if v, ok := u.UserMetadata[ProviderIDKey].(string); ok {
		return v
	}
	return ""
}

// Session is the credential bundle issued by the identity backend.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired() bool {
	if s == nil || s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() >= s.ExpiresAt
}

// SignUpParams are the inputs to Client.SignUp.
type SignUpParams struct {
	Email    string
	Password string
	// Data is attached to the new user as user metadata.
	Data map[string]any
	// RedirectTo is where the confirmation email sends the user.
	RedirectTo string
}
