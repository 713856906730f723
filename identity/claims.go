package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaimType is returned when a claim has an unexpected type
	ErrInvalidClaimType = errors.New("invalid claim type")
)

// Claims represents the claims carried by the backend's access tokens
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Phone        string         `json:"phone"`
	Role         string         `json:"role"`
	SessionID    string         `json:"session_id"`
	IsAnonymous  bool           `json:"is_anonymous"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	Sub          uuid.UUID
	Email        string
	Role         string
	SessionID    string
	UserMetadata map[string]any
	AppMetadata  map[string]any
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// ExtractClaims extracts and parses claims from a JWT token without validation.
// This is useful when you already have a validated token and just need the claims.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	// Parse without validation
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	_, _, err := parser.ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	return parseClaims(claims)
}

// ExtractClaimsFromValidatedToken extracts claims from an already validated jwt.Token
func ExtractClaimsFromValidatedToken(token *jwt.Token) (*ParsedClaims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return parseClaims(claims)
}

// parseClaims converts Claims to ParsedClaims with proper type conversions
func parseClaims(claims *Claims) (*ParsedClaims, error) {
	// Parse required Subject (user ID)
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub UUID: %w", err)
	}

	parsed := &ParsedClaims{
		Sub:          sub,
		Email:        claims.Email,
		Role:         claims.Role,
		SessionID:    claims.SessionID,
		UserMetadata: claims.UserMetadata,
		AppMetadata:  claims.AppMetadata,
	}

	// Set time fields if available
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}

// ToUser converts parsed claims into the read-only User mirror derived from
// an access token.
func (p *ParsedClaims) ToUser() *User {
	return &User{
		ID:           p.Sub,
		Role:         p.Role,
		Email:        p.Email,
		UserMetadata: p.UserMetadata,
		AppMetadata:  p.AppMetadata,
	}
}

// ProviderID returns the external provider identity id from the token's user
// metadata, or "" when none is present.
func (p *ParsedClaims) ProviderID() string {
	if p.UserMetadata == nil {
		return ""
	}
	if v, ok := p.UserMetadata[ProviderIDKey].(string); ok {
		return v
	}
	return ""
}
