package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/huntersguild/guild-backend/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*identity.ParsedClaims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.ParsedClaims), args.Error(1)
}

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	validClaims := &identity.ParsedClaims{
		Sub:   userID,
		Email: "hunter@example.com",
		Role:  "authenticated",
	}

	tests := []struct {
		name           string
		setupRequest   func(r *http.Request)
		setupValidator func(v *MockTokenValidator)
		wantStatus     int
		wantClaims     bool
	}{
		{
			name: "valid bearer token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer valid-token")
			},
			setupValidator: func(v *MockTokenValidator) {
				v.On("ValidateToken", mock.Anything, "valid-token").Return(validClaims, nil)
			},
			wantStatus: http.StatusOK,
			wantClaims: true,
		},
		{
			name: "session cookie fallback",
			setupRequest: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "cookie-token"})
			},
			setupValidator: func(v *MockTokenValidator) {
				v.On("ValidateToken", mock.Anything, "cookie-token").Return(validClaims, nil)
			},
			wantStatus: http.StatusOK,
			wantClaims: true,
		},
		{
			name: "header takes precedence over cookie",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
				r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "cookie-token"})
			},
			setupValidator: func(v *MockTokenValidator) {
				v.On("ValidateToken", mock.Anything, "header-token").Return(validClaims, nil)
			},
			wantStatus: http.StatusOK,
			wantClaims: true,
		},
		{
			name:           "missing token",
			setupRequest:   func(r *http.Request) {},
			setupValidator: func(v *MockTokenValidator) {},
			wantStatus:     http.StatusUnauthorized,
		},
		{
			name: "malformed authorization header",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "NotBearer token")
			},
			setupValidator: func(v *MockTokenValidator) {},
			wantStatus:     http.StatusUnauthorized,
		},
		{
			name: "invalid token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer bad-token")
			},
			setupValidator: func(v *MockTokenValidator) {
				v.On("ValidateToken", mock.Anything, "bad-token").
					Return(nil, identity.ErrInvalidToken)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired token",
			setupRequest: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer expired-token")
			},
			setupValidator: func(v *MockTokenValidator) {
				v.On("ValidateToken", mock.Anything, "expired-token").
					Return(nil, identity.ErrTokenExpired)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := new(MockTokenValidator)
			tt.setupValidator(validator)

			middleware := NewAuthMiddleware(validator, zap.NewNop())

			var gotClaims *identity.ParsedClaims
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotClaims = GetClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil)
			tt.setupRequest(req)
			rec := httptest.NewRecorder()

			middleware.RequireAuth(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantClaims {
				assert.Equal(t, validClaims, gotClaims)
			} else {
				assert.Nil(t, gotClaims)
			}
			validator.AssertExpectations(t)
		})
	}
}
