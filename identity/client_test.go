package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		AuthURL:     server.URL,
		APIKey:      "test-api-key",
		HTTPTimeout: 5 * time.Second,
	}, zap.NewNop())

	return client, server
}

func sessionJSON(userID uuid.UUID) map[string]any {
	return map[string]any{
		"access_token":  "test-access-token",
		"token_type":    "bearer",
		"expires_in":    3600,
		"expires_at":    time.Now().Add(time.Hour).Unix(),
		"refresh_token": "test-refresh-token",
		"user": map[string]any{
			"id":    userID.String(),
			"email": "hunter@example.com",
		},
	}
}

func TestSignUp(t *testing.T) {
	t.Run("sends credentials, metadata and redirect", func(t *testing.T) {
		userID := uuid.New()
		var gotPath, gotRedirect, gotAPIKey string
		var gotBody map[string]any

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotRedirect = r.URL.Query().Get("redirect_to")
			gotAPIKey = r.Header.Get("apikey")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    userID.String(),
				"email": "hunter@example.com",
			})
		}))

		user, err := client.SignUp(context.Background(), SignUpParams{
			Email:      "hunter@example.com",
			Password:   "needle123",
			Data:       map[string]any{HunterNameKey: "Arya"},
			RedirectTo: "https://guild.example.com/",
		})
		require.NoError(t, err)

		assert.Equal(t, "/signup", gotPath)
		assert.Equal(t, "https://guild.example.com/", gotRedirect)
		assert.Equal(t, "test-api-key", gotAPIKey)
		assert.Equal(t, "hunter@example.com", gotBody["email"])
		assert.Equal(t, "needle123", gotBody["password"])
		assert.Equal(t, map[string]any{HunterNameKey: "Arya"}, gotBody["data"])
		assert.Equal(t, userID, user.ID)
	})

	t.Run("backend error surfaces as APIError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error_code": "email_exists",
				"msg":        "email already registered",
			})
		}))

		_, err := client.SignUp(context.Background(), SignUpParams{
			Email:    "hunter@example.com",
			Password: "needle123",
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
		assert.Equal(t, "email_exists", apiErr.Code)
		assert.Contains(t, apiErr.Message, "already registered")
	})
}

func TestSignInWithPassword(t *testing.T) {
	userID := uuid.New()
	var gotPath, gotGrant string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotGrant = r.URL.Query().Get("grant_type")
		_ = json.NewEncoder(w).Encode(sessionJSON(userID))
	}))

	var changes []AuthChange
	client.OnAuthChange(func(c AuthChange) { changes = append(changes, c) })

	sess, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
	require.NoError(t, err)

	assert.Equal(t, "/token", gotPath)
	assert.Equal(t, "password", gotGrant)
	assert.Equal(t, "test-access-token", sess.AccessToken)
	require.NotNil(t, sess.User)
	assert.Equal(t, userID, sess.User.ID)

	// The stored session is announced and returned by CurrentSession
	require.Len(t, changes, 1)
	assert.Equal(t, EventSignedIn, changes[0].Event)
	assert.Same(t, sess, changes[0].Session)

	current, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, sess, current)
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient(Config{AuthURL: "https://auth.example.com/"}, zap.NewNop())

	url := client.AuthorizeURL("discord", "https://guild.example.com/")
	assert.Equal(t, "https://auth.example.com/authorize?provider=discord&redirect_to=https%3A%2F%2Fguild.example.com%2F", url)
}

func TestRecover(t *testing.T) {
	var gotPath, gotRedirect string
	var gotBody map[string]any

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRedirect = r.URL.Query().Get("redirect_to")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))

	err := client.Recover(context.Background(), "hunter@example.com", "https://guild.example.com/auth")
	require.NoError(t, err)

	assert.Equal(t, "/recover", gotPath)
	assert.Equal(t, "https://guild.example.com/auth", gotRedirect)
	assert.Equal(t, "hunter@example.com", gotBody["email"])
}

func TestRefreshSession(t *testing.T) {
	userID := uuid.New()
	var grants []string
	var gotRefreshToken string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grants = append(grants, r.URL.Query().Get("grant_type"))
		if r.URL.Query().Get("grant_type") == "refresh_token" {
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotRefreshToken, _ = body["refresh_token"].(string)
		}
		_ = json.NewEncoder(w).Encode(sessionJSON(userID))
	}))

	_, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
	require.NoError(t, err)

	var events []AuthEvent
	client.OnAuthChange(func(c AuthChange) { events = append(events, c.Event) })

	sess, err := client.RefreshSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, []string{"password", "refresh_token"}, grants)
	assert.Equal(t, "test-refresh-token", gotRefreshToken)
	assert.Equal(t, []AuthEvent{EventTokenRefreshed}, events)
}

func TestCurrentSession(t *testing.T) {
	t.Run("nil when signed out", func(t *testing.T) {
		client := NewClient(Config{AuthURL: "https://auth.example.com"}, zap.NewNop())

		sess, err := client.CurrentSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("expired session is refreshed", func(t *testing.T) {
		userID := uuid.New()
		var grants []string

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant := r.URL.Query().Get("grant_type")
			grants = append(grants, grant)
			payload := sessionJSON(userID)
			if grant == "password" {
				payload["expires_at"] = time.Now().Add(-time.Minute).Unix()
			}
			_ = json.NewEncoder(w).Encode(payload)
		}))

		_, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
		require.NoError(t, err)

		sess, err := client.CurrentSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.False(t, sess.Expired())
		assert.Equal(t, []string{"password", "refresh_token"}, grants)
	})
}

func TestSignOut(t *testing.T) {
	t.Run("revokes the token and clears the mirror", func(t *testing.T) {
		userID := uuid.New()
		var gotLogoutAuth string

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/logout" {
				gotLogoutAuth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			_ = json.NewEncoder(w).Encode(sessionJSON(userID))
		}))

		_, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
		require.NoError(t, err)

		var events []AuthEvent
		client.OnAuthChange(func(c AuthChange) { events = append(events, c.Event) })

		require.NoError(t, client.SignOut(context.Background()))

		assert.Equal(t, "Bearer test-access-token", gotLogoutAuth)
		assert.Equal(t, []AuthEvent{EventSignedOut}, events)

		sess, err := client.CurrentSession(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("clears the mirror even when revocation fails", func(t *testing.T) {
		userID := uuid.New()

		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/logout" {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"msg":"revocation failed"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(sessionJSON(userID))
		}))

		_, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
		require.NoError(t, err)

		var events []AuthEvent
		client.OnAuthChange(func(c AuthChange) { events = append(events, c.Event) })

		err = client.SignOut(context.Background())
		assert.Error(t, err)

		assert.Equal(t, []AuthEvent{EventSignedOut}, events)
		sess, fetchErr := client.CurrentSession(context.Background())
		require.NoError(t, fetchErr)
		assert.Nil(t, sess)
	})
}

func TestGetUser(t *testing.T) {
	userID := uuid.New()
	var gotAuth string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    userID.String(),
			"email": "hunter@example.com",
			"user_metadata": map[string]any{
				ProviderIDKey: "123456789",
			},
		})
	}))

	user, err := client.GetUser(context.Background(), "some-access-token")
	require.NoError(t, err)

	assert.Equal(t, "Bearer some-access-token", gotAuth)
	assert.Equal(t, userID, user.ID)
	assert.Equal(t, "123456789", user.ProviderID())
}

func TestOnAuthChange(t *testing.T) {
	userID := uuid.New()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sessionJSON(userID))
	}))

	var calls int
	unsubscribe := client.OnAuthChange(func(AuthChange) { calls++ })

	_, err := client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // safe to call twice

	_, err = client.SignInWithPassword(context.Background(), "hunter@example.com", "needle123")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
