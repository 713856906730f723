package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// APIError is an error response from the identity backend.
type APIError struct {
	Status  int
	Code    string `json:"error_code"`
	Message string `json:"msg"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("identity backend error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("identity backend error (status %d)", e.Status)
}

// Config holds configuration for the identity backend client.
type Config struct {
	// AuthURL is the base URL of the backend's auth API.
	AuthURL string
	// APIKey is the publishable key sent with every request.
	APIKey string
	// HTTPTimeout bounds each request to the backend.
	HTTPTimeout time.Duration
}

// Client talks to the external identity backend's REST surface and holds a
// cached mirror of the session it issued. The backend is the sole source of
// truth: every state change here comes from one of its responses, and each
// change is announced synchronously to OnAuthChange listeners.
type Client struct {
	authURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	current      *Session
	listeners    map[int]func(AuthChange)
	nextListener int
}

// NewClient creates a new identity backend client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		authURL: strings.TrimSuffix(cfg.AuthURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		listeners: make(map[int]func(AuthChange)),
	}
}

// OnAuthChange registers a listener for authentication state changes. The
// listener runs synchronously, in the goroutine whose call changed the state.
// The returned func cancels the registration; calling it more than once is
// safe.
func (c *Client) OnAuthChange(handler func(AuthChange)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SignUp registers new credentials with the backend. The backend sends a
// confirmation email that redirects to params.RedirectTo; no session is
// issued until the address is confirmed.
func (c *Client) SignUp(ctx context.Context, params SignUpParams) (*User, error) {
	body := map[string]any{
		"email":    params.Email,
		"password": params.Password,
	}
	if params.Data != nil {
		body["data"] = params.Data
	}

	endpoint := c.authURL + "/signup"
	if params.RedirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(params.RedirectTo)
	}

	var user User
	if err := c.postJSON(ctx, endpoint, body, "", &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// SignInWithPassword verifies credentials with the backend and stores the
// issued session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var session Session
	if err := c.postJSON(ctx, c.authURL+"/token?grant_type=password", body, "", &session); err != nil {
		return nil, err
	}

	c.storeSession(&session, EventSignedIn)
	return &session, nil
}

// AuthorizeURL builds the URL that begins the OAuth handshake with the given
// provider. The backend redirects to redirectTo once the handshake completes.
func (c *Client) AuthorizeURL(provider, redirectTo string) string {
	params := url.Values{
		"provider": {provider},
	}
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return c.authURL + "/authorize?" + params.Encode()
}

// Recover requests a password-reset email. The reset link redirects to
// redirectTo.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{
		"email": email,
	}

	endpoint := c.authURL + "/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	return c.postJSON(ctx, endpoint, body, "", nil)
}

// RefreshSession exchanges the stored refresh token for a fresh session.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.current == nil || c.current.RefreshToken == "" {
		c.mu.Unlock()
		return nil, fmt.Errorf("no refresh token available")
	}
	refreshToken := c.current.RefreshToken
	c.mu.Unlock()

	body := map[string]any{
		"refresh_token": refreshToken,
	}

	var session Session
	if err := c.postJSON(ctx, c.authURL+"/token?grant_type=refresh_token", body, "", &session); err != nil {
		return nil, err
	}

	c.storeSession(&session, EventTokenRefreshed)
	return &session, nil
}

// CurrentSession returns the backend-issued session this client holds, or nil
// when signed out. An expired session with a refresh token is refreshed first.
func (c *Client) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	if current.Expired() && current.RefreshToken != "" {
		return c.RefreshSession(ctx)
	}

	return current, nil
}

// SignOut invalidates the session at the backend. The local mirror is cleared
// and SIGNED_OUT is dispatched regardless of the backend call's outcome.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var token string
	if c.current != nil {
		token = c.current.AccessToken
	}
	c.mu.Unlock()

	var err error
	if token != "" {
		err = c.postJSON(ctx, c.authURL+"/logout", nil, token, nil)
	}

	c.storeSession(nil, EventSignedOut)
	return err
}

// GetUser fetches the user record for an access token from the backend.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create user request: %w", err)
	}
	c.setHeaders(req, accessToken)

	var user User
	if err := c.doRequest(req, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// storeSession replaces the cached session and notifies listeners.
func (c *Client) storeSession(session *Session, event AuthEvent) {
	c.mu.Lock()
	c.current = session
	handlers := make([]func(AuthChange), 0, len(c.listeners))
	for _, h := range c.listeners {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	// Listeners run outside the lock so they may call back into the client.
	change := AuthChange{Event: event, Session: session}
	for _, h := range handlers {
		h(change)
	}
}

// postJSON posts a JSON body to the backend and decodes the response into out
// when out is non-nil.
func (c *Client) postJSON(ctx context.Context, endpoint string, body map[string]any, accessToken string, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, accessToken)

	return c.doRequest(req, out)
}

// doRequest executes a request and decodes the response
func (c *Client) doRequest(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity backend request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

// setHeaders sets the API key and optional bearer token on a request
func (c *Client) setHeaders(req *http.Request, accessToken string) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}
