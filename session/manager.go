// Package session holds the application's mirror of the identity backend's
// authentication state. The backend owns credential verification, token
// issuance and the OAuth handshake; the Manager only tracks what the backend
// reports and backfills the linked provider id into the profile row on login.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/huntersguild/guild-backend/identity"
	"github.com/huntersguild/guild-backend/repositories"
	"github.com/huntersguild/guild-backend/utils"
	"go.uber.org/zap"
)

// OAuthProviderDiscord is the provider name passed to the backend's
// authorize endpoint.
const OAuthProviderDiscord = "discord"

// ErrAlreadyStarted is returned when Start is called twice
var ErrAlreadyStarted = errors.New("session manager already started")

// BackendClient is the surface of the identity backend client the Manager
// depends on.
type BackendClient interface {
	OnAuthChange(handler func(identity.AuthChange)) (unsubscribe func())
	CurrentSession(ctx context.Context) (*identity.Session, error)
	SignUp(ctx context.Context, params identity.SignUpParams) (*identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	AuthorizeURL(provider, redirectTo string) string
	Recover(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context) error
}

// State is a snapshot of the held authentication state. Session and User are
// nil when signed out; Loading is true until the first explicit session fetch
// has resolved.
type State struct {
	Session *identity.Session
	User    *identity.User
	Loading bool
}

// Manager mirrors the identity backend's session for the rest of the
// application. It is constructed once at startup and passed explicitly to
// consumers; observers registered with Subscribe are invoked synchronously
// after every state mutation.
type Manager struct {
	client   BackendClient
	profiles repositories.ProfileRepository
	logger   *zap.Logger

	signUpRedirect string
	resetRedirect  string

	mu          sync.Mutex
	session     *identity.Session
	user        *identity.User
	loading     bool
	subscribers map[int]func(State)
	nextSub     int

	started     bool
	unsubscribe func()
	closeOnce   sync.Once
}

// NewManager creates the session manager. A nil collaborator is a structural
// wiring mistake, not a runtime condition, so it fails loudly.
func NewManager(client BackendClient, profiles repositories.ProfileRepository, siteURL string, logger *zap.Logger) *Manager {
	if client == nil {
		panic("session: NewManager called with nil backend client")
	}
	if profiles == nil {
		panic("session: NewManager called with nil profile repository")
	}
	if logger == nil {
		panic("session: NewManager called with nil logger")
	}

	origin := strings.TrimSuffix(siteURL, "/")

	return &Manager{
		client:         client,
		profiles:       profiles,
		logger:         logger,
		signUpRedirect: origin + "/",
		resetRedirect:  origin + "/auth",
		loading:        true,
		subscribers:    make(map[int]func(State)),
	}
}

// Start arms the auth-change subscription and then issues the one explicit
// current-session fetch. The subscription is registered first so a change
// reported between the two is not missed; both paths write a complete
// replacement {session, user} pair, so interleavings resolve to the last
// write observed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	m.unsubscribe = m.client.OnAuthChange(func(change identity.AuthChange) {
		m.applySession(context.Background(), change.Session, false)
	})

	sess, err := m.client.CurrentSession(ctx)
	if err != nil {
		m.logger.Warn("initial session fetch failed", zap.Error(err))
		sess = nil
	}
	m.applySession(ctx, sess, true)

	return nil
}

// Close releases the auth-change subscription. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// Subscribe registers an observer invoked synchronously after each state
// mutation. The returned func cancels the registration.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

// State returns a snapshot of the held authentication state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Session: m.session, User: m.user, Loading: m.loading}
}

// CurrentUser returns the held user, or nil when signed out
func (m *Manager) CurrentUser() *identity.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// CurrentSession returns the held session, or nil when signed out
func (m *Manager) CurrentSession() *identity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Loading reports whether the first explicit session fetch is still pending
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// signUpInput is validated before the sign-up pass-through
type signUpInput struct {
	Email      string `validate:"required,email"`
	Password   string `validate:"required,min=6"`
	HunterName string `validate:"required,min=2,max=32"`
}

// resetInput is validated before the password-reset pass-through
type resetInput struct {
	Email string `validate:"required,email"`
}

// SignUp registers credentials with the backend, attaching the hunter name as
// user metadata. The confirmation email redirects to the application root.
func (m *Manager) SignUp(ctx context.Context, email, password, hunterName string) error {
	if err := utils.ValidateStruct(signUpInput{
		Email:      email,
		Password:   password,
		HunterName: hunterName,
	}); err != nil {
		return err
	}

	_, err := m.client.SignUp(ctx, identity.SignUpParams{
		Email:    email,
		Password: password,
		Data: map[string]any{
			identity.HunterNameKey: hunterName,
		},
		RedirectTo: m.signUpRedirect,
	})
	return err
}

// SignIn verifies credentials with the backend. The held state updates via
// the auth-change subscription once the backend reports the new session.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	_, err := m.client.SignInWithPassword(ctx, email, password)
	return err
}

// SignInWithDiscord begins the OAuth handshake with the discord provider and
// returns the URL the caller must redirect to. The handshake redirects back
// to the application root.
func (m *Manager) SignInWithDiscord(ctx context.Context) (string, error) {
	return m.client.AuthorizeURL(OAuthProviderDiscord, m.signUpRedirect), nil
}

// ResetPassword requests a password-reset email redirecting to the /auth
// route.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if err := utils.ValidateStruct(resetInput{Email: email}); err != nil {
		return err
	}
	return m.client.Recover(ctx, email, m.resetRedirect)
}

// SignOut invalidates the session at the backend and clears the held state.
// The local state is cleared regardless of the backend call's outcome.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.client.SignOut(ctx); err != nil {
		m.logger.Warn("backend sign-out failed", zap.Error(err))
	}

	m.applySession(ctx, nil, false)
}

// applySession stores a complete replacement {session, user} pair, notifies
// subscribers, and runs the profile sync when a user is present. markLoaded
// is set only by the initial explicit fetch; notifications never touch the
// loading flag.
func (m *Manager) applySession(ctx context.Context, sess *identity.Session, markLoaded bool) {
	var user *identity.User
	if sess != nil {
		user = sess.User
	}

	m.mu.Lock()
	m.session = sess
	m.user = user
	if markLoaded {
		m.loading = false
	}
	snapshot := State{Session: m.session, User: m.user, Loading: m.loading}
	subs := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}

	if user != nil {
		m.syncProfile(ctx, user)
	}
}

// syncProfile backfills the external provider identity id into the user's
// profile row. Best effort: failures are logged, never surfaced, and an
// already-linked id is never overwritten. The read-then-write pair is not
// transactionally guarded; two near-simultaneous logins can both observe an
// empty field and both write the same id, which is idempotent.
func (m *Manager) syncProfile(ctx context.Context, user *identity.User) {
	providerID := user.ProviderID()
	if providerID == "" {
		return
	}

	profile, err := m.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, repositories.ErrProfileNotFound) {
			m.logger.Warn("profile sync: fetch failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
		return
	}

	if profile.HasDiscordID() {
		return
	}

	if err := m.profiles.UpdateDiscordID(ctx, user.ID, providerID); err != nil {
		m.logger.Warn("profile sync: update failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		return
	}

	m.logger.Info("profile sync: linked provider id",
		zap.String("user_id", user.ID.String()))
}
