package app

import (
	"context"
	"fmt"

	"github.com/huntersguild/guild-backend/config"
	"github.com/huntersguild/guild-backend/identity"
	"github.com/huntersguild/guild-backend/middleware"
	"github.com/huntersguild/guild-backend/repositories"
	"github.com/huntersguild/guild-backend/repositories/postgres"
	"github.com/huntersguild/guild-backend/session"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection: the session
// manager is constructed exactly once here and handed to consumers
// explicitly.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories
	Profiles repositories.ProfileRepository

	// Identity backend
	Identity  *identity.Client
	Validator *identity.Validator

	// Session state
	Sessions *session.Manager

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	deps.Profiles = postgres.NewProfileRepository(deps.DB, logger)

	// Initialize the identity backend client and token validator
	deps.initIdentity(cfg)

	// Initialize the session manager: subscription is armed before the
	// initial session fetch inside Start
	deps.Sessions = session.NewManager(deps.Identity, deps.Profiles, cfg.Identity.SiteURL, logger)
	if err := deps.Sessions.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start session manager: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// Close releases held resources in reverse initialization order
func (d *Dependencies) Close() error {
	if d.Sessions != nil {
		d.Sessions.Close()
	}
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

// initDatabase initializes the PostgreSQL connection pool and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.DB = db
	return nil
}

// initIdentity initializes the identity backend client and token validator
func (d *Dependencies) initIdentity(cfg *config.Config) {
	if cfg.Identity.AuthURL == "" {
		d.Logger.Warn("identity backend not configured, auth calls will fail")
	}

	d.Identity = identity.NewClient(identity.Config{
		AuthURL: cfg.Identity.AuthURL,
		APIKey:  cfg.Identity.APIKey,
	}, d.Logger)

	d.Validator = identity.NewValidator(identity.ValidatorConfig{
		AuthURL:   cfg.Identity.AuthURL,
		JWTSecret: cfg.Identity.JWTSecret,
	})

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Validator, d.Logger)
}
