package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sqltown/sqltown-server/cognito"
	"github.com/sqltown/sqltown-server/config"
	"github.com/sqltown/sqltown-server/handlers"
	"github.com/sqltown/sqltown-server/middleware"
	"github.com/sqltown/sqltown-server/repositories"
	"github.com/sqltown/sqltown-server/repositories/postgres"
	"github.com/sqltown/sqltown-server/services/usersync"
	"github.com/sqltown/sqltown-server/storage"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	TxManager repositories.TransactionManager

	// Services
	UserSync *usersync.Service
	Storage  *storage.S3Service

	// Auth
	Verifier       *cognito.Verifier
	AuthMiddleware *middleware.AuthMiddleware

	// Handlers
	AuthHandler   *handlers.AuthHandler
	UploadHandler *handlers.UploadHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initAuth(cfg)
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection, schema and repositories
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Users = factory.NewUserRepository()
	d.TxManager = factory.GetTransactionManager()

	return nil
}

// initServices initializes the user sync and storage services
func (d *Dependencies) initServices(cfg *config.Config) error {
	d.UserSync = usersync.NewService(d.Users, d.TxManager, d.Logger)

	s3Service, err := storage.NewS3Service(cfg.S3, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create S3 service: %w", err)
	}
	d.Storage = s3Service

	return nil
}

// initAuth initializes the token verifier and auth middleware
func (d *Dependencies) initAuth(cfg *config.Config) {
	d.Verifier = cognito.NewVerifier(cognito.Config{
		Region:      cfg.Cognito.Region,
		UserPoolID:  cfg.Cognito.UserPoolID,
		ClientID:    cfg.Cognito.ClientID,
		Issuer:      cfg.Cognito.Issuer,
		JWKSURL:     cfg.Cognito.JWKSURL,
		CacheTTL:    cfg.Cognito.CacheTTL,
		HTTPTimeout: cfg.Cognito.HTTPTimeout,
	})

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, d.UserSync, d.Logger)

	d.Logger.Info("token verification configured",
		zap.String("issuer", d.Verifier.Issuer()),
		zap.String("client_id", cfg.Cognito.ClientID))
}

// initHandlers initializes the HTTP handlers
func (d *Dependencies) initHandlers() {
	d.AuthHandler = handlers.NewAuthHandler(d.UserSync, d.Logger)
	d.UploadHandler = handlers.NewUploadHandler(d.Storage, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Logger)
}

// Close releases all held resources
func (d *Dependencies) Close() error {
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			return fmt.Errorf("failed to close repositories: %w", err)
		}
	}
	return nil
}
