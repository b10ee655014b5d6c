package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RyanVerWey/Tech-Talk/auth"
	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/handlers"
	"github.com/RyanVerWey/Tech-Talk/identity"
	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"github.com/RyanVerWey/Tech-Talk/middleware"
	"github.com/RyanVerWey/Tech-Talk/repositories"
	"github.com/RyanVerWey/Tech-Talk/repositories/postgres"
	"github.com/RyanVerWey/Tech-Talk/services/accounts"
	"github.com/RyanVerWey/Tech-Talk/services/audit"
	"github.com/RyanVerWey/Tech-Talk/services/ratelimit"
	"github.com/RyanVerWey/Tech-Talk/services/tokens"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger
	Redis  *redis.Client

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users         repositories.UserRepository
	RefreshTokens repositories.RefreshTokenRepository
	AuthEvents    repositories.AuthEventRepository
	TxManager     repositories.TransactionManager

	// Services
	Tokens   *tokens.Service
	Accounts *accounts.Service
	Audit    *audit.Service // nil when auditing is disabled
	Limiter  *ratelimit.Limiter
	Cleanup  *tokens.CleanupWorker
	Identity *identity.Provider

	// HTTP
	AuthHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	AuthRateLimit  *middleware.RateLimiter
	Health         *handlers.HealthHandler
	Profiles       *handlers.ProfileHandler
	MetricsHandler http.Handler // nil when metrics are disabled

	pruner     tokens.AttemptPruner
	stopWorker context.CancelFunc
	workerDone chan struct{}
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires everything over an already opened database
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if cfg.Database.AutoMigrate {
		if err := factory.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	deps.initRepositories()

	if err := deps.initRateLimit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initHTTP(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize http layer: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.RefreshTokens = repos.RefreshTokens
	d.AuthEvents = repos.AuthEvents
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initRateLimit selects the attempt store backing the auth limiter
func (d *Dependencies) initRateLimit(ctx context.Context, cfg *config.Config) error {
	var store ratelimit.AttemptStore

	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.Redis = client
		store = ratelimit.NewRedisStore(client, cfg.Redis.Prefix)

	case config.StorePostgres:
		pgStore := ratelimit.NewPostgresStore(d.DB.DB, d.Logger)
		d.pruner = pgStore
		store = pgStore

	default:
		store = ratelimit.NewMemoryStore(cfg.RateLimit.Window)
	}

	d.Limiter = ratelimit.NewLimiter(store, cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window, d.Logger)
	d.Logger.Info("rate limiter initialized",
		zap.String("store", cfg.RateLimit.Store),
		zap.Int("max_attempts", cfg.RateLimit.MaxAttempts),
		zap.Duration("window", cfg.RateLimit.Window))
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	secret := cfg.JWT.Secret
	if secret == "" {
		generated, err := randomSecret()
		if err != nil {
			return err
		}
		secret = generated
		d.Logger.Warn("JWT_SECRET not set, using a random secret; sessions will not survive a restart")
	}

	d.Tokens = tokens.NewService(tokens.Config{
		Secret:     secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	}, d.RefreshTokens, d.Users, d.Logger)

	d.Accounts = accounts.NewService(d.Users, d.TxManager, d.Logger)

	if cfg.Audit.Enabled {
		d.Audit = audit.NewService(d.AuthEvents, d.Logger, audit.Config{
			BufferSize:  cfg.Audit.BufferSize,
			WorkerCount: cfg.Audit.WorkerCount,
		})
	}

	d.Cleanup = tokens.NewCleanupWorker(d.Tokens, d.pruner, cfg.RateLimit.Window, cfg.Cleanup.Interval, d.Logger)

	verifier := identity.NewVerifier(identity.VerifierConfig{
		ClientID:    cfg.Google.ClientID,
		JWKSURL:     cfg.Google.JWKSURL,
		CacheTTL:    time.Hour,
		HTTPTimeout: cfg.Google.HTTPTimeout,
	})
	d.Identity = identity.NewProvider(identity.ProviderConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.CallbackURL,
		AuthURL:      cfg.Google.AuthURL,
		TokenURL:     cfg.Google.TokenURL,
		HTTPTimeout:  cfg.Google.HTTPTimeout,
	}, verifier)
	if !d.Identity.Configured() {
		d.Logger.Warn("google oauth not configured, login endpoints will fail")
	}

	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) error {
	errs := handlers.NewErrorWriter(d.Logger, !cfg.IsProduction())

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.Logger)
	d.AuthRateLimit = middleware.NewRateLimiter(d.Limiter, "auth", d.Logger)
	d.AuthHandler = auth.NewHandler(cfg, d.Identity, d.Accounts, d.Tokens, d.Audit, d.Logger)
	d.Health = handlers.NewHealthHandler(d.DB.DB, cfg, d.Logger)

	var events handlers.EventLister = d.Audit
	d.Profiles = handlers.NewProfileHandler(d.Accounts, d.Tokens, events, errs, d.Logger)

	if cfg.Observability.MetricsEnabled {
		h, err := observability.Register(nil)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		d.MetricsHandler = h
	}
	return nil
}

// Start launches the background workers: the audit writers and, when
// enabled, the hourly session cleanup.
func (d *Dependencies) Start(ctx context.Context) error {
	if d.Audit != nil {
		if err := d.Audit.Start(); err != nil {
			return fmt.Errorf("failed to start audit service: %w", err)
		}
	}

	if d.Config.Cleanup.Enabled {
		workerCtx, cancel := context.WithCancel(ctx)
		d.stopWorker = cancel
		d.workerDone = make(chan struct{})
		go func() {
			defer close(d.workerDone)
			d.Cleanup.Run(workerCtx)
		}()
	}
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopWorker != nil {
		d.stopWorker()
		select {
		case <-d.workerDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("cleanup worker did not stop: %w", ctx.Err()))
		}
	}

	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil && !errors.Is(err, audit.ErrNotRunning) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
