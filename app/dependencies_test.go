package app

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/repositories/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Version:     "test",
		Database:    config.DatabaseConfig{Host: "localhost", User: "dev", Database: "alumni", AutoMigrate: false},
		Google: config.GoogleConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			CallbackURL:  "http://localhost:3002/api/auth/google/callback",
			JWKSURL:      "http://127.0.0.1:0/certs",
			HTTPTimeout:  time.Second,
		},
		JWT: config.JWTConfig{
			Secret:          "0123456789abcdef0123456789abcdef",
			Issuer:          "test",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Client:    config.ClientConfig{URL: "http://localhost:5173"},
		RateLimit: config.RateLimitConfig{Store: config.StoreMemory, MaxAttempts: 5, Window: 15 * time.Minute},
		Cleanup:   config.CleanupConfig{Enabled: true, Interval: time.Hour},
		Audit:     config.AuditConfig{Enabled: true, BufferSize: 10, WorkerCount: 1},
	}
}

func newMockFactory(t *testing.T) (*postgres.RepositoryFactory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	return postgres.NewRepositoryFactoryFromDB(postgres.NewFromSQL(db, logger), logger), mock
}

func TestNewDependenciesWithFactory(t *testing.T) {
	t.Run("wires every component over the memory store", func(t *testing.T) {
		ctx := context.Background()
		factory, mock := newMockFactory(t)

		deps, err := NewDependenciesWithFactory(ctx, testConfig(t), factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		// Verify infrastructure
		assert.NotNil(t, deps.DB)
		assert.Nil(t, deps.Redis)

		// Verify repositories
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.RefreshTokens)
		assert.NotNil(t, deps.AuthEvents)
		assert.NotNil(t, deps.TxManager)

		// Verify services and http layer
		assert.NotNil(t, deps.Tokens)
		assert.NotNil(t, deps.Accounts)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Limiter)
		assert.NotNil(t, deps.Cleanup)
		assert.True(t, deps.Identity.Configured())
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.AuthRateLimit)
		assert.NotNil(t, deps.Health)
		assert.NotNil(t, deps.Profiles)
		assert.Nil(t, deps.MetricsHandler)
		assert.Nil(t, deps.pruner)

		assert.Equal(t, 5, deps.Limiter.Limit())
		assert.Equal(t, 15*time.Minute, deps.Tokens.AccessTTL())
		assert.Equal(t, 7*24*time.Hour, deps.Tokens.RefreshTTL())

		mock.ExpectClose()
		assert.NoError(t, deps.Close(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres store prunes through the cleanup worker", func(t *testing.T) {
		factory, mock := newMockFactory(t)
		cfg := testConfig(t)
		cfg.RateLimit.Store = config.StorePostgres

		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, deps.pruner)

		mock.ExpectClose()
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("redis store", func(t *testing.T) {
		mr := miniredis.RunT(t)
		factory, mock := newMockFactory(t)
		cfg := testConfig(t)
		cfg.RateLimit.Store = config.StoreRedis
		cfg.Redis = config.RedisConfig{Addr: mr.Addr(), Prefix: "test:rl:"}

		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.Redis)

		decision := deps.Limiter.Allow(context.Background(), "auth:10.0.0.1")
		assert.True(t, decision.Allowed)
		assert.NotEmpty(t, mr.Keys())

		mock.ExpectClose()
		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("unreachable redis fails", func(t *testing.T) {
		factory, _ := newMockFactory(t)
		cfg := testConfig(t)
		cfg.RateLimit.Store = config.StoreRedis
		cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize rate limiter")
	})

	t.Run("audit disabled and random dev secret", func(t *testing.T) {
		factory, mock := newMockFactory(t)
		cfg := testConfig(t)
		cfg.Audit.Enabled = false
		cfg.JWT.Secret = ""

		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, deps.Audit)
		assert.NotNil(t, deps.Tokens)

		mock.ExpectClose()
		assert.NoError(t, deps.Close(context.Background()))
	})
}

func TestDependencies_StartAndClose(t *testing.T) {
	ctx := context.Background()
	factory, mock := newMockFactory(t)

	deps, err := NewDependenciesWithFactory(ctx, testConfig(t), factory, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, deps.Start(ctx))
	assert.True(t, deps.Audit.GetStats().Started)

	mock.ExpectClose()
	assert.NoError(t, deps.Close(ctx))

	select {
	case <-deps.workerDone:
	default:
		t.Fatal("cleanup worker still running after Close")
	}
}

func TestNewDependencies_DatabaseFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1
	cfg.Database.SSLMode = "disable"

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}
