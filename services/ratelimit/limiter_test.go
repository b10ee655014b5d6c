package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Decision, error) {
	args := m.Called(ctx, key, now, window, limit)
	return args.Get(0).(Decision), args.Error(1)
}

func TestLimiter_Allow(t *testing.T) {
	t.Run("sixth attempt within fifteen minutes is rejected", func(t *testing.T) {
		now := base
		limiter := NewLimiter(NewMemoryStore(time.Hour), 5, 15*time.Minute, zap.NewNop()).
			WithClock(func() time.Time { return now })

		for i := 0; i < 5; i++ {
			assert.True(t, limiter.Allow(context.Background(), "ip").Allowed)
			now = now.Add(time.Minute)
		}

		d := limiter.Allow(context.Background(), "ip")
		assert.False(t, d.Allowed)
		assert.Equal(t, 600, d.RetryAfterSeconds())

		now = base.Add(15 * time.Minute)
		assert.True(t, limiter.Allow(context.Background(), "ip").Allowed)
	})

	t.Run("store failure fails open", func(t *testing.T) {
		store := new(MockAttemptStore)
		store.On("Hit", mock.Anything, "ip", mock.Anything, 15*time.Minute, 5).
			Return(Decision{}, errors.New("redis down"))

		limiter := NewLimiter(store, 5, 15*time.Minute, zap.NewNop())
		assert.True(t, limiter.Allow(context.Background(), "ip").Allowed)
		store.AssertExpectations(t)
	})

	t.Run("defaults", func(t *testing.T) {
		limiter := NewLimiter(NewMemoryStore(0), 0, 0, zap.NewNop())
		assert.Equal(t, DefaultLimit, limiter.Limit())
		assert.Equal(t, DefaultWindow, limiter.Window())
	})
}
