package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/wallet"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *MockClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *MockClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

// memClient is a single-threaded Redis stand-in that honours SETNX.
type memClient struct {
	values map[string]string
}

func newMemClient() *memClient {
	return &memClient{values: map[string]string{}}
}

func (m *memClient) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.values[key] = encode(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memClient) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = encode(value)
	return redis.NewBoolResult(true, nil)
}

func encode(value interface{}) string {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value.(string)
}

func newTestCache(client Client) *WalletCache {
	return NewWalletCache(client, time.Minute, slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

func testWallet() *wallet.Wallet {
	return &wallet.Wallet{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Name:     "USD wallet",
		Currency: "USD",
		Status:   shared.WalletStatusActive,
		Balance:  decimal.RequireFromString("150.2500"),
	}
}

func TestWalletCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Hit", func(t *testing.T) {
		client := new(MockClient)
		w := testWallet()
		raw, err := json.Marshal(w)
		require.NoError(t, err)
		client.On("Get", ctx, "wallet:"+w.ID.String()).Return(redis.NewStringResult(string(raw), nil))

		cached, err := newTestCache(client).Get(ctx, w.ID)
		require.NoError(t, err)
		require.NotNil(t, cached)
		assert.Equal(t, w.ID, cached.ID)
		assert.True(t, w.Balance.Equal(cached.Balance))
		client.AssertExpectations(t)
	})

	t.Run("Miss", func(t *testing.T) {
		client := new(MockClient)
		id := uuid.New()
		client.On("Get", ctx, "wallet:"+id.String()).Return(redis.NewStringResult("", redis.Nil))

		cached, err := newTestCache(client).Get(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("Error", func(t *testing.T) {
		client := new(MockClient)
		id := uuid.New()
		client.On("Get", ctx, "wallet:"+id.String()).Return(redis.NewStringResult("", errors.New("i/o timeout")))

		cached, err := newTestCache(client).Get(ctx, id)
		assert.Error(t, err)
		assert.Nil(t, cached)
	})

	t.Run("Tombstone", func(t *testing.T) {
		client := new(MockClient)
		id := uuid.New()
		client.On("Get", ctx, "wallet:"+id.String()).Return(redis.NewStringResult(tombstone, nil))

		cached, err := newTestCache(client).Get(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, cached)
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		client := new(MockClient)
		id := uuid.New()
		client.On("Get", ctx, "wallet:"+id.String()).Return(redis.NewStringResult("{not json", nil))

		_, err := newTestCache(client).Get(ctx, id)
		assert.ErrorContains(t, err, "failed to decode cached wallet")
	})
}

func TestWalletCache_Set(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	w := testWallet()
	client.On("SetNX", ctx, "wallet:"+w.ID.String(), mock.AnythingOfType("[]uint8"), time.Minute).
		Return(redis.NewBoolResult(true, nil)).Once()
	client.On("SetNX", ctx, "wallet:"+w.ID.String(), mock.AnythingOfType("[]uint8"), time.Minute).
		Return(redis.NewBoolResult(false, nil)).Once()

	cache := newTestCache(client)
	require.NoError(t, cache.Set(ctx, w))
	require.NoError(t, cache.Set(ctx, w), "a held key is not an error")
	client.AssertExpectations(t)

	failing := new(MockClient)
	failing.On("SetNX", ctx, mock.Anything, mock.Anything, mock.Anything).Return(redis.NewBoolResult(false, errors.New("down")))
	assert.ErrorContains(t, newTestCache(failing).Set(ctx, w), "failed to cache wallet")
}

func TestWalletCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	a, b := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b} {
		client.On("Set", ctx, "wallet:"+id.String(), tombstone, tombstoneTTL).
			Return(redis.NewStatusResult("OK", nil)).Once()
	}

	cache := newTestCache(client)
	cache.Invalidate(ctx, a, b)
	cache.Invalidate(ctx)
	client.AssertExpectations(t)

	failing := new(MockClient)
	failing.On("Set", ctx, "wallet:"+a.String(), tombstone, tombstoneTTL).Return(redis.NewStatusResult("", errors.New("down")))
	assert.NotPanics(t, func() { newTestCache(failing).Invalidate(ctx, a) })
}

func TestWalletCache_EvictionBetweenReadAndSet(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(newMemClient())

	before := testWallet()
	cached, err := cache.Get(ctx, before.ID)
	require.NoError(t, err)
	require.Nil(t, cached)

	// a commit lands after the shard read but before the cache write
	cache.Invalidate(ctx, before.ID)
	require.NoError(t, cache.Set(ctx, before))

	cached, err = cache.Get(ctx, before.ID)
	require.NoError(t, err)
	assert.Nil(t, cached, "pre-commit balance must not be served")
}

func TestWalletCache_FillsEmptyKey(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(newMemClient())
	w := testWallet()

	require.NoError(t, cache.Set(ctx, w))
	cached, err := cache.Get(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, w.Balance.Equal(cached.Balance))
}
