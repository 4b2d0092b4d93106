package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	values map[string]decimal.Decimal
	calls  int
}

func (s *countingStore) GetValue(ctx context.Context, key string) (decimal.Decimal, error) {
	s.calls++
	return s.values[key], nil
}

func newCacheFixture(t *testing.T) (*CachedStore, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{values: map[string]decimal.Decimal{
		KeyReferralPercent: decimal.NewFromInt(5),
		KeyVisitFee:        decimal.NewFromInt(150),
	}}
	return NewCachedStore(inner, client, time.Minute), inner, mr
}

func TestCachedStorePopulatesOnMiss(t *testing.T) {
	store, inner, _ := newCacheFixture(t)

	value, err := store.GetValue(context.Background(), KeyReferralPercent)
	require.NoError(t, err)
	require.Equal(t, "5.00", value.StringFixed(2))
	require.Equal(t, 1, inner.calls)

	// Second read is served from the cache.
	value, err = store.GetValue(context.Background(), KeyReferralPercent)
	require.NoError(t, err)
	require.Equal(t, "5.00", value.StringFixed(2))
	require.Equal(t, 1, inner.calls)
}

func TestCachedStoreExpires(t *testing.T) {
	store, inner, mr := newCacheFixture(t)

	_, err := store.GetValue(context.Background(), KeyVisitFee)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)

	mr.FastForward(2 * time.Minute)

	_, err = store.GetValue(context.Background(), KeyVisitFee)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestCachedStoreInvalidate(t *testing.T) {
	store, inner, _ := newCacheFixture(t)

	_, err := store.GetValue(context.Background(), KeyReferralPercent)
	require.NoError(t, err)

	inner.values[KeyReferralPercent] = decimal.NewFromInt(10)
	require.NoError(t, store.Invalidate(context.Background(), KeyReferralPercent))

	value, err := store.GetValue(context.Background(), KeyReferralPercent)
	require.NoError(t, err)
	require.Equal(t, "10.00", value.StringFixed(2))
	require.Equal(t, 2, inner.calls)
}

func TestCachedStoreWithoutClientDelegates(t *testing.T) {
	inner := &countingStore{values: map[string]decimal.Decimal{KeyMembershipPrice: decimal.NewFromInt(99)}}
	store := NewCachedStore(inner, nil, time.Minute)

	value, err := store.GetValue(context.Background(), KeyMembershipPrice)
	require.NoError(t, err)
	require.Equal(t, "99.00", value.StringFixed(2))
}
