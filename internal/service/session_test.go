package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func TestSessionManager_SessionIsCreatedOnce(t *testing.T) {
	f := newSessionFixture(t)

	a := f.manager.Session("s1")
	b := f.manager.Session("s1")
	c := f.manager.Session("s2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, f.manager.Len())
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SessionsActive))
	assert.Equal(t, "guestCart:s1", GuestKey("s1"))
	assert.Equal(t, domain.Guest, a.Identity())
}

func TestCartSession_AddToCart(t *testing.T) {
	f := newSessionFixture(t)
	s := f.manager.Session("s1")
	flush(t, s)
	ctx := context.Background()

	st, err := s.AddToCart(ctx, "1", 2)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(90).Equal(st.Total))
	assert.Equal(t, 2, st.ItemCount)

	flush(t, s)
	items, ok, err := f.guests.Get(ctx, GuestKey("s1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, domain.ItemsEqual(st.Items, items))
}

func TestCartSession_AddToCart_Errors(t *testing.T) {
	f := newSessionFixture(t)
	s := f.manager.Session("s1")
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = s.AddToCart(ctx, "404", 1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.AddToCart(ctx, "3", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, s.State().Items)
}

func TestCartSession_UpdateQuantity(t *testing.T) {
	f := newSessionFixture(t)
	s := f.manager.Session("s1")
	flush(t, s)
	ctx := context.Background()

	_, err := s.UpdateQuantity(ctx, "1", 3)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = s.AddToCart(ctx, "1", 1)
	require.NoError(t, err)

	st, err := s.UpdateQuantity(ctx, "1", 999)
	require.NoError(t, err)
	li, ok := st.Find("1")
	require.True(t, ok)
	assert.Equal(t, 5, li.Quantity, "clamped to stock")

	st, err = s.UpdateQuantity(ctx, "1", -5)
	require.NoError(t, err)
	li, _ = st.Find("1")
	assert.Equal(t, 1, li.Quantity)
}

func TestCartSession_RemoveAndClear(t *testing.T) {
	f := newSessionFixture(t)
	s := f.manager.Session("s1")
	flush(t, s)
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "1", 1)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "2", 1)
	require.NoError(t, err)

	st := s.RemoveFromCart(ctx, "404")
	assert.Len(t, st.Items, 2, "removing an absent product is a no-op")

	st = s.RemoveFromCart(ctx, "1")
	assert.Len(t, st.Items, 1)

	st = s.ClearCart(ctx)
	assert.Empty(t, st.Items)
	assert.True(t, st.Total.IsZero())

	flush(t, s)
	items, ok, err := f.guests.Get(ctx, GuestKey("s1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, items)
}

func TestCartSession_LoginMergesAndLogoutRestoresGuest(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.users.Put("u1",
		`{"id":"u1","cart":[{"id":"1","name":"Product 1","price":45,"quantity":3,"stock":5}]}`))
	s := f.manager.Session("s1")
	flush(t, s)
	ctx := context.Background()

	_, err := s.AddToCart(ctx, "1", 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, "2", 1)
	require.NoError(t, err)
	flush(t, s)

	assert.True(t, s.Login("u1"))
	assert.False(t, s.Login("u1"), "same identity is not a transition")
	flush(t, s)

	st := s.State()
	li, ok := st.Find("1")
	require.True(t, ok)
	assert.Equal(t, 5, li.Quantity)
	assert.Equal(t, 6, st.ItemCount)

	_, ok, err = f.guests.Get(ctx, GuestKey("s1"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, s.Logout())
	flush(t, s)
	assert.Empty(t, s.State().Items)
	assert.Equal(t, domain.Guest, s.Identity())
}

func TestSessionManager_EvictIdle(t *testing.T) {
	f := newSessionFixture(t)
	clock := newFakeClock()
	f.manager.now = clock.Now
	ctx := context.Background()

	idle := f.manager.Session("idle")
	flush(t, idle)
	_, err := idle.AddToCart(ctx, "1", 1)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	f.manager.Session("busy")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, f.manager.EvictIdle(ctx))
	assert.Equal(t, 1, f.manager.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SessionsActive))

	items, ok, err := f.guests.Get(ctx, GuestKey("idle"))
	require.NoError(t, err)
	require.True(t, ok, "evicted sessions are flushed first")
	assert.Len(t, items, 1)

	again := f.manager.Session("idle")
	assert.NotSame(t, idle, again)
	flush(t, again)
	assert.Len(t, again.State().Items, 1, "a new session reloads the guest cart")
}

func TestSessionManager_Shutdown(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	s := f.manager.Session("s1")
	_, err := s.AddToCart(ctx, "2", 1)
	require.NoError(t, err)

	require.NoError(t, f.manager.Shutdown(ctx))
	assert.Zero(t, f.manager.Len())
	assert.Zero(t, testutil.ToFloat64(metrics.SessionsActive))
	assert.ErrorIs(t, s.Flush(ctx), cartsync.ErrClosed)
}
