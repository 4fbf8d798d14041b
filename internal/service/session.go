package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ProductLookup resolves a product by id.
type ProductLookup interface {
	Product(ctx context.Context, id domain.ID) (domain.Product, error)
}

// CartSession is the cart of one device: its state machine, its identity and
// the synchronizer that persists it.
type CartSession struct {
	id       string
	store    *domain.Store
	resolver *session.Resolver
	sync     *cartsync.Synchronizer
	products ProductLookup
	logger   *slog.Logger
	lastSeen atomic.Int64
}

// ID returns the session id.
func (s *CartSession) ID() string {
	return s.id
}

// State returns a snapshot of the cart.
func (s *CartSession) State() domain.State {
	return s.store.State()
}

// Identity returns who the cart currently belongs to.
func (s *CartSession) Identity() domain.Identity {
	return s.resolver.Current()
}

// AddToCart looks productID up in the catalog and adds qty of it.
func (s *CartSession) AddToCart(ctx context.Context, productID domain.ID, qty int) (domain.State, error) {
	if productID == "" {
		return domain.State{}, apperrors.InvalidInput("product id is required")
	}

	p, err := s.products.Product(ctx, productID)
	if err != nil {
		return domain.State{}, err
	}
	if !p.InStock() {
		return domain.State{}, apperrors.InvalidInput("product is out of stock")
	}

	st := s.store.Dispatch(domain.Add{Product: p, Quantity: qty})
	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("session_id", s.id),
		slog.String("product_id", productID.String()),
		slog.Int("quantity", qty),
	)
	return st, nil
}

// RemoveFromCart drops the line of productID. Removing an absent product is
// a no-op.
func (s *CartSession) RemoveFromCart(ctx context.Context, productID domain.ID) domain.State {
	st := s.store.Dispatch(domain.Remove{ProductID: productID})
	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("session_id", s.id),
		slog.String("product_id", productID.String()),
	)
	return st
}

// UpdateQuantity sets the quantity of an existing line, clamped to stock.
func (s *CartSession) UpdateQuantity(ctx context.Context, productID domain.ID, qty int) (domain.State, error) {
	if _, ok := s.store.State().Find(productID); !ok {
		return domain.State{}, apperrors.NotFound("cart item", productID.String())
	}

	st := s.store.Dispatch(domain.SetQuantity{ProductID: productID, Quantity: qty})
	s.logger.InfoContext(ctx, "cart item quantity updated",
		slog.String("session_id", s.id),
		slog.String("product_id", productID.String()),
		slog.Int("quantity", qty),
	)
	return st, nil
}

// ClearCart empties the cart.
func (s *CartSession) ClearCart(ctx context.Context) domain.State {
	st := s.store.Dispatch(domain.Clear{})
	s.logger.InfoContext(ctx, "cart cleared", slog.String("session_id", s.id))
	return st
}

// Login switches the cart to userID, merging the guest cart when coming
// from a guest session. It reports whether the identity changed.
func (s *CartSession) Login(userID string) bool {
	return s.resolver.Set(domain.Authenticated(userID))
}

// Logout switches the cart back to the guest cart.
func (s *CartSession) Logout() bool {
	return s.resolver.Set(domain.Guest)
}

// Flush waits for pending persistence effects.
func (s *CartSession) Flush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

// Close stops the session's synchronizer.
func (s *CartSession) Close() {
	s.sync.Close()
}

func (s *CartSession) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *CartSession) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}
