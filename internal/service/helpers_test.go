package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// --- Mock Catalog ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

// --- Fakes ---

type staticProducts map[domain.ID]domain.Product

func (p staticProducts) Product(_ context.Context, id domain.ID) (domain.Product, error) {
	if prod, ok := p[id]; ok {
		return prod, nil
	}
	return domain.Product{}, apperrors.NotFound("product", id.String())
}

type recordingPublisher struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (p *recordingPublisher) PublishCartUpdated(context.Context, string, []domain.LineItem) error {
	return nil
}

func (p *recordingPublisher) PublishCartMerged(context.Context, string, []domain.LineItem, []domain.LineItem) error {
	return nil
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, _ string, order domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, order)
	return nil
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newProduct(id, price, discount string, stock int) domain.Product {
	return domain.Product{
		ID:       domain.ID(id),
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Discount: decimal.RequireFromString(discount),
		Stock:    stock,
	}
}

var testProducts = staticProducts{
	"1": newProduct("1", "50", "10", 5),
	"2": newProduct("2", "19.99", "0", 10),
	"3": newProduct("3", "5", "0", 0),
}

type sessionFixture struct {
	users   *memory.UserStore
	guests  *memory.GuestStore
	events  *recordingPublisher
	manager *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		users:  memory.NewUserStore(),
		guests: memory.NewGuestStore(),
		events: &recordingPublisher{},
	}
	f.manager = NewSessionManager(SessionDeps{
		Users:    f.users,
		Guests:   f.guests,
		Products: testProducts,
		Events:   f.events,
		Logger:   newTestLogger(),
	}, SessionManagerConfig{IdleTTL: time.Minute, OpTimeout: time.Second})
	t.Cleanup(func() { _ = f.manager.Shutdown(context.Background()) })
	return f
}

func flush(t *testing.T, s *CartSession) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}
