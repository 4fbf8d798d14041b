package cartsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/session"
)

var errBackendDown = errors.New("backend down")

// fakeUsers wraps the in-memory user store with failure injection, gates
// that hold FetchUser and the next ReplaceUser until released, and call
// counters.
type fakeUsers struct {
	*memory.UserStore

	mu          sync.Mutex
	fetchErr    error
	replaceErr  error
	fetchGate   chan struct{}
	replaceGate chan struct{}
	fetches     int
	replaces    int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{UserStore: memory.NewUserStore()}
}

func (f *fakeUsers) FetchUser(ctx context.Context, userID string) (domain.UserRecord, error) {
	f.mu.Lock()
	f.fetches++
	gate, err := f.fetchGate, f.fetchErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return f.UserStore.FetchUser(ctx, userID)
}

func (f *fakeUsers) ReplaceUser(ctx context.Context, userID string, record domain.UserRecord) error {
	f.mu.Lock()
	f.replaces++
	err, gate := f.replaceErr, f.replaceGate
	f.replaceGate = nil
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	return f.UserStore.ReplaceUser(ctx, userID, record)
}

func (f *fakeUsers) set(fn func(f *fakeUsers)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeUsers) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeUsers) replaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaces
}

// fakeGuests wraps the in-memory guest store with failure injection, a gate
// on Set and counters.
type fakeGuests struct {
	*memory.GuestStore

	mu        sync.Mutex
	getErr    error
	removeErr error
	setGate   chan struct{}
	sets      int
	removes   int
}

func newFakeGuests() *fakeGuests {
	return &fakeGuests{GuestStore: memory.NewGuestStore()}
}

func (f *fakeGuests) Get(ctx context.Context, key string) ([]domain.LineItem, bool, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return f.GuestStore.Get(ctx, key)
}

func (f *fakeGuests) Set(ctx context.Context, key string, items []domain.LineItem) error {
	f.mu.Lock()
	f.sets++
	gate := f.setGate
	f.setGate = nil
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return f.GuestStore.Set(ctx, key, items)
}

func (f *fakeGuests) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	f.removes++
	err := f.removeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.GuestStore.Remove(ctx, key)
}

func (f *fakeGuests) removeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removes
}

func (f *fakeGuests) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type publishedEvent struct {
	kind   string
	userID string
	items  []domain.LineItem
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishCartUpdated(_ context.Context, userID string, items []domain.LineItem) error {
	p.add(publishedEvent{kind: "updated", userID: userID, items: items})
	return nil
}

func (p *recordingPublisher) PublishCartMerged(_ context.Context, userID string, _, merged []domain.LineItem) error {
	p.add(publishedEvent{kind: "merged", userID: userID, items: merged})
	return nil
}

func (p *recordingPublisher) PublishOrderPlaced(context.Context, string, domain.Order) error {
	return nil
}

func (p *recordingPublisher) add(e publishedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.kind)
	}
	return out
}

type harness struct {
	store    *domain.Store
	resolver *session.Resolver
	users    *fakeUsers
	guests   *fakeGuests
	events   *recordingPublisher
	sync     *Synchronizer
}

const testGuestKey = "guestCart:test-session"

// newHarness builds a synchronizer over fresh fakes. prepare runs before the
// synchronizer starts, so it can seed stores for the initial load.
func newHarness(t *testing.T, prepare func(h *harness)) *harness {
	t.Helper()
	h := &harness{
		store:    domain.NewStore(),
		resolver: session.NewResolver(),
		users:    newFakeUsers(),
		guests:   newFakeGuests(),
		events:   &recordingPublisher{},
	}
	if prepare != nil {
		prepare(h)
	}
	h.sync = New(Deps{
		Store:    h.store,
		Resolver: h.resolver,
		Users:    h.users,
		Guests:   h.guests,
		Events:   h.events,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{GuestKey: testGuestKey, OpTimeout: 2 * time.Second})
	t.Cleanup(h.sync.Close)
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.sync.Flush(ctx))
}

func (h *harness) guestItems(t *testing.T) ([]domain.LineItem, bool) {
	t.Helper()
	items, ok, err := h.guests.GuestStore.Get(context.Background(), testGuestKey)
	require.NoError(t, err)
	return items, ok
}

func (h *harness) remoteCart(t *testing.T, userID string) ([]domain.LineItem, bool) {
	t.Helper()
	rec, err := h.users.UserStore.FetchUser(context.Background(), userID)
	require.NoError(t, err)
	return rec.Cart()
}

func product(id, price, discount string, stock int) domain.Product {
	return domain.Product{
		ID:       domain.ID(id),
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Discount: decimal.RequireFromString(discount),
		Stock:    stock,
	}
}

func line(id string, qty int) domain.LineItem {
	return domain.LineItem{
		ProductID: domain.ID(id),
		Name:      "Product " + id,
		UnitPrice: decimal.NewFromInt(10),
		Quantity:  qty,
		Stock:     20,
	}
}

func quantities(items []domain.LineItem) map[domain.ID]int {
	out := make(map[domain.ID]int, len(items))
	for _, li := range items {
		out[li.ProductID] = li.Quantity
	}
	return out
}
