// Package cartsync keeps the in-memory cart and its persistent copies in step.
// It loads the cart whenever the session identity changes, saves it whenever
// its items change, and merges a guest cart into the user's cart on login.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/session"
)

// DefaultGuestKey is the guest store key used when Config.GuestKey is empty.
const DefaultGuestKey = "guestCart"

// Messages recorded in State.LastError when a load fails.
const (
	MsgLoadFailed = "failed to load cart"
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("cartsync: synchronizer closed")

// Config tunes a Synchronizer.
type Config struct {
	// GuestKey is the guest store key for this session's anonymous cart.
	GuestKey string

	// OpTimeout bounds each store call. Zero means 10s.
	OpTimeout time.Duration
}

// Deps are the collaborators a Synchronizer drives.
type Deps struct {
	Store    *domain.Store
	Resolver *session.Resolver
	Users    repository.UserStore
	Guests   repository.GuestStore
	Events   event.Publisher
	Logger   *slog.Logger
}

type saveTicket struct {
	epoch uint64
	seq   uint64
}

// Synchronizer runs the load, save and merge protocols for one cart session.
// Effects execute on a single worker in the order they were issued; every
// effect is tagged with the identity epoch it was issued for and its result
// is dropped if the identity has changed since.
type Synchronizer struct {
	store    *domain.Store
	users    repository.UserStore
	guests   repository.GuestStore
	events   event.Publisher
	logger   *slog.Logger
	guestKey string
	timeout  time.Duration

	// transitionMu orders identity changes against result dispatches so a
	// stale result can never land after the BeginRequest of a newer identity.
	transitionMu sync.Mutex

	mu         sync.Mutex
	epoch      uint64
	identity   domain.Identity
	latestSave saveTicket
	saveSeq    uint64
	closed     bool

	// guestMerged is set when a merged guest cart could not be removed from
	// the guest store. Only the worker touches it.
	guestMerged bool

	queue       *taskQueue
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// New wires a synchronizer to deps.Store and deps.Resolver and starts the
// load for the resolver's current identity.
func New(deps Deps, cfg Config) *Synchronizer {
	if cfg.GuestKey == "" {
		cfg.GuestKey = DefaultGuestKey
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	if deps.Events == nil {
		deps.Events = event.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		store:    deps.Store,
		users:    deps.Users,
		guests:   deps.Guests,
		events:   deps.Events,
		logger:   deps.Logger,
		guestKey: cfg.GuestKey,
		timeout:  cfg.OpTimeout,
		queue:    newTaskQueue(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.unsubscribe = s.store.Subscribe(s.onChange)
	deps.Resolver.Subscribe(s.onIdentity)
	go s.work()

	s.begin(deps.Resolver.Current(), false)
	return s
}

// GuestKey returns the guest store key of this session.
func (s *Synchronizer) GuestKey() string {
	return s.guestKey
}

// Flush blocks until every effect queued before the call has completed.
func (s *Synchronizer) Flush(ctx context.Context) error {
	for {
		barrier := make(chan struct{})
		if !s.queue.push(task{op: "flush", run: func(context.Context) { close(barrier) }}) {
			return ErrClosed
		}
		select {
		case <-barrier:
		case <-s.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
		if s.queue.len() == 0 {
			return nil
		}
	}
}

// Exec runs fn on the worker once every effect queued before the call has
// completed, so fn never overlaps a load, save or merge of this session. It
// returns fn's error. If ctx ends before fn starts, fn is skipped.
func (s *Synchronizer) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	run := func(context.Context) {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- fn(ctx)
	}
	if !s.queue.push(task{op: "exec", epoch: s.currentEpoch(), run: run}) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Pending effects are dropped; call Flush first to
// drain them.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.queue.close()
	s.cancel()
	<-s.done
}

func (s *Synchronizer) work() {
	defer close(s.done)
	for {
		t, ok := s.queue.next(s.ctx)
		if !ok {
			return
		}
		t.run(s.ctx)
	}
}

func (s *Synchronizer) onIdentity(t session.Transition) {
	s.logger.Debug("cart identity changed",
		slog.String("from", t.Prev.String()),
		slog.String("to", t.Next.String()),
	)
	s.begin(t.Next, t.Login())
}

// begin starts the load (or merge, on login) for id under a new epoch. The
// BeginRequest is dispatched before returning so saves are suppressed from
// the moment the identity changes.
func (s *Synchronizer) begin(id domain.Identity, login bool) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.identity = id
	s.mu.Unlock()

	s.store.Dispatch(domain.BeginRequest{})

	if login {
		s.enqueue(metrics.OpMerge, epoch, func(ctx context.Context) { s.merge(ctx, epoch, id.UserID) })
		return
	}
	s.enqueue(metrics.OpLoad, epoch, func(ctx context.Context) { s.load(ctx, epoch, id) })
}

// onChange queues a save for every item change made while no load is in
// flight.
func (s *Synchronizer) onChange(c domain.Change) {
	if !c.ItemsChanged() || c.Next.Loading {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.saveSeq++
	ticket := saveTicket{epoch: s.epoch, seq: s.saveSeq}
	s.latestSave = ticket
	id := s.identity
	s.mu.Unlock()

	items := domain.CloneItems(c.Next.Items)
	s.enqueue(metrics.OpSave, ticket.epoch, func(ctx context.Context) { s.save(ctx, ticket, id, items) })
}

func (s *Synchronizer) enqueue(op string, epoch uint64, run func(ctx context.Context)) {
	if !s.queue.push(task{op: op, epoch: epoch, run: run}) {
		s.logger.Debug("synchronizer closed, dropping effect",
			slog.String("operation", op),
			slog.Uint64("epoch", epoch),
		)
	}
}

func (s *Synchronizer) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// complete dispatches the result of an effect issued at epoch, unless the
// identity has changed since. It reports whether the result was applied.
func (s *Synchronizer) complete(op string, epoch uint64, actions ...domain.Action) bool {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if current := s.currentEpoch(); current != epoch {
		metrics.StaleResponses.WithLabelValues(op).Inc()
		s.logger.Debug("discarding stale cart response",
			slog.String("operation", op),
			slog.Uint64("epoch", epoch),
			slog.Uint64("current_epoch", current),
		)
		return false
	}
	for _, a := range actions {
		s.store.Dispatch(a)
	}
	return true
}

func (s *Synchronizer) record(op, result string, start time.Time) {
	metrics.SyncOperations.WithLabelValues(op, result).Inc()
	metrics.SyncDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// load fetches the cart of id and replaces the in-memory items with it.
func (s *Synchronizer) load(ctx context.Context, epoch uint64, id domain.Identity) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	items, err := s.fetch(ctx, id)
	if err != nil {
		s.record(metrics.OpLoad, metrics.ResultFailure, start)
		s.logger.ErrorContext(ctx, "failed to load cart",
			slog.String("identity", id.String()),
			slog.String("error", err.Error()),
		)
		s.complete(metrics.OpLoad, epoch, domain.RequestFailed{Message: MsgLoadFailed})
		return
	}

	if s.complete(metrics.OpLoad, epoch, domain.Initialize{Items: items}, domain.RequestSucceeded{}) {
		s.record(metrics.OpLoad, metrics.ResultSuccess, start)
		s.logger.DebugContext(ctx, "cart loaded",
			slog.String("identity", id.String()),
			slog.Int("lines", len(items)),
		)
		return
	}
	s.record(metrics.OpLoad, metrics.ResultSkipped, start)
}

// fetch reads the persisted cart of id. A missing or malformed cart is an
// empty cart.
func (s *Synchronizer) fetch(ctx context.Context, id domain.Identity) ([]domain.LineItem, error) {
	if !id.IsAuthenticated() {
		if s.guestMerged {
			s.dropMergedGuest(ctx)
			return []domain.LineItem{}, nil
		}
		items, ok, err := s.guests.Get(ctx, s.guestKey)
		if err != nil {
			return nil, fmt.Errorf("read guest cart: %w", err)
		}
		if !ok {
			return []domain.LineItem{}, nil
		}
		return items, nil
	}

	rec, err := s.users.FetchUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id.UserID, err)
	}
	return s.remoteCart(ctx, id.UserID, rec), nil
}

func (s *Synchronizer) remoteCart(ctx context.Context, userID string, rec domain.UserRecord) []domain.LineItem {
	items, ok := rec.Cart()
	if ok {
		return items
	}
	if _, present := rec[domain.FieldCart]; present {
		s.logger.WarnContext(ctx, "remote cart is malformed, treating as empty",
			slog.String("user_id", userID),
		)
	}
	return []domain.LineItem{}
}

// save writes items to the store of id. Failures are logged and swallowed;
// the in-memory cart stays authoritative.
func (s *Synchronizer) save(ctx context.Context, ticket saveTicket, id domain.Identity, items []domain.LineItem) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.Lock()
	superseded := s.latestSave.epoch == ticket.epoch && s.latestSave.seq != ticket.seq
	s.mu.Unlock()
	if superseded {
		s.record(metrics.OpSave, metrics.ResultSkipped, start)
		return
	}

	if !id.IsAuthenticated() {
		if err := s.guests.Set(ctx, s.guestKey, items); err != nil {
			s.record(metrics.OpSave, metrics.ResultFailure, start)
			s.logger.ErrorContext(ctx, "failed to save guest cart", slog.String("error", err.Error()))
			return
		}
		s.guestMerged = false
		s.record(metrics.OpSave, metrics.ResultSuccess, start)
		return
	}

	err := s.saveRemote(ctx, ticket.epoch, id.UserID, items)
	switch {
	case errors.Is(err, errIdentityChanged):
		s.record(metrics.OpSave, metrics.ResultSkipped, start)
		s.logger.DebugContext(ctx, "identity changed, skipping cart save", slog.String("user_id", id.UserID))
	case err != nil:
		s.record(metrics.OpSave, metrics.ResultFailure, start)
		s.logger.ErrorContext(ctx, "failed to save cart",
			slog.String("user_id", id.UserID),
			slog.String("error", err.Error()),
		)
	default:
		s.record(metrics.OpSave, metrics.ResultSuccess, start)
		if err := s.events.PublishCartUpdated(ctx, id.UserID, items); err != nil {
			s.logger.WarnContext(ctx, "failed to publish cart.updated event", slog.String("error", err.Error()))
		}
	}
}

var errIdentityChanged = errors.New("identity changed")

// saveRemote replaces only the cart field of the user record.
func (s *Synchronizer) saveRemote(ctx context.Context, epoch uint64, userID string, items []domain.LineItem) error {
	if s.currentEpoch() != epoch {
		return errIdentityChanged
	}
	rec, err := s.users.FetchUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch user %s: %w", userID, err)
	}
	if err := rec.SetCart(items); err != nil {
		return err
	}
	if s.currentEpoch() != epoch {
		return errIdentityChanged
	}
	if err := s.users.ReplaceUser(ctx, userID, rec); err != nil {
		return fmt.Errorf("replace user %s: %w", userID, err)
	}
	return nil
}

// merge folds the guest cart into the remote cart of userID on login. Any
// failure leaves the guest cart in place and falls back to a plain load.
func (s *Synchronizer) merge(ctx context.Context, epoch uint64, userID string) {
	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.guestMerged {
		s.dropMergedGuest(opCtx)
		s.load(ctx, epoch, domain.Authenticated(userID))
		return
	}

	guestItems, ok, err := s.guests.Get(opCtx, s.guestKey)
	if err != nil {
		s.mergeFailed(ctx, epoch, userID, start, fmt.Errorf("read guest cart: %w", err))
		return
	}
	if !ok || len(guestItems) == 0 {
		s.load(ctx, epoch, domain.Authenticated(userID))
		return
	}

	rec, err := s.users.FetchUser(opCtx, userID)
	if err != nil {
		s.mergeFailed(ctx, epoch, userID, start, fmt.Errorf("fetch user %s: %w", userID, err))
		return
	}

	merged := MergeItems(s.remoteCart(opCtx, userID, rec), guestItems)
	if err := rec.SetCart(merged); err != nil {
		s.mergeFailed(ctx, epoch, userID, start, err)
		return
	}
	if current := s.currentEpoch(); current != epoch {
		metrics.StaleResponses.WithLabelValues(metrics.OpMerge).Inc()
		s.record(metrics.OpMerge, metrics.ResultSkipped, start)
		s.logger.DebugContext(ctx, "identity changed, abandoning guest cart merge",
			slog.String("user_id", userID),
			slog.Uint64("epoch", epoch),
			slog.Uint64("current_epoch", current),
		)
		return
	}
	if err := s.users.ReplaceUser(opCtx, userID, rec); err != nil {
		s.mergeFailed(ctx, epoch, userID, start, fmt.Errorf("replace user %s: %w", userID, err))
		return
	}

	s.complete(metrics.OpMerge, epoch, domain.Initialize{Items: merged}, domain.RequestSucceeded{})

	if err := s.guests.Remove(opCtx, s.guestKey); err != nil {
		s.guestMerged = true
		s.logger.WarnContext(ctx, "failed to clear guest cart after merge, ignoring it until removed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	s.record(metrics.OpMerge, metrics.ResultSuccess, start)
	s.logger.InfoContext(ctx, "guest cart merged",
		slog.String("user_id", userID),
		slog.Int("guest_lines", len(guestItems)),
		slog.Int("merged_lines", len(merged)),
	)

	if err := s.events.PublishCartMerged(opCtx, userID, guestItems, merged); err != nil {
		s.logger.WarnContext(ctx, "failed to publish cart.merged event", slog.String("error", err.Error()))
	}
}

// dropMergedGuest retries removing a guest cart that was already merged. The
// stored copy stays ignored until the removal or a later guest save succeeds.
func (s *Synchronizer) dropMergedGuest(ctx context.Context) {
	if err := s.guests.Remove(ctx, s.guestKey); err != nil {
		s.logger.WarnContext(ctx, "failed to clear merged guest cart", slog.String("error", err.Error()))
		return
	}
	s.guestMerged = false
}

func (s *Synchronizer) mergeFailed(ctx context.Context, epoch uint64, userID string, start time.Time, err error) {
	s.record(metrics.OpMerge, metrics.ResultFailure, start)
	s.logger.WarnContext(ctx, "guest cart merge failed, keeping guest cart",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	s.load(ctx, epoch, domain.Authenticated(userID))
}
