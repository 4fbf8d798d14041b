package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// PlaceOrderInput holds the parameters for placing an order.
type PlaceOrderInput struct {
	AddressID     domain.ID `json:"address_id" validate:"required"`
	PaymentMethod string    `json:"payment_method" validate:"required,max=50"`
}

// CheckoutService turns the cart of an authenticated session into an order
// stored on the user record.
type CheckoutService struct {
	users  repository.UserStore
	events event.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(users repository.UserStore, events event.Publisher, logger *slog.Logger) *CheckoutService {
	if events == nil {
		events = event.NoopPublisher{}
	}
	return &CheckoutService{
		users:  users,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// PlaceOrder appends an order built from the session's cart to the user's
// orders, empties the persisted cart and clears the in-memory cart.
func (s *CheckoutService) PlaceOrder(ctx context.Context, sess *CartSession, input PlaceOrderInput) (domain.Order, error) {
	id := sess.Identity()
	if !id.IsAuthenticated() {
		return domain.Order{}, apperrors.Unauthorized("login required to place an order")
	}
	if input.AddressID == "" {
		return domain.Order{}, apperrors.InvalidInput("shipping address is required")
	}
	if input.PaymentMethod == "" {
		return domain.Order{}, apperrors.InvalidInput("payment method is required")
	}

	st := sess.State()
	if st.Loading {
		return domain.Order{}, apperrors.Conflict("cart is still loading, please retry")
	}
	if len(st.Items) == 0 {
		return domain.Order{}, apperrors.InvalidInput("cart is empty")
	}

	var order domain.Order
	err := sess.sync.Exec(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.commitOrder(ctx, sess, id, input)
		return err
	})
	if err != nil {
		if errors.Is(err, cartsync.ErrClosed) {
			return domain.Order{}, apperrors.ServiceUnavailable("cart session is closed")
		}
		return domain.Order{}, err
	}

	if err := s.events.PublishOrderPlaced(ctx, id.UserID, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.placed event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", order.ID),
		slog.String("user_id", id.UserID),
		slog.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// commitOrder runs on the session's synchronizer so no cart save of the same
// session rewrites the user record between the read and the patch.
func (s *CheckoutService) commitOrder(ctx context.Context, sess *CartSession, id domain.Identity, input PlaceOrderInput) (domain.Order, error) {
	if sess.Identity() != id {
		return domain.Order{}, apperrors.Conflict("session identity changed, please retry")
	}
	st := sess.State()
	if len(st.Items) == 0 {
		return domain.Order{}, apperrors.InvalidInput("cart is empty")
	}

	rec, err := s.users.FetchUser(ctx, id.UserID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("fetch user %s: %w", id.UserID, err)
	}

	address, ok := findAddress(rec.Addresses(), input.AddressID)
	if !ok {
		return domain.Order{}, apperrors.InvalidInput("unknown shipping address")
	}

	totals := domain.ComputeTotals(st.Items)
	order := domain.Order{
		ID:              "order-" + uuid.NewString(),
		Items:           domain.CloneItems(st.Items),
		ShippingAddress: address,
		PaymentMethod:   input.PaymentMethod,
		Subtotal:        totals.Subtotal,
		Shipping:        totals.Shipping,
		Tax:             totals.Tax,
		Total:           totals.Total,
		Status:          domain.OrderStatusPending,
		CreatedAt:       s.now().UTC(),
	}

	fields, err := ordersPatch(rec, order)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.users.PatchUser(ctx, id.UserID, fields); err != nil {
		return domain.Order{}, fmt.Errorf("patch user %s: %w", id.UserID, err)
	}

	sess.ClearCart(ctx)
	return order, nil
}

// ordersPatch returns the fields that append order to the user's orders and
// empty the persisted cart.
func ordersPatch(rec domain.UserRecord, order domain.Order) (domain.UserRecord, error) {
	encoded, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	orders, err := json.Marshal(append(rec.Orders(), json.RawMessage(encoded)))
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}

	fields := domain.UserRecord{domain.FieldOrders: orders}
	if err := fields.SetCart(nil); err != nil {
		return nil, err
	}
	return fields, nil
}

func findAddress(addresses []domain.Address, id domain.ID) (domain.Address, bool) {
	for _, a := range addresses {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Address{}, false
}
