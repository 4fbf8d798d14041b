package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for cart domain events.
var (
	TopicCartUpdated = pkgkafka.Topic("cart", "updated")
	TopicCartMerged  = pkgkafka.Topic("cart", "merged")
	TopicOrderPlaced = pkgkafka.Topic("order", "placed")
)

// Event types carried in the envelope.
const (
	EventCartUpdated = "cart.updated"
	EventCartMerged  = "cart.merged"
	EventOrderPlaced = "order.placed"
)

// SourceCartService identifies events originating from this service.
const SourceCartService = "cart-service"

// Publisher emits cart domain events. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, userID string, items []domain.LineItem) error
	PublishCartMerged(ctx context.Context, userID string, guestItems, merged []domain.LineItem) error
	PublishOrderPlaced(ctx context.Context, userID string, order domain.Order) error
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID      string          `json:"user_id"`
	Items       []CartItemData  `json:"items"`
	ItemCount   int             `json:"item_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// CartMergedData is the payload for a cart.merged event.
type CartMergedData struct {
	UserID         string         `json:"user_id"`
	GuestItemCount int            `json:"guest_item_count"`
	Items          []CartItemData `json:"items"`
	ItemCount      int            `json:"item_count"`
}

// OrderPlacedData is the payload for an order.placed event.
type OrderPlacedData struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Items     []CartItemData  `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
	AddressID string          `json:"address_id"`
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, userID string, items []domain.LineItem) error {
	state := domain.Reduce(domain.NewState(), domain.Initialize{Items: items})
	data := CartUpdatedData{
		UserID:      userID,
		Items:       itemData(items),
		ItemCount:   state.ItemCount,
		TotalAmount: state.Total,
	}
	if err := p.publish(ctx, TopicCartUpdated, EventCartUpdated, userID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("user_id", userID),
		slog.Int("item_count", state.ItemCount),
	)
	return nil
}

// PublishCartMerged publishes a cart.merged event.
func (p *Producer) PublishCartMerged(ctx context.Context, userID string, guestItems, merged []domain.LineItem) error {
	count := 0
	for _, li := range merged {
		count += li.Quantity
	}
	data := CartMergedData{
		UserID:         userID,
		GuestItemCount: len(guestItems),
		Items:          itemData(merged),
		ItemCount:      count,
	}
	if err := p.publish(ctx, TopicCartMerged, EventCartMerged, userID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.merged event",
		slog.String("user_id", userID),
		slog.Int("guest_lines", len(guestItems)),
	)
	return nil
}

// PublishOrderPlaced publishes an order.placed event.
func (p *Producer) PublishOrderPlaced(ctx context.Context, userID string, order domain.Order) error {
	data := OrderPlacedData{
		OrderID:   order.ID,
		UserID:    userID,
		Items:     itemData(order.Items),
		Subtotal:  order.Subtotal,
		Total:     order.Total,
		AddressID: order.ShippingAddress.ID.String(),
	}
	if err := p.publish(ctx, TopicOrderPlaced, EventOrderPlaced, userID, data); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "published order.placed event",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, eventType, key string, data any) error {
	event, err := pkgkafka.NewEvent(eventType, key, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

func itemData(items []domain.LineItem) []CartItemData {
	out := make([]CartItemData, len(items))
	for i, li := range items {
		out[i] = CartItemData{
			ProductID: li.ProductID.String(),
			Name:      li.Name,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
		}
	}
	return out
}

// NoopPublisher discards events. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishCartUpdated(context.Context, string, []domain.LineItem) error { return nil }

func (NoopPublisher) PublishCartMerged(context.Context, string, []domain.LineItem, []domain.LineItem) error {
	return nil
}

func (NoopPublisher) PublishOrderPlaced(context.Context, string, domain.Order) error { return nil }

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = NoopPublisher{}
)
