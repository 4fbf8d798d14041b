package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart and checkout endpoints.
type CartHandler struct {
	checkout *service.CheckoutService
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(checkout *service.CheckoutService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		checkout: checkout,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ProductID domain.ID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gte=1,lte=100"`
}

// UpdateQuantityRequest is the JSON request body for updating an item's
// quantity. Values outside [1, stock] are clamped.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// CheckoutRequest is the JSON request body for placing an order.
type CheckoutRequest struct {
	AddressID     domain.ID `json:"address_id" validate:"required"`
	PaymentMethod string    `json:"payment_method" validate:"required,max=50"`
}

// --- Response DTOs ---

// CartResponse is the JSON view of a cart.
type CartResponse struct {
	Items     []domain.LineItem `json:"items"`
	Total     json.Number       `json:"total"`
	ItemCount int               `json:"item_count"`
	Loading   bool              `json:"loading"`
	LastError string            `json:"last_error,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
}

func newCartResponse(st domain.State, id domain.Identity) CartResponse {
	items := st.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	return CartResponse{
		Items:     items,
		Total:     json.Number(st.Total.StringFixed(2)),
		ItemCount: st.ItemCount,
		Loading:   st.Loading,
		LastError: st.LastError,
		UserID:    id.UserID,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartResponse(sess.State(), sess.Identity()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFromContext(r.Context())
	st, err := sess.AddToCart(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, newCartResponse(st, sess.Identity()))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := domain.ID(chi.URLParam(r, "productId"))

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFromContext(r.Context())
	st, err := sess.UpdateQuantity(r.Context(), productID, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, newCartResponse(st, sess.Identity()))
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := domain.ID(chi.URLParam(r, "productId"))

	sess := sessionFromContext(r.Context())
	st := sess.RemoveFromCart(r.Context(), productID)
	httputil.WriteData(w, http.StatusOK, newCartResponse(st, sess.Identity()))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	st := sess.ClearCart(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartResponse(st, sess.Identity()))
}

// Checkout handles POST /api/v1/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess := sessionFromContext(r.Context())
	order, err := h.checkout.PlaceOrder(r.Context(), sess, service.PlaceOrderInput{
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, order)
}
