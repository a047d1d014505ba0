package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	CreateOrder(ctx context.Context, p access.Principal, req orders.CreateRequest) (orders.Order, error)
	GetOrderDetails(ctx context.Context, p access.Principal, orderID string) (orders.Order, error)
	UpdateOrderStatus(ctx context.Context, p access.Principal, orderID, newStatus string) (orders.Order, error)
	CancelOrder(ctx context.Context, p access.Principal, orderID string) (orders.Order, error)
	ListUserOrders(ctx context.Context, p access.Principal, userID string) ([]orders.Order, error)
}

type OrdersHandler struct {
	Orders OrderService
	Logger *zap.Logger
}

type createOrderReq struct {
	Products []orders.LineRequest `json:"products"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Delete("/orders/{id}", h.cancelOrder)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CreateOrder(ctx, principal(r), orders.CreateRequest{
		Lines:          req.Products,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrderDetails(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateOrderStatus(ctx, principal(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	resp := toOrder(o)
	resp.Products = nil
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orders.CancelOrder(ctx, principal(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
