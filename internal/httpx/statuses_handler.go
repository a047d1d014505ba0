package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type StatusService interface {
	Create(ctx context.Context, p access.Principal, name string) (statuses.Status, error)
	Get(ctx context.Context, p access.Principal, id string) (statuses.Status, error)
	Update(ctx context.Context, p access.Principal, id, name string) (statuses.Status, error)
	Remove(ctx context.Context, p access.Principal, id string) error
	List(ctx context.Context, p access.Principal) ([]statuses.Status, error)
}

type StatusesHandler struct {
	Statuses StatusService
	Logger   *zap.Logger
}

type statusReq struct {
	Name string `json:"name"`
}

func (h *StatusesHandler) Register(r chi.Router) {
	r.Post("/statuses", h.create)
	r.Get("/statuses", h.list)
	r.Get("/statuses/{id}", h.get)
	r.Put("/statuses/{id}", h.update)
	r.Delete("/statuses/{id}", h.remove)
}

func (h *StatusesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	s, err := h.Statuses.Create(r.Context(), principal(r), req.Name)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStatus(s))
}

func (h *StatusesHandler) list(w http.ResponseWriter, r *http.Request) {
	ss, err := h.Statuses.List(r.Context(), principal(r))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	out := make([]statusResp, 0, len(ss))
	for _, s := range ss {
		out = append(out, toStatus(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *StatusesHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.Statuses.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(s))
}

func (h *StatusesHandler) update(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	s, err := h.Statuses.Update(r.Context(), principal(r), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(s))
}

func (h *StatusesHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.Statuses.Remove(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "status deleted"})
}
