package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/users"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UserService interface {
	PrincipalLoader
	Register(ctx context.Context, in users.RegisterInput) (users.User, error)
	Login(ctx context.Context, username, password string) (users.Token, error)
	Get(ctx context.Context, p access.Principal, id string) (users.User, error)
	List(ctx context.Context, p access.Principal) ([]users.User, error)
	Update(ctx context.Context, p access.Principal, id string, patch users.Patch) (users.User, error)
	ChangeRole(ctx context.Context, p access.Principal, id string, isAdmin bool) (users.User, error)
	Delete(ctx context.Context, p access.Principal, id string) error
}

type UsersHandler struct {
	Users  UserService
	Orders OrderService
	Logger *zap.Logger
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type updateUserReq struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type changeRoleReq struct {
	IsAdmin *bool `json:"is_admin"`
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/users", h.register)
	r.Get("/users", h.list)
	r.Get("/users/me", h.me)
	r.Get("/users/{id}", h.get)
	r.Patch("/users/{id}", h.update)
	r.Put("/users/{id}/role", h.changeRole)
	r.Delete("/users/{id}", h.delete)
	r.Get("/users/{id}/orders", h.orders)
}

func (h *UsersHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	u, err := h.Users.Register(r.Context(), users.RegisterInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(u))
}

// login accepts a JSON body or an OAuth2 password-grant form.
func (h *UsersHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			WriteError(w, r, h.Logger, apperr.Validation("invalid form body"))
			return
		}
		req.Username, req.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	} else if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	tok, err := h.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResp{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   int64(tok.ExpiresIn.Seconds()),
	})
}

func (h *UsersHandler) me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if err := access.Authenticated(p); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	u, err := h.Users.Get(r.Context(), p, p.ID)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request) {
	us, err := h.Users.List(r.Context(), principal(r))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	out := make([]userResp, 0, len(us))
	for _, u := range us {
		out = append(out, toUser(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UsersHandler) get(w http.ResponseWriter, r *http.Request) {
	u, err := h.Users.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *UsersHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateUserReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	u, err := h.Users.Update(r.Context(), principal(r), chi.URLParam(r, "id"), users.Patch{
		Username: req.Username, Email: req.Email, Password: req.Password,
	})
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *UsersHandler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	if req.IsAdmin == nil {
		WriteError(w, r, h.Logger, apperr.Validation("is_admin is required"))
		return
	}
	u, err := h.Users.ChangeRole(r.Context(), principal(r), chi.URLParam(r, "id"), *req.IsAdmin)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *UsersHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) orders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListUserOrders(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for _, o := range list {
		resp := toOrder(o)
		resp.Products = nil
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
