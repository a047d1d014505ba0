package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps are the services the router exposes.
type Deps struct {
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Tokens   *auth.TokenIssuer
	Users    UserService
	Products ProductService
	Statuses StatusService
	Orders   OrderService
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, observability.RequestLogger(d.Logger), middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Tokens, d.Users, d.Logger))

		(&UsersHandler{Users: d.Users, Orders: d.Orders, Logger: d.Logger}).Register(r)
		(&ProductsHandler{Products: d.Products, Logger: d.Logger}).Register(r)
		(&StatusesHandler{Statuses: d.Statuses, Logger: d.Logger}).Register(r)
		(&OrdersHandler{Orders: d.Orders, Logger: d.Logger}).Register(r)
	})
	return r
}
