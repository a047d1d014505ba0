package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/ariefcatur/go-shop-orders/internal/users"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	aliceID = "1c8c3f6e-2d2b-4c1e-9f5a-000000000001"
	adminID = "1c8c3f6e-2d2b-4c1e-9f5a-0000000000ad"
	orderID = "5b2e0b8a-7a0c-4f4e-8d52-000000000010"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubUsers struct {
	principals map[string]access.Principal
	registered users.RegisterInput
}

func (s *stubUsers) LoadPrincipal(_ context.Context, id string) (access.Principal, error) {
	p, ok := s.principals[id]
	if !ok {
		return access.Principal{}, apperr.Unauthorized("could not validate credentials")
	}
	return p, nil
}

func (s *stubUsers) Register(_ context.Context, in users.RegisterInput) (users.User, error) {
	s.registered = in
	return users.User{ID: aliceID, Username: in.Username, Email: in.Email, IsActive: true, CreatedAt: created}, nil
}

func (s *stubUsers) Login(_ context.Context, username, password string) (users.Token, error) {
	if username != "alice" || password != "correct-horse" {
		return users.Token{}, apperr.Unauthorized("incorrect username or password")
	}
	return users.Token{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 30 * time.Minute}, nil
}

func (s *stubUsers) Get(_ context.Context, p access.Principal, id string) (users.User, error) {
	if err := access.OwnerOrAdmin(p, id); err != nil {
		return users.User{}, err
	}
	return users.User{ID: id, Username: "alice", CreatedAt: created}, nil
}

func (s *stubUsers) List(_ context.Context, p access.Principal) ([]users.User, error) {
	if err := access.Admin(p); err != nil {
		return nil, err
	}
	return []users.User{{ID: aliceID, Username: "alice"}}, nil
}

func (s *stubUsers) Update(_ context.Context, p access.Principal, id string, patch users.Patch) (users.User, error) {
	return users.User{}, errors.New("not used")
}

func (s *stubUsers) ChangeRole(_ context.Context, p access.Principal, id string, isAdmin bool) (users.User, error) {
	if err := access.Admin(p); err != nil {
		return users.User{}, err
	}
	return users.User{ID: id, IsAdmin: isAdmin}, nil
}

func (s *stubUsers) Delete(_ context.Context, p access.Principal, id string) error {
	return access.Owner(p, id)
}

type stubOrders struct {
	lastCreate orders.CreateRequest
	err        error
}

func (s *stubOrders) order(p access.Principal) orders.Order {
	return orders.Order{
		ID:         orderID,
		UserID:     p.ID,
		StatusName: statuses.Pending,
		TotalPrice: decimal.RequireFromString("27"),
		CreatedAt:  created,
		Lines: []orders.Line{
			{ProductID: "p-a", Quantity: 2},
			{ProductID: "p-b", Quantity: 2},
		},
	}
}

func (s *stubOrders) CreateOrder(_ context.Context, p access.Principal, req orders.CreateRequest) (orders.Order, error) {
	s.lastCreate = req
	if s.err != nil {
		return orders.Order{}, s.err
	}
	if err := access.Authenticated(p); err != nil {
		return orders.Order{}, err
	}
	return s.order(p), nil
}

func (s *stubOrders) GetOrderDetails(_ context.Context, p access.Principal, id string) (orders.Order, error) {
	if s.err != nil {
		return orders.Order{}, s.err
	}
	return s.order(p), nil
}

func (s *stubOrders) UpdateOrderStatus(_ context.Context, p access.Principal, id, status string) (orders.Order, error) {
	if err := access.Admin(p); err != nil {
		return orders.Order{}, err
	}
	o := s.order(p)
	o.StatusName = status
	return o, nil
}

func (s *stubOrders) CancelOrder(_ context.Context, p access.Principal, id string) (orders.Order, error) {
	if s.err != nil {
		return orders.Order{}, s.err
	}
	return s.order(p), nil
}

func (s *stubOrders) ListUserOrders(_ context.Context, p access.Principal, userID string) ([]orders.Order, error) {
	if err := access.OwnerOrAdmin(p, userID); err != nil {
		return nil, err
	}
	return []orders.Order{s.order(p)}, nil
}

type stubProducts struct {
	lastQuery catalog.SearchQuery
	lastPatch catalog.Patch
}

func (s *stubProducts) Create(_ context.Context, p access.Principal, in catalog.CreateInput) (catalog.Product, error) {
	if err := access.Admin(p); err != nil {
		return catalog.Product{}, err
	}
	return catalog.Product{ID: "p-new", Name: in.Name, Price: in.Price, Stock: in.Stock, IsAvailable: in.IsAvailable}, nil
}

func (s *stubProducts) Update(_ context.Context, p access.Principal, id string, patch catalog.Patch) (catalog.Product, error) {
	s.lastPatch = patch
	return catalog.Product{ID: id, Price: decimal.RequireFromString("1")}, nil
}

func (s *stubProducts) Delete(_ context.Context, p access.Principal, id string) error {
	return apperr.NotFound("product", id)
}

func (s *stubProducts) Get(_ context.Context, id string) (catalog.Product, error) {
	return catalog.Product{ID: id, Name: "Tea", Price: decimal.RequireFromString("3.5"), Stock: 2, IsAvailable: true}, nil
}

func (s *stubProducts) List(_ context.Context) ([]catalog.Product, error) {
	return []catalog.Product{}, nil
}

func (s *stubProducts) Search(_ context.Context, q catalog.SearchQuery) (catalog.SearchResult, error) {
	s.lastQuery = q
	return catalog.SearchResult{Page: q.Page, TotalPages: 1, ProductsPerPage: 10, TotalProducts: 0, Products: nil}, nil
}

type stubStatuses struct{}

func (stubStatuses) Create(_ context.Context, p access.Principal, name string) (statuses.Status, error) {
	if err := access.Admin(p); err != nil {
		return statuses.Status{}, err
	}
	return statuses.Status{ID: "s-1", Name: name, CreatedAt: created}, nil
}

func (stubStatuses) Get(_ context.Context, p access.Principal, id string) (statuses.Status, error) {
	return statuses.Status{}, apperr.NotFound("status", id)
}

func (stubStatuses) Update(_ context.Context, p access.Principal, id, name string) (statuses.Status, error) {
	return statuses.Status{}, apperr.DuplicateName("status", name)
}

func (stubStatuses) Remove(_ context.Context, p access.Principal, id string) error {
	return apperr.StatusInUse(id)
}

func (stubStatuses) List(_ context.Context, p access.Principal) ([]statuses.Status, error) {
	return nil, access.Admin(p)
}

type harness struct {
	router   http.Handler
	tokens   *auth.TokenIssuer
	orders   *stubOrders
	products *stubProducts
	users    *stubUsers
}

func newHarness(t *testing.T) harness {
	t.Helper()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour, "shop-api")
	h := harness{
		tokens:   tokens,
		orders:   &stubOrders{},
		products: &stubProducts{},
		users: &stubUsers{principals: map[string]access.Principal{
			aliceID: {ID: aliceID},
			adminID: {ID: adminID, IsAdmin: true},
		}},
	}
	h.router = NewRouter(Deps{
		Logger:   zaptest.NewLogger(t),
		Metrics:  observability.NewMetrics("test"),
		Tokens:   tokens,
		Users:    h.users,
		Products: h.products,
		Statuses: stubStatuses{},
		Orders:   h.orders,
	})
	return h
}

func (h harness) do(t *testing.T, method, path, userID, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		tok, err := h.tokens.Issue(userID, false)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateOrder_Created(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/orders", aliceID,
		`{"products":[{"product_id":"p-a","quantity":2},{"product_id":"p-b","quantity":2}]}`,
		"Idempotency-Key", "k-1")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "27.00", body["total_price"])
	assert.Equal(t, "Pending", body["status"])
	assert.Equal(t, aliceID, body["user_id"])
	assert.Len(t, body["products"], 2)

	assert.Equal(t, "k-1", h.orders.lastCreate.IdempotencyKey)
	require.Len(t, h.orders.lastCreate.Lines, 2)
	assert.Equal(t, orders.LineRequest{ProductID: "p-b", Quantity: 2}, h.orders.lastCreate.Lines[1])
}

func TestCreateOrder_Anonymous(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/orders", "", `{"products":[{"product_id":"p-a","quantity":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestCreateOrder_BadJSON(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{`{"products":`, `{"items":[]}`, `{} {}`} {
		rec := h.do(t, http.MethodPost, "/orders", aliceID, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation_error", decodeBody(t, rec)["error"])
	}
}

func TestCreateOrder_InsufficientStockEnvelope(t *testing.T) {
	h := newHarness(t)
	h.orders.err = apperr.InsufficientStock("p-a", 5, 6)

	rec := h.do(t, http.MethodPost, "/orders", aliceID, `{"products":[{"product_id":"p-a","quantity":6}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "insufficient_stock", body["error"])
	details := body["details"].(map[string]any)
	assert.EqualValues(t, 5, details["available"])
	assert.EqualValues(t, 6, details["requested"])
	assert.Equal(t, "p-a", details["product_id"])
}

func TestOrderErrors_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.OrderNotFound(orderID), http.StatusNotFound, "order_not_found"},
		{apperr.Forbidden("nope"), http.StatusForbidden, "forbidden"},
		{apperr.InvalidTransition("Processing", "Canceled"), http.StatusBadRequest, "invalid_transition"},
		{apperr.Configuration("required status %q is not registered", "Pending"), http.StatusInternalServerError, "configuration_error"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t)
			h.orders.err = tc.err
			rec := h.do(t, http.MethodGet, "/orders/"+orderID, aliceID, "")
			require.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tc.code, body["error"])
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestCancelOrder_NoContent(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodDelete, "/orders/"+orderID, aliceID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestUpdateOrderStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/orders/"+orderID+"/status", aliceID, `{"status":"Processing"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPut, "/orders/"+orderID+"/status", adminID, `{"status":"Processing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Processing", body["status"])
	assert.NotContains(t, body, "products")
}

func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// valid signature, unknown user
	rec = h.do(t, http.MethodGet, "/users/me", "1c8c3f6e-2d2b-4c1e-9f5a-0000000000ff", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/users/me", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, aliceID, decodeBody(t, rec)["id"])
}

func TestUsers_RegisterLoginAndAdminRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/users", "", `{"username":"alice","email":"alice@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "hashed_password")
	assert.NotContains(t, body, "password")

	rec = h.do(t, http.MethodPost, "/login", "", `{"username":"alice","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	assert.EqualValues(t, 1800, body["expires_in"])

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=alice&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rec = h.do(t, http.MethodGet, "/users", aliceID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodGet, "/users", adminID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPut, "/users/"+aliceID+"/role", adminID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPut, "/users/"+aliceID+"/role", adminID, `{"is_admin":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["is_admin"])

	rec = h.do(t, http.MethodDelete, "/users/"+aliceID, adminID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodDelete, "/users/"+aliceID, aliceID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUsers_Orders(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/users/"+aliceID+"/orders", aliceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "27.00", list[0]["total_price"])
	assert.NotContains(t, list[0], "products")

	rec = h.do(t, http.MethodGet, "/users/"+adminID+"/orders", aliceID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProducts_SearchParsing(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/products/search?name=tea&min_price=1.5&isAvailable=true&sort_by=price&sort_order=desc&page=2&page_size=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := h.products.lastQuery
	assert.Equal(t, "tea", q.Name)
	require.NotNil(t, q.MinPrice)
	assert.True(t, q.MinPrice.Equal(decimal.RequireFromString("1.5")))
	assert.Nil(t, q.MaxPrice)
	require.NotNil(t, q.IsAvailable)
	assert.True(t, *q.IsAvailable)
	assert.Equal(t, catalog.SortByPrice, q.SortBy)
	assert.True(t, q.Desc)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 5, q.PageSize)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["page"])
	assert.Equal(t, []any{}, body["products"])

	for _, bad := range []string{"min_price=abc", "sort_by=stock", "sort_order=up", "page=0", "isAvailable=maybe"} {
		rec := h.do(t, http.MethodGet, "/products/search?"+bad, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestProducts_CRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/products/p-1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "3.50", body["price"])
	assert.Equal(t, true, body["isAvailable"])

	rec = h.do(t, http.MethodPost, "/products", aliceID, `{"name":"Tea","price":"3.50"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, "/products", adminID, `{"name":"Tea","price":3.5,"stock":2}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "3.50", body["price"])
	assert.EqualValues(t, 2, body["stock"])
	assert.Equal(t, true, body["isAvailable"])

	rec = h.do(t, http.MethodPatch, "/products/p-1", adminID, `{"stock":9}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, h.products.lastPatch.Stock)
	assert.Equal(t, 9, *h.products.lastPatch.Stock)
	assert.Nil(t, h.products.lastPatch.Price)

	rec = h.do(t, http.MethodDelete, "/products/p-1", adminID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStatuses_Routes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/statuses", adminID, `{"name":"Shipped"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Shipped", decodeBody(t, rec)["name"])

	rec = h.do(t, http.MethodGet, "/statuses", aliceID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodGet, "/statuses/s-9", adminID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodPut, "/statuses/s-1", adminID, `{"name":"pending"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodDelete, "/statuses/s-1", adminID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status_in_use", decodeBody(t, rec)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	h.do(t, http.MethodGet, "/products/p-1", "", "")
	rec = h.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/products/{id}"`)
}
