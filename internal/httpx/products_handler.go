package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductService interface {
	Create(ctx context.Context, p access.Principal, in catalog.CreateInput) (catalog.Product, error)
	Update(ctx context.Context, p access.Principal, id string, patch catalog.Patch) (catalog.Product, error)
	Delete(ctx context.Context, p access.Principal, id string) error
	Get(ctx context.Context, id string) (catalog.Product, error)
	List(ctx context.Context) ([]catalog.Product, error)
	Search(ctx context.Context, q catalog.SearchQuery) (catalog.SearchResult, error)
}

type ProductsHandler struct {
	Products ProductService
	Logger   *zap.Logger
}

type createProductReq struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description *string         `json:"description"`
	Stock       *int            `json:"stock"`
	IsAvailable *bool           `json:"isAvailable"`
}

type updateProductReq struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Stock       *int             `json:"stock"`
	IsAvailable *bool            `json:"isAvailable"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/search", h.search)
	r.Get("/products/{id}", h.get)
	r.Post("/products", h.create)
	r.Patch("/products/{id}", h.update)
	r.Delete("/products/{id}", h.delete)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	in := catalog.CreateInput{Name: req.Name, Price: req.Price, Description: req.Description, IsAvailable: true}
	if req.Stock != nil {
		in.Stock = *req.Stock
	}
	if req.IsAvailable != nil {
		in.IsAvailable = *req.IsAvailable
	}
	p, err := h.Products.Create(r.Context(), principal(r), in)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProduct(p))
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProductReq
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	p, err := h.Products.Update(r.Context(), principal(r), chi.URLParam(r, "id"), catalog.Patch{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Stock:       req.Stock,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Products.List(r.Context())
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (h *ProductsHandler) search(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearch(r)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	res, err := h.Products.Search(r.Context(), q)
	if err != nil {
		WriteError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResp{
		Page:            res.Page,
		TotalPages:      res.TotalPages,
		ProductsPerPage: res.ProductsPerPage,
		TotalProducts:   res.TotalProducts,
		Products:        toProducts(res.Products),
	})
}

func parseSearch(r *http.Request) (catalog.SearchQuery, error) {
	v := r.URL.Query()
	q := catalog.SearchQuery{Name: v.Get("name"), Page: 1}

	for param, dst := range map[string]**decimal.Decimal{"min_price": &q.MinPrice, "max_price": &q.MaxPrice} {
		if raw := v.Get(param); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return q, apperr.Validation("%s must be a number", param)
			}
			*dst = &d
		}
	}
	avail := v.Get("isAvailable")
	if avail == "" {
		avail = v.Get("is_available")
	}
	if avail != "" {
		b, err := strconv.ParseBool(avail)
		if err != nil {
			return q, apperr.Validation("isAvailable must be true or false")
		}
		q.IsAvailable = &b
	}

	switch sortBy := strings.ToLower(v.Get("sort_by")); sortBy {
	case "", string(catalog.SortByName):
		q.SortBy = catalog.SortByName
	case string(catalog.SortByPrice):
		q.SortBy = catalog.SortByPrice
	default:
		return q, apperr.Validation("sort_by must be name or price")
	}
	switch order := strings.ToLower(v.Get("sort_order")); order {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return q, apperr.Validation("sort_order must be asc or desc")
	}

	for param, dst := range map[string]*int{"page": &q.Page, "page_size": &q.PageSize} {
		if raw := v.Get(param); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return q, apperr.Validation("%s must be a positive integer", param)
			}
			*dst = n
		}
	}
	return q, nil
}
