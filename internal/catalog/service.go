package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Store interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	Insert(ctx context.Context, p Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id string) (bool, error)
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	List(ctx context.Context) ([]Product, error)
	Search(ctx context.Context, q SearchQuery) ([]Product, int, error)
}

type Service struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{Store: store, Logger: logger, Now: time.Now}
}

type CreateInput struct {
	Name        string
	Price       decimal.Decimal
	Description *string
	Stock       int
	IsAvailable bool
}

func (s *Service) Create(ctx context.Context, p access.Principal, in CreateInput) (Product, error) {
	if err := access.Admin(p); err != nil {
		return Product{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate(in.Name, in.Price, in.Stock); err != nil {
		return Product{}, err
	}
	if err := s.ensureUniqueName(ctx, in.Name, ""); err != nil {
		return Product{}, err
	}

	prod := Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Price:       in.Price.Round(2),
		Description: in.Description,
		Stock:       in.Stock,
		IsAvailable: in.IsAvailable,
		CreatedAt:   s.Now().UTC(),
	}
	if err := s.Store.Insert(ctx, prod); err != nil {
		return Product{}, s.fail("insert product", prod.ID, err, in.Name)
	}
	return prod, nil
}

func (s *Service) Update(ctx context.Context, p access.Principal, id string, patch Patch) (Product, error) {
	if err := access.Admin(p); err != nil {
		return Product{}, err
	}
	prod, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if err := s.ensureUniqueName(ctx, name, id); err != nil {
			return Product{}, err
		}
		prod.Name = name
	}
	if patch.Price != nil {
		prod.Price = *patch.Price
	}
	if patch.Description != nil {
		prod.Description = patch.Description
	}
	if patch.Stock != nil {
		prod.Stock = *patch.Stock
	}
	if patch.IsAvailable != nil {
		prod.IsAvailable = *patch.IsAvailable
	}
	if err := validate(prod.Name, prod.Price, prod.Stock); err != nil {
		return Product{}, err
	}
	prod.Price = prod.Price.Round(2)
	now := s.Now().UTC()
	prod.UpdatedAt = &now
	if err := s.Store.Update(ctx, prod); err != nil {
		return Product{}, s.fail("update product", id, err, prod.Name)
	}
	return prod, nil
}

func (s *Service) Delete(ctx context.Context, p access.Principal, id string) error {
	if err := access.Admin(p); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFound("product", id)
	}
	ok, err := s.Store.Delete(ctx, id)
	if err != nil {
		return s.fail("delete product", id, err, "")
	}
	if !ok {
		return apperr.NotFound("product", id)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Product{}, apperr.NotFound("product", id)
	}
	prod, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return Product{}, s.fail("get product", id, err, "")
	}
	if prod == nil {
		return Product{}, apperr.NotFound("product", id)
	}
	return *prod, nil
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	ps, err := s.Store.List(ctx)
	if err != nil {
		return nil, s.fail("list products", "", err, "")
	}
	return ps, nil
}

func (s *Service) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		return SearchResult{}, apperr.Validation("page_size must be at most %d", MaxPageSize)
	}
	if q.SortBy != SortByPrice {
		q.SortBy = SortByName
	}
	q.Name = strings.TrimSpace(q.Name)
	if q.MinPrice != nil && q.MaxPrice != nil && q.MinPrice.GreaterThan(*q.MaxPrice) {
		return SearchResult{}, apperr.Validation("min_price must not exceed max_price")
	}

	ps, total, err := s.Store.Search(ctx, q)
	if err != nil {
		return SearchResult{}, s.fail("search products", "", err, q.Name)
	}
	return SearchResult{
		Page:            q.Page,
		TotalPages:      (total + q.PageSize - 1) / q.PageSize,
		ProductsPerPage: q.PageSize,
		TotalProducts:   total,
		Products:        ps,
	}, nil
}

func (s *Service) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	taken, err := s.Store.NameTaken(ctx, name, excludeID)
	if err != nil {
		return s.fail("check product name", excludeID, err, name)
	}
	if taken {
		return apperr.DuplicateName("product", name)
	}
	return nil
}

func (s *Service) fail(op, id string, err error, name string) error {
	translated := postgres.Translate(err, "product")
	if apperr.IsKind(translated, apperr.KindDuplicateName) {
		return apperr.DuplicateName("product", name)
	}
	s.Logger.Error("catalog store failure", zap.String("op", op), zap.String("product_id", id), zap.Error(err))
	return translated
}

func validate(name string, price decimal.Decimal, stock int) error {
	if name == "" {
		return apperr.Validation("product name is required")
	}
	if !price.IsPositive() {
		return apperr.Validation("price must be greater than 0")
	}
	if !price.Equal(price.Round(2)) {
		return apperr.Validation("price supports at most two decimal places")
	}
	if stock < 0 {
		return apperr.Validation("stock must not be negative")
	}
	return nil
}
