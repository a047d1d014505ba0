package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description *string
	Stock       int
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// Patch carries the fields of a partial product update; nil fields are left untouched.
type Patch struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	Stock       *int
	IsAvailable *bool
}

type SortField string

const (
	SortByName  SortField = "name"
	SortByPrice SortField = "price"
)

type SearchQuery struct {
	Name        string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	IsAvailable *bool
	SortBy      SortField
	Desc        bool
	Page        int
	PageSize    int
}

type SearchResult struct {
	Page            int
	TotalPages      int
	ProductsPerPage int
	TotalProducts   int
	Products        []Product
}
