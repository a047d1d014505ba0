package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             string
	UserID         string
	StatusID       string
	StatusName     string
	TotalPrice     decimal.Decimal
	IdempotencyKey *string
	// Version starts at 1 and grows by one with every status change.
	Version   int64
	CreatedAt time.Time
	UpdatedAt *time.Time
	Lines     []Line
}

// Line is one product/quantity pair persisted with its order.
type Line struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateRequest struct {
	Lines []LineRequest
	// IdempotencyKey, when set, makes a retried create return the first order.
	IdempotencyKey string
}
