package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
)

// Tx is the view of the store inside one ACID transaction. ProductsForUpdate and
// OrderForUpdate must hold row locks until commit.
type Tx interface {
	StatusByName(ctx context.Context, name string) (*statuses.Status, error)
	ProductsForUpdate(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) error
	IncrementStock(ctx context.Context, productID string, qty int) error
	InsertOrder(ctx context.Context, o Order) error
	InsertLines(ctx context.Context, lines []Line) error
	// LockUser takes a key-share lock on the owner row and reports whether it exists.
	LockUser(ctx context.Context, userID string) (bool, error)
	OrderForUpdate(ctx context.Context, id string) (*Order, error)
	OrderByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error)
	Lines(ctx context.Context, orderID string) ([]Line, error)
	SetStatus(ctx context.Context, orderID, statusID string, at time.Time) error
}

type Store interface {
	// InTx commits when fn returns nil and rolls back everything otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Detail(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// DetailCache is an optional read-through cache for order details.
// Invalidate records version as a floor: a later Set carrying an older
// Version must be dropped, so a read that raced a transition cannot
// repopulate the cache with the superseded snapshot.
type DetailCache interface {
	Get(ctx context.Context, orderID string) (*Order, bool)
	Set(ctx context.Context, o Order)
	Invalidate(ctx context.Context, orderID string, version int64)
}

// EventSink publishes committed order events; delivery is best effort.
type EventSink interface {
	PublishJSON(topic string, key []byte, eventType string, v any)
}

// Observer receives engine outcomes for metrics.
type Observer interface {
	OrderCreated()
	OrderCanceled()
	StatusChanged(status string)
	StockRejected()
}
