package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// setIfCurrent writes the detail only when its version is not below the floor
// left by the last invalidation.
var setIfCurrent = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// invalidate drops the detail and raises the floor, never lowering it.
var invalidate = redis.NewScript(`
redis.call('DEL', KEYS[1])
local floor = redis.call('GET', KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
return 1
`)

// OrderCache keeps order details read-through. Failures are logged and treated
// as misses; postgres stays the source of truth.
type OrderCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewOrderCache(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *OrderCache {
	if ttl <= 0 {
		ttl = TTLOrderDetail
	}
	return &OrderCache{rdb: rdb, ttl: ttl, logger: logger}
}

type cachedLine struct {
	ID        string     `json:"id"`
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type cachedOrder struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	StatusID       string          `json:"status_id"`
	StatusName     string          `json:"status_name"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      *time.Time      `json:"updated_at,omitempty"`
	Lines          []cachedLine    `json:"lines"`
}

func (c *OrderCache) Get(ctx context.Context, orderID string) (*orders.Order, bool) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderDetail, orderID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("order cache get", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, false
	}
	var co cachedOrder
	if err := json.Unmarshal(raw, &co); err != nil {
		c.logger.Warn("order cache decode", zap.String("order_id", orderID), zap.Error(err))
		return nil, false
	}
	o := orders.Order{
		ID:             co.ID,
		UserID:         co.UserID,
		StatusID:       co.StatusID,
		StatusName:     co.StatusName,
		TotalPrice:     co.TotalPrice,
		IdempotencyKey: co.IdempotencyKey,
		Version:        co.Version,
		CreatedAt:      co.CreatedAt,
		UpdatedAt:      co.UpdatedAt,
	}
	for _, l := range co.Lines {
		o.Lines = append(o.Lines, orders.Line{
			ID:        l.ID,
			OrderID:   co.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			CreatedAt: l.CreatedAt,
			UpdatedAt: l.UpdatedAt,
		})
	}
	return &o, true
}

func (c *OrderCache) Set(ctx context.Context, o orders.Order) {
	co := cachedOrder{
		ID:             o.ID,
		UserID:         o.UserID,
		StatusID:       o.StatusID,
		StatusName:     o.StatusName,
		TotalPrice:     o.TotalPrice,
		IdempotencyKey: o.IdempotencyKey,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Lines:          make([]cachedLine, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		co.Lines = append(co.Lines, cachedLine{
			ID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt,
		})
	}
	b, err := json.Marshal(co)
	if err != nil {
		c.logger.Warn("order cache encode", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	keys := []string{fmt.Sprintf(KeyOrderDetail, o.ID), fmt.Sprintf(KeyOrderFloor, o.ID)}
	stored, err := setIfCurrent.Run(ctx, c.rdb, keys, b, o.Version, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("order cache set", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	if stored == 0 {
		c.logger.Debug("order cache set skipped, snapshot superseded",
			zap.String("order_id", o.ID), zap.Int64("version", o.Version))
	}
}

// Invalidate drops the cached detail and refuses any later Set older than version.
// The floor outlives the detail TTL so a stalled reader cannot slip in after it expires.
func (c *OrderCache) Invalidate(ctx context.Context, orderID string, version int64) {
	keys := []string{fmt.Sprintf(KeyOrderDetail, orderID), fmt.Sprintf(KeyOrderFloor, orderID)}
	if err := invalidate.Run(ctx, c.rdb, keys, version, (2 * c.ttl).Milliseconds()).Err(); err != nil {
		c.logger.Warn("order cache invalidate", zap.String("order_id", orderID), zap.Error(err))
	}
}
