package redisx

import "time"

const (
	// Order detail cache: order:detail:{order_id} -> JSON order with lines
	KeyOrderDetail = "order:detail:%s"

	// Lowest order version the detail cache may hold: order:floor:{order_id} -> int
	KeyOrderFloor = "order:floor:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderDetail = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
