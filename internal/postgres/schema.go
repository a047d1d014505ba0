package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT false,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS statuses (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS statuses_name_ci_idx ON statuses (lower(name))`,

	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		price NUMERIC(10,2) NOT NULL CHECK (price > 0),
		description TEXT,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		is_available BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS products_name_ci_idx ON products (lower(name))`,

	// user_id is a plain reference: user lifecycle is owned by the users module.
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		status_id UUID NOT NULL REFERENCES statuses(id),
		total_price NUMERIC(12,2) NOT NULL CHECK (total_price >= 0),
		idempotency_key TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	)`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1`,
	`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_idem_idx ON orders (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS order_lines (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders(id),
		line_no INTEGER NOT NULL,
		product_id UUID NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS order_lines_order_idx ON order_lines (order_id)`,

	`CREATE TABLE IF NOT EXISTS order_events (
		event_id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		order_id UUID NOT NULL,
		producer TEXT NOT NULL,
		payload JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_events_order_idx ON order_events (order_id)`,
}

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
