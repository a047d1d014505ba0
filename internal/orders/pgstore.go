package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderSelect = `
	SELECT o.id, o.user_id, o.status_id, s.name, o.total_price, o.idempotency_key, o.version, o.created_at, o.updated_at
	FROM orders o JOIN statuses s ON s.id = o.status_id`

type PgStore struct{ DB *pgxpool.Pool }

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return postgres.WithTx(ctx, s.DB, func(tx pgx.Tx) error {
		return fn(&pgTx{
			tx:       tx,
			products: &catalog.Repo{DB: tx},
			statuses: &statuses.Repo{DB: tx},
		})
	})
}

func (s *PgStore) Detail(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, orderSelect+` WHERE o.id=$1`, id))
	if err != nil || o == nil {
		return nil, err
	}
	if o.Lines, err = queryLines(ctx, s.DB, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PgStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, orderSelect+` WHERE o.user_id=$1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx       pgx.Tx
	products *catalog.Repo
	statuses *statuses.Repo
}

func (t *pgTx) StatusByName(ctx context.Context, name string) (*statuses.Status, error) {
	return t.statuses.FindByName(ctx, name)
}

func (t *pgTx) ProductsForUpdate(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	return t.products.FindManyByID(ctx, ids, true)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	return t.products.DecrementStock(ctx, productID, qty)
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) error {
	return t.products.IncrementStock(ctx, productID, qty)
}

func (t *pgTx) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status_id, total_price, idempotency_key, version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.UserID, o.StatusID, o.TotalPrice.StringFixed(2), o.IdempotencyKey, o.Version, o.CreatedAt)
	return err
}

func (t *pgTx) InsertLines(ctx context.Context, lines []Line) error {
	for i, l := range lines {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, line_no, product_id, quantity, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			l.ID, l.OrderID, i, l.ProductID, l.Quantity, l.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// LockUser blocks a concurrent account deletion until this transaction ends.
func (t *pgTx) LockUser(ctx context.Context, userID string) (bool, error) {
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR KEY SHARE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t *pgTx) OrderForUpdate(ctx context.Context, id string) (*Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.id=$1 FOR UPDATE OF o`, id))
}

func (t *pgTx) OrderByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.user_id=$1 AND o.idempotency_key=$2`, userID, key))
	if err != nil || o == nil {
		return nil, err
	}
	if o.Lines, err = queryLines(ctx, t.tx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) Lines(ctx context.Context, orderID string) ([]Line, error) {
	return queryLines(ctx, t.tx, orderID)
}

func (t *pgTx) SetStatus(ctx context.Context, orderID, statusID string, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status_id=$2, updated_at=$3, version=version+1 WHERE id=$1`, orderID, statusID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.StatusID, &o.StatusName, &o.TotalPrice, &o.IdempotencyKey, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func queryLines(ctx context.Context, db postgres.DBTX, orderID string) ([]Line, error) {
	rows, err := db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, created_at, updated_at
		FROM order_lines WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
