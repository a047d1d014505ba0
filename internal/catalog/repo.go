package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, price, description, stock, is_available, created_at, updated_at`

// Repo is the Catalog Store. Bound to a pool it runs standalone; bound to a pgx.Tx
// every call participates in the caller's transaction.
type Repo struct{ DB postgres.DBTX }

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Stock, &p.IsAvailable, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// FindByID returns the product or (nil, nil) when absent.
func (r *Repo) FindByID(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindManyByID fetches products by id. With forUpdate the rows are locked in id
// order so concurrent orders over overlapping products cannot deadlock.
func (r *Repo) FindManyByID(ctx context.Context, ids []string, forUpdate bool) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			// unparseable ids can't match any row
			continue
		}
		keys = append(keys, u)
	}
	q := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	rows, err := r.DB.Query(ctx, q, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) DecrementStock(ctx context.Context, id string, qty int) error {
	return r.adjustStock(ctx, id, -qty)
}

func (r *Repo) IncrementStock(ctx context.Context, id string, qty int) error {
	return r.adjustStock(ctx, id, qty)
}

func (r *Repo) adjustStock(ctx context.Context, id string, delta int) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("adjust stock: product %s: %w", id, pgx.ErrNoRows)
	}
	return nil
}

func (r *Repo) Insert(ctx context.Context, p Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, price, description, stock, is_available, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.Price.StringFixed(2), p.Description, p.Stock, p.IsAvailable, p.CreatedAt)
	return err
}

func (r *Repo) Update(ctx context.Context, p Product) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, price=$3, description=$4, stock=$5, is_available=$6, updated_at=$7
		WHERE id=$1`,
		p.ID, p.Name, p.Price.StringFixed(2), p.Description, p.Stock, p.IsAvailable, p.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// NameTaken reports whether another product already uses name (case-insensitive).
func (r *Repo) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM products WHERE lower(name) = lower($1) AND ($2 = '' OR id::text <> $2))`,
		name, excludeID).Scan(&exists)
	return exists, err
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Search filters, sorts and paginates. q must already be normalised.
func (r *Repo) Search(ctx context.Context, q SearchQuery) ([]Product, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Name != "" {
		where = append(where, "name ILIKE "+arg("%"+escapeLike(q.Name)+"%"))
	}
	if q.MinPrice != nil {
		where = append(where, "price >= "+arg(q.MinPrice.String())+"::numeric")
	}
	if q.MaxPrice != nil {
		where = append(where, "price <= "+arg(q.MaxPrice.String())+"::numeric")
	}
	if q.IsAvailable != nil {
		where = append(where, "is_available = "+arg(*q.IsAvailable))
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`+filter, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "name"
	if q.SortBy == SortByPrice {
		order = "price"
	}
	if q.Desc {
		order += " DESC"
	}
	limit := arg(q.PageSize)
	offset := arg((q.Page - 1) * q.PageSize)
	rows, err := r.DB.Query(ctx,
		`SELECT `+productColumns+` FROM products`+filter+` ORDER BY `+order+`, id LIMIT `+limit+` OFFSET `+offset,
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
