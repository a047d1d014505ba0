package statuses

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const statusColumns = `id, name, created_at, updated_at`

type Repo struct{ DB postgres.DBTX }

func scanStatus(row pgx.Row) (*Status, error) {
	var s Status
	err := row.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Status, error) {
	return scanStatus(r.DB.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id=$1`, id))
}

// FindByName matches case-insensitively; nil when absent.
func (r *Repo) FindByName(ctx context.Context, name string) (*Status, error) {
	return scanStatus(r.DB.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses WHERE lower(name)=lower($1)`, name))
}

func (r *Repo) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM statuses WHERE lower(name)=lower($1) AND ($2 = '' OR id::text <> $2))`,
		name, excludeID).Scan(&exists)
	return exists, err
}

func (r *Repo) Insert(ctx context.Context, s Status) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO statuses(id, name, created_at) VALUES ($1,$2,$3)`, s.ID, s.Name, s.CreatedAt)
	return err
}

func (r *Repo) Update(ctx context.Context, s Status) error {
	ct, err := r.DB.Exec(ctx, `UPDATE statuses SET name=$2, updated_at=$3 WHERE id=$1`, s.ID, s.Name, s.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]Status, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+statusColumns+` FROM statuses ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Status{}
	for rows.Next() {
		var s Status
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EnsureNames inserts the given statuses unless a case-insensitive match exists.
func (r *Repo) EnsureNames(ctx context.Context, names ...string) error {
	for _, n := range names {
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO statuses(id, name) VALUES ($1,$2)
			ON CONFLICT ((lower(name))) DO NOTHING`, uuid.NewString(), n); err != nil {
			return err
		}
	}
	return nil
}

// PgStore adds the operations that need their own transaction.
type PgStore struct {
	Repo
	Pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Repo: Repo{DB: pool}, Pool: pool}
}

// DeleteUnused locks the status row so no order can reference it concurrently,
// then deletes it if no order does.
func (s *PgStore) DeleteUnused(ctx context.Context, id string) (found, inUse bool, err error) {
	err = postgres.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM statuses WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE status_id=$1)`, id).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return nil
		}
		_, err := tx.Exec(ctx, `DELETE FROM statuses WHERE id=$1`, id)
		return err
	})
	return found, inUse, err
}
