package users

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, email, hashed_password, is_admin, is_active, created_at, updated_at`

type Repo struct{ DB postgres.DBTX }

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.IsAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *Repo) FindByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username))
}

func (r *Repo) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE lower(email)=lower($1) AND ($2 = '' OR id::text <> $2))`,
		email, excludeID).Scan(&exists)
	return exists, err
}

func (r *Repo) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE username=$1 AND ($2 = '' OR id::text <> $2))`,
		username, excludeID).Scan(&exists)
	return exists, err
}

func (r *Repo) Insert(ctx context.Context, u User) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(id, username, email, hashed_password, is_admin, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.HashedPassword, u.IsAdmin, u.IsActive, u.CreatedAt)
	return err
}

func (r *Repo) Update(ctx context.Context, u User) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE users SET username=$2, email=$3, hashed_password=$4, is_admin=$5, is_active=$6, updated_at=$7
		WHERE id=$1`,
		u.ID, u.Username, u.Email, u.HashedPassword, u.IsAdmin, u.IsActive, u.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]User, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// PgStore adds the operations that need their own transaction.
type PgStore struct {
	Repo
	Pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Repo: Repo{DB: pool}, Pool: pool}
}

// DeleteIfIdle locks the user row, then deletes it unless the user owns a
// Pending or Processing order. Order creation holds a key-share lock on the
// same row, so no order can slip in between the check and the delete.
func (s *PgStore) DeleteIfIdle(ctx context.Context, id string) (found, active bool, err error) {
	err = postgres.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM orders o JOIN statuses s ON s.id = o.status_id
				WHERE o.user_id=$1 AND lower(s.name) IN ('pending','processing'))`, id).Scan(&active); err != nil {
			return err
		}
		if active {
			return nil
		}
		_, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		return err
	})
	return found, active, err
}
