package orders

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/access"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/statuses"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, (&statuses.Repo{DB: pool}).EnsureNames(ctx, statuses.WellKnown...))
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, price string, stock int) string {
	t.Helper()
	p := catalog.Product{
		ID:          uuid.NewString(),
		Name:        "it-" + uuid.NewString(),
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		IsAvailable: true,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, (&catalog.Repo{DB: pool}).Insert(context.Background(), p))
	return p.ID
}

func seedUser(t *testing.T, pool *pgxpool.Pool) access.Principal {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users(id, username, email, hashed_password) VALUES ($1,$2,$3,'x')`,
		id, "it-"+id, id+"@example.com")
	require.NoError(t, err)
	return access.Principal{ID: id}
}

func stockOf(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	p, err := (&catalog.Repo{DB: pool}).FindByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}

func TestPgStore_CreateCancelRoundTrip(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	svc := NewService(&PgStore{DB: pool}, zaptest.NewLogger(t))
	a := seedProduct(t, pool, "10.00", 5)
	b := seedProduct(t, pool, "3.50", 2)
	owner := seedUser(t, pool)

	o, err := svc.CreateOrder(ctx, owner, lines(b, 2, a, 2))
	require.NoError(t, err)
	assert.Equal(t, "27.00", o.TotalPrice.StringFixed(2))
	assert.Equal(t, 3, stockOf(t, pool, a))
	assert.Equal(t, 0, stockOf(t, pool, b))

	got, err := svc.GetOrderDetails(ctx, owner, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, b, got.Lines[0].ProductID)
	assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("27")))

	_, err = svc.CreateOrder(ctx, owner, lines(a, 4))
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 3, stockOf(t, pool, a))

	canceled, err := svc.CancelOrder(ctx, owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), canceled.Version)
	assert.Equal(t, 5, stockOf(t, pool, a))
	assert.Equal(t, 2, stockOf(t, pool, b))

	_, err = svc.CancelOrder(ctx, owner, o.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Equal(t, 5, stockOf(t, pool, a))
}

func TestPgStore_ConcurrentOrdersNeverOverdraw(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	svc := NewService(&PgStore{DB: pool}, zaptest.NewLogger(t))
	a := seedProduct(t, pool, "1.00", 7)
	b := seedProduct(t, pool, "2.00", 7)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		owner := seedUser(t, pool)
		// alternate line order so lock ordering is exercised
		req := lines(a, 1, b, 1)
		if i%2 == 1 {
			req = lines(b, 1, a, 1)
		}
		go func(req CreateRequest) {
			defer wg.Done()
			if _, err := svc.CreateOrder(ctx, owner, req); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
			}
		}(req)
	}
	wg.Wait()

	assert.Equal(t, 7, ok)
	assert.Equal(t, 0, stockOf(t, pool, a))
	assert.Equal(t, 0, stockOf(t, pool, b))
}

func TestPgStore_IdempotencyKey(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	svc := NewService(&PgStore{DB: pool}, zaptest.NewLogger(t))
	a := seedProduct(t, pool, "1.00", 3)
	owner := seedUser(t, pool)

	req := lines(a, 1)
	req.IdempotencyKey = "it-" + uuid.NewString()
	first, err := svc.CreateOrder(ctx, owner, req)
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, owner, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Lines, 1)
	assert.Equal(t, 2, stockOf(t, pool, a))
}

func TestPgStore_CreateForDeletedAccount(t *testing.T) {
	pool := testPool(t)
	svc := NewService(&PgStore{DB: pool}, zaptest.NewLogger(t))
	a := seedProduct(t, pool, "1.00", 3)
	ghost := access.Principal{ID: uuid.NewString()}

	_, err := svc.CreateOrder(context.Background(), ghost, lines(a, 1))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Equal(t, 3, stockOf(t, pool, a))
}
