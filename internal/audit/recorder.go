package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

type Event struct {
	EventID    string
	EventType  string
	OrderID    string
	Producer   string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// PgRecorder appends events to order_events. Replays are absorbed by the primary key.
type PgRecorder struct{ DB postgres.DBTX }

func (r *PgRecorder) Record(ctx context.Context, e Event) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO order_events(event_id, event_type, order_id, producer, payload, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.EventType, e.OrderID, e.Producer, []byte(e.Payload), e.OccurredAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
