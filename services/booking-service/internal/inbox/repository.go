// Package inbox records consumed event ids so redelivered Kafka messages are processed once.
package inbox

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record stores the event and reports false when its id was already present.
func (r *Repository) Record(ctx context.Context, meta kafkax.EventMeta) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type, aggregate_id)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (event_id) DO NOTHING
	`, meta.EventID, meta.EventType, meta.AggregateID)
	if err != nil {
		return false, fmt.Errorf("record %s: %w", meta.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Forget(ctx context.Context, eventID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("forget %s: %w", eventID, err)
	}
	return nil
}
