package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// SaveDefaultSchedule upserts the user's default schedule and replaces its rules in one transaction.
func (s *Store) SaveDefaultSchedule(ctx context.Context, sched model.Schedule) (model.Schedule, error) {
	name := sched.Name
	if name == "" {
		name = "Working hours"
	}
	var saved model.Schedule
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			INSERT INTO availability_schedules (user_id, name, timezone, is_default)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (user_id) WHERE is_default DO UPDATE
			SET timezone = EXCLUDED.timezone,
				updated_at = now()
			RETURNING id::text
		`, sched.UserID, name, sched.Timezone).Scan(&id)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM availability_rules WHERE schedule_id = $1`, id)
		for _, r := range sched.Rules {
			batch.Queue(`
				INSERT INTO availability_rules (schedule_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, $4)
			`, id, string(r.Day), r.Start.String(), r.End.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		saved, err = loadDefaultSchedule(ctx, tx, sched.UserID)
		return err
	})
	if err != nil {
		return model.Schedule{}, err
	}
	return saved, nil
}

// AddOverride stores o. A blocking override first removes the date's other overrides.
func (s *Store) AddOverride(ctx context.Context, o model.DateOverride) (model.DateOverride, error) {
	var saved model.DateOverride
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		if o.Blocked {
			if _, err := tx.Exec(ctx, `
				DELETE FROM availability_overrides
				WHERE user_id = $1 AND override_date = $2::date
			`, o.UserID, o.Date.String()); err != nil {
				return err
			}
		}

		var start, end *string
		if o.HasWindow() {
			sv, ev := o.Start.String(), o.End.String()
			start, end = &sv, &ev
		}
		var err error
		saved, err = scanOverride(tx.QueryRow(ctx, `
			INSERT INTO availability_overrides (user_id, override_date, start_time, end_time, is_blocked)
			VALUES ($1, $2::date, $3, $4, $5)
			RETURNING id::text, user_id::text, override_date, start_time, end_time, is_blocked
		`, o.UserID, o.Date.String(), start, end, o.Blocked))
		return err
	})
	if err != nil {
		return model.DateOverride{}, err
	}
	return saved, nil
}

func (s *Store) DeleteOverrides(ctx context.Context, userID string, date tz.Date) (int, error) {
	if !validID(userID) {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM availability_overrides
		WHERE user_id = $1::uuid AND override_date = $2::date
	`, userID, date.String())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
