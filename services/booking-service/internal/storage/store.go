package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// Store is the Postgres implementation of the availability and booking stores.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewStore(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) LoadTemplate(ctx context.Context, templateID string) (model.EventTemplate, error) {
	if !validID(templateID) {
		return model.EventTemplate{}, model.ErrNotFound
	}
	var t model.EventTemplate
	var mode, platform string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, owner_id::text, title, description, location,
			duration_minutes, buffer_before_minutes, buffer_after_minutes,
			min_notice_minutes, max_advance_days, scheduling_mode, meeting_platform, is_active
		FROM event_templates
		WHERE id = $1::uuid
	`, templateID).Scan(
		&t.ID,
		&t.OwnerID,
		&t.Title,
		&t.Description,
		&t.Location,
		&t.DurationMinutes,
		&t.BufferBeforeMinutes,
		&t.BufferAfterMinutes,
		&t.MinNoticeMinutes,
		&t.MaxAdvanceDays,
		&mode,
		&platform,
		&t.Active,
	)
	if err != nil {
		return model.EventTemplate{}, notFound(err)
	}
	t.Mode = model.SchedulingMode(mode)
	t.Platform = model.MeetingPlatform(platform)

	rows, err := s.pool.Query(ctx, `
		SELECT user_id::text
		FROM event_template_members
		WHERE template_id = $1
		ORDER BY position ASC, user_id ASC
	`, t.ID)
	if err != nil {
		return model.EventTemplate{}, err
	}
	t.MemberIDs, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return model.EventTemplate{}, err
	}
	return t, nil
}

func (s *Store) LoadUser(ctx context.Context, userID string) (model.User, error) {
	if !validID(userID) {
		return model.User{}, model.ErrNotFound
	}
	var u model.User
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, name, email FROM users WHERE id = $1::uuid
	`, userID).Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		return model.User{}, notFound(err)
	}
	return u, nil
}

func (s *Store) LoadDefaultSchedule(ctx context.Context, userID string) (model.Schedule, error) {
	return loadDefaultSchedule(ctx, s.pool, userID)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadDefaultSchedule(ctx context.Context, q querier, userID string) (model.Schedule, error) {
	if !validID(userID) {
		return model.Schedule{}, model.ErrNotFound
	}
	var sched model.Schedule
	err := q.QueryRow(ctx, `
		SELECT id::text, user_id::text, name, timezone, is_default
		FROM availability_schedules
		WHERE user_id = $1::uuid AND is_default
	`, userID).Scan(&sched.ID, &sched.UserID, &sched.Name, &sched.Timezone, &sched.IsDefault)
	if err != nil {
		return model.Schedule{}, notFound(err)
	}

	rows, err := q.Query(ctx, `
		SELECT day_of_week, start_time, end_time
		FROM availability_rules
		WHERE schedule_id = $1
		ORDER BY id ASC
	`, sched.ID)
	if err != nil {
		return model.Schedule{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var day, start, end string
		if err := rows.Scan(&day, &start, &end); err != nil {
			return model.Schedule{}, err
		}
		rule, err := parseRule(day, start, end)
		if err != nil {
			return model.Schedule{}, fmt.Errorf("schedule %s: %w", sched.ID, err)
		}
		sched.Rules = append(sched.Rules, rule)
	}
	if rows.Err() != nil {
		return model.Schedule{}, rows.Err()
	}
	return sched, nil
}

func (s *Store) LoadOverrides(ctx context.Context, userID string, from, to tz.Date) ([]model.DateOverride, error) {
	if !validID(userID) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, user_id::text, override_date, start_time, end_time, is_blocked
		FROM availability_overrides
		WHERE user_id = $1::uuid AND override_date BETWEEN $2::date AND $3::date
		ORDER BY override_date ASC, created_at ASC
	`, userID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) LoadConfirmedBookings(ctx context.Context, templateID string, start, end time.Time) ([]model.Booking, error) {
	if !validID(templateID) {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE template_id = $1::uuid
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, templateID, start, end)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	if !validID(bookingID) {
		return model.Booking{}, model.ErrNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1::uuid
	`, bookingID)
	if err != nil {
		return model.Booking{}, err
	}
	return oneBooking(rows)
}

func (s *Store) ListBookings(ctx context.Context, templateID string, limit int) ([]model.Booking, error) {
	if !validID(templateID) {
		return []model.Booking{}, nil
	}
	if limit <= 0 {
		limit = booking.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE template_id = $1::uuid
		ORDER BY start_time DESC
		LIMIT $2
	`, templateID, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Store) AttachMeeting(ctx context.Context, bookingID, meetingURL, meetingID, calendarEventID string) error {
	if !validID(bookingID) {
		return model.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET meeting_url = $2,
			meeting_id = $3,
			calendar_event_id = $4,
			updated_at = now()
		WHERE id = $1::uuid
	`, bookingID, meetingURL, meetingID, calendarEventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) Begin(ctx context.Context) (booking.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, outbox: s.outbox}, nil
}

const bookingColumns = `id::text, template_id::text, assigned_user_id::text, guest_name, guest_email,
	guest_timezone, guest_notes, start_time, end_time, status, meeting_url, meeting_id, calendar_event_id,
	cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanBooking(row pgx.CollectableRow) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.TemplateID,
		&b.AssignedUserID,
		&b.GuestName,
		&b.GuestEmail,
		&b.GuestTimezone,
		&b.GuestNotes,
		&b.StartTime,
		&b.EndTime,
		&status,
		&b.MeetingURL,
		&b.MeetingID,
		&b.CalendarEventID,
		&b.CancelledAt,
		&b.CancellationReason,
		&b.CreatedAt,
	)
	b.Status = model.BookingStatus(status)
	return b, err
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	return pgx.CollectRows(rows, scanBooking)
}

func oneBooking(rows pgx.Rows) (model.Booking, error) {
	b, err := pgx.CollectExactlyOneRow(rows, scanBooking)
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

func scanOverride(row pgx.Row) (model.DateOverride, error) {
	var o model.DateOverride
	var date time.Time
	var start, end *string
	if err := row.Scan(&o.ID, &o.UserID, &date, &start, &end, &o.Blocked); err != nil {
		return model.DateOverride{}, err
	}
	o.Date = tz.DateOf(date)
	if start != nil && end != nil {
		sc, err := tz.ParseClock(*start)
		if err != nil {
			return model.DateOverride{}, fmt.Errorf("override %s: %w", o.ID, err)
		}
		ec, err := tz.ParseClock(*end)
		if err != nil {
			return model.DateOverride{}, fmt.Errorf("override %s: %w", o.ID, err)
		}
		o.Start, o.End = &sc, &ec
	}
	return o, nil
}

func parseRule(day, start, end string) (model.WeeklyRule, error) {
	wd, err := tz.ParseWeekday(day)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	sc, err := tz.ParseClock(start)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	ec, err := tz.ParseClock(end)
	if err != nil {
		return model.WeeklyRule{}, err
	}
	return model.WeeklyRule{Day: wd, Start: sc, End: ec}, nil
}

// validID reports whether id can name a row. Keys are uuids and are compared as uuids so the
// primary key and user_id indexes apply.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// notFound maps pgx.ErrNoRows and malformed uuid input to model.ErrNotFound.
func notFound(err error) error {
	if IsNotFound(err) || isInvalidText(err) {
		return model.ErrNotFound
	}
	return err
}

// IsConflict reports an exclusion-constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
