// Command availability-sim runs the availability engine and the booking write path over a YAML fixture
// held in memory. It needs no database, broker or calendar provider.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/memstore"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "availability-sim",
		Usage: "Compute slots and book them against fixture data.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "fixture", Aliases: []string{"f"}, Required: true, EnvVars: []string{"SIM_FIXTURE"}, Usage: "YAML fixture file"},
			&cli.StringFlag{Name: "now", EnvVars: []string{"SIM_NOW"}, Usage: "pin the current time (RFC 3339)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log engine activity to stderr"},
		},
		Commands: []*cli.Command{
			slotsCommand(),
			bookCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("availability-sim failed", "err", err)
		os.Exit(1)
	}
}

func slotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "slots",
		Usage: "Print the bookable slots of a template for one guest-local date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Required: true, Usage: "YYYY-MM-DD in the guest timezone"},
			&cli.StringFlag{Name: "timezone", Value: model.DefaultScheduleTimezone, Usage: "guest IANA timezone"},
		},
		Action: func(c *cli.Context) error {
			env, err := newSimEnv(c)
			if err != nil {
				return err
			}
			date, err := tz.ParseDate(c.String("date"))
			if err != nil {
				return err
			}
			return env.printSlots(c.Context, c.App.Writer, availability.Query{
				TemplateID:    c.String("template"),
				Date:          date,
				GuestTimezone: c.String("timezone"),
			})
		},
	}
}

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:  "book",
		Usage: "Book one slot and print the stored booking and the events it emitted.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Required: true},
			&cli.StringFlag{Name: "start", Required: true, Usage: "slot start (RFC 3339)"},
			&cli.StringFlag{Name: "timezone", Value: model.DefaultScheduleTimezone, Usage: "guest IANA timezone"},
			&cli.StringFlag{Name: "name", Value: "Sim Guest"},
			&cli.StringFlag{Name: "email", Value: "guest@example.com"},
			&cli.StringFlag{Name: "notes"},
			&cli.StringFlag{Name: "idempotency-key"},
		},
		Action: func(c *cli.Context) error {
			env, err := newSimEnv(c)
			if err != nil {
				return err
			}
			start, err := time.Parse(time.RFC3339, c.String("start"))
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			return env.book(c.Context, c.App.Writer, booking.Request{
				TemplateID:    c.String("template"),
				StartTime:     start,
				GuestName:     c.String("name"),
				GuestEmail:    c.String("email"),
				GuestTimezone: c.String("timezone"),
				GuestNotes:    c.String("notes"),
			}, c.String("idempotency-key"))
		},
	}
}

type simEnv struct {
	store   *memstore.Store
	engine  *availability.Engine
	service *booking.Service
}

func newSimEnv(c *cli.Context) (*simEnv, error) {
	st, err := loadFixture(c.String("fixture"))
	if err != nil {
		return nil, err
	}
	now := time.Now
	if raw := c.String("now"); raw != "" {
		pinned, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("now: %w", err)
		}
		now = func() time.Time { return pinned }
	}
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
	return buildEnv(st, now, logger), nil
}

func buildEnv(st *memstore.Store, now func() time.Time, logger *slog.Logger) *simEnv {
	st.SetClock(now)
	engine := availability.NewEngine(st, busy.NewFetcher(st, time.Second, logger), logger, availability.WithClock(now))
	return &simEnv{
		store:   st,
		engine:  engine,
		service: booking.NewService(st, engine, nil, logger, booking.WithClock(now)),
	}
}

type slotOut struct {
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Eligible []string `json:"eligible"`
}

func (e *simEnv) printSlots(ctx context.Context, w io.Writer, q availability.Query) error {
	slots, err := e.engine.Slots(ctx, q)
	if err != nil {
		return err
	}
	guest, err := tz.LoadZone(q.GuestTimezone)
	if err != nil {
		return err
	}
	out := make([]slotOut, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotOut{
			Start:    s.Start.In(guest).Format(time.RFC3339),
			End:      s.End.In(guest).Format(time.RFC3339),
			Eligible: s.Eligible,
		})
	}
	return writeJSON(w, map[string]any{
		"template_id": q.TemplateID,
		"date":        q.Date.String(),
		"timezone":    q.GuestTimezone,
		"slots":       out,
	})
}

type bookingOut struct {
	ID             string    `json:"id"`
	TemplateID     string    `json:"template_id"`
	AssignedUserID string    `json:"assigned_user_id"`
	Start          time.Time `json:"start_time"`
	End            time.Time `json:"end_time"`
	Status         string    `json:"status"`
	Replayed       bool      `json:"replayed"`
	Events         []string  `json:"events"`
}

func (e *simEnv) book(ctx context.Context, w io.Writer, req booking.Request, idempotencyKey string) error {
	b, replayed, err := e.service.Book(ctx, req, idempotencyKey)
	if err != nil {
		return err
	}
	out := bookingOut{
		ID:             b.ID,
		TemplateID:     b.TemplateID,
		AssignedUserID: b.AssignedUserID,
		Start:          b.StartTime,
		End:            b.EndTime,
		Status:         string(b.Status),
		Replayed:       replayed,
		Events:         []string{},
	}
	for _, evt := range e.store.Events() {
		out.Events = append(out.Events, evt.EventType)
	}
	return writeJSON(w, out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
