// Package postgres implements the store contracts on PostgreSQL. Schema
// migrations are embedded and applied at startup.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for the migrator
	"github.com/pressly/goose/v3"

	"github.com/voicebridge-ai/voicebridge/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool *pgxpool.Pool
}

var _ store.CallLog = (*Store)(nil)
var _ store.Appointments = (*Store)(nil)

// Open connects to the database and brings the schema up to date.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, cfg.ConnConfig.ConnString()); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) StartCall(ctx context.Context, call store.Call) error {
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now()
	}
	if call.Status == "" {
		call.Status = store.CallInProgress
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calls (call_sid, stream_sid, status, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (call_sid) DO UPDATE
		SET stream_sid = EXCLUDED.stream_sid, status = EXCLUDED.status`,
		call.CallSID, call.StreamSID, string(call.Status), call.StartedAt)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *Store) UpdateCallStatus(ctx context.Context, callSID string, status store.CallStatus) error {
	var ended *time.Time
	if status == store.CallCompleted || status == store.CallFailed {
		now := time.Now()
		ended = &now
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE calls SET status = $2, ended_at = COALESCE($3, ended_at)
		WHERE call_sid = $1`,
		callSID, string(status), ended)
	if err != nil {
		return fmt.Errorf("update call status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call %s: %w", callSID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendTranscript(ctx context.Context, frag store.TranscriptFragment) error {
	if frag.CreatedAt.IsZero() {
		frag.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (call_sid, speaker, text, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		frag.CallSID, frag.Speaker, frag.Text, frag.Confidence, frag.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (s *Store) Transcript(ctx context.Context, callSID string) ([]store.TranscriptFragment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT call_sid, speaker, text, confidence, created_at
		FROM transcripts WHERE call_sid = $1 ORDER BY id`,
		callSID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []store.TranscriptFragment
	for rows.Next() {
		var frag store.TranscriptFragment
		if err := rows.Scan(&frag.CallSID, &frag.Speaker, &frag.Text, &frag.Confidence, &frag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, frag)
	}
	return out, rows.Err()
}

func (s *Store) CreateAppointment(ctx context.Context, appt store.Appointment) error {
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now()
	}
	if appt.Status == "" {
		appt.Status = store.AppointmentConfirmed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments
			(reference, call_sid, customer_name, customer_phone, date, time, service_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		appt.Reference, appt.CallSID, appt.CustomerName, appt.CustomerPhone,
		appt.Date, appt.Time, appt.ServiceType, string(appt.Status), appt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *Store) GetByReference(ctx context.Context, reference string) (store.Appointment, error) {
	var appt store.Appointment
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT reference, call_sid, customer_name, customer_phone, date, time, service_type, status, created_at
		FROM appointments WHERE reference = $1`,
		reference).Scan(
		&appt.Reference, &appt.CallSID, &appt.CustomerName, &appt.CustomerPhone,
		&appt.Date, &appt.Time, &appt.ServiceType, &status, &appt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Appointment{}, fmt.Errorf("appointment %s: %w", reference, store.ErrNotFound)
	}
	if err != nil {
		return store.Appointment{}, fmt.Errorf("query appointment: %w", err)
	}
	appt.Status = store.AppointmentStatus(status)
	return appt, nil
}

func (s *Store) ListByDate(ctx context.Context, date string) ([]store.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT reference, call_sid, customer_name, customer_phone, date, time, service_type, status, created_at
		FROM appointments WHERE date = $1 ORDER BY time`,
		date)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []store.Appointment
	for rows.Next() {
		var appt store.Appointment
		var status string
		if err := rows.Scan(
			&appt.Reference, &appt.CallSID, &appt.CustomerName, &appt.CustomerPhone,
			&appt.Date, &appt.Time, &appt.ServiceType, &status, &appt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appt.Status = store.AppointmentStatus(status)
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, reference string, status store.AppointmentStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE reference = $1`,
		reference, string(status))
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %s: %w", reference, store.ErrNotFound)
	}
	return nil
}
