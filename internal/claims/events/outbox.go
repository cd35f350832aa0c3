package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	txcontext "claimreg/pkg/platform/tx"
)

// NotifyChannel is the Postgres channel signalled for every outbox insert.
const NotifyChannel = "claim_outbox"

// OutboxEntry is one undelivered event.
type OutboxEntry struct {
	ID      int64
	EventID uuid.UUID
	Kind    models.EventKind
	// Key is the hex form of the fingerprint, used as the Kafka record key.
	Key     []byte
	Payload []byte
}

// OutboxSink appends events to the claim_outbox table using the transaction
// in context, so an event exists exactly when its mutation committed.
type OutboxSink struct {
	db *sql.DB
}

func NewOutboxSink(db *sql.DB) *OutboxSink {
	return &OutboxSink{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *OutboxSink) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the event and notifies listeners. Postgres delivers the
// notification only on commit.
func (s *OutboxSink) Append(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal claim event: %w", err)
	}

	exec := s.execer(ctx)
	eventID := uuid.New()
	_, err = exec.ExecContext(ctx, `
		INSERT INTO claim_outbox (event_id, event_type, fingerprint, payload)
		VALUES ($1, $2, $3, $4)
	`, eventID, string(event.Kind), event.Fingerprint.Bytes(), payload)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, eventID.String()); err != nil {
		return fmt.Errorf("notify outbox: %w", err)
	}
	return nil
}

// PostgresOutbox reads undelivered entries for the relay.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox {
	return &PostgresOutbox{db: db}
}

// Process locks up to limit undelivered entries in insertion order and hands
// them to fn one at a time. Processing stops at the first error; entries
// handled before it are marked published. Concurrent relays skip rows
// another relay holds.
func (o *PostgresOutbox) Process(ctx context.Context, limit int, fn func(ctx context.Context, entry OutboxEntry) error) (int, error) {
	sqlTx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	rows, err := sqlTx.QueryContext(ctx, `
		SELECT id, event_id, event_type, fingerprint, payload
		FROM claim_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox entries: %w", err)
	}
	var entries []OutboxEntry
	for rows.Next() {
		var (
			e    OutboxEntry
			kind string
			fp   []byte
		)
		if err := rows.Scan(&e.ID, &e.EventID, &kind, &fp, &e.Payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Kind = models.EventKind(kind)
		e.Key = []byte(id.FingerprintFromBytes(fp).String())
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("select outbox entries: %w", err)
	}

	var (
		done    []int64
		procErr error
	)
	for _, e := range entries {
		if procErr = fn(ctx, e); procErr != nil {
			break
		}
		done = append(done, e.ID)
	}

	if len(done) > 0 {
		if _, err := sqlTx.ExecContext(ctx, `
			UPDATE claim_outbox SET published_at = now() WHERE id = ANY($1)
		`, pq.Array(done)); err != nil {
			return 0, fmt.Errorf("mark outbox entries published: %w", err)
		}
		if err := sqlTx.Commit(); err != nil {
			return 0, fmt.Errorf("commit outbox tx: %w", err)
		}
	}
	return len(done), procErr
}

// Pending counts undelivered entries.
func (o *PostgresOutbox) Pending(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT count(*) FROM claim_outbox WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox entries: %w", err)
	}
	return n, nil
}
