package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"claimreg/internal/claims/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
)

// Outbox yields undelivered entries in insertion order.
type Outbox interface {
	Process(ctx context.Context, limit int, fn func(ctx context.Context, entry OutboxEntry) error) (int, error)
	Pending(ctx context.Context) (int, error)
}

// Publisher delivers one event to the downstream log.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Listener blocks until the outbox signals new rows.
type Listener interface {
	Wait(ctx context.Context) error
}

// Relay drains the outbox into a Publisher. Delivery is at least once: an
// entry is marked published only after Publish returns.
type Relay struct {
	outbox       Outbox
	publisher    Publisher
	listener     Listener
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type RelayOption func(*Relay)

func WithListener(l Listener) RelayOption {
	return func(r *Relay) {
		r.listener = l
	}
}

func WithPollInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(outbox Outbox, publisher Publisher, opts ...RelayOption) (*Relay, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	r := &Relay{
		outbox:       outbox,
		publisher:    publisher,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run drains the outbox on every notification and poll tick until ctx is
// cancelled. Drain failures are logged and retried on the next wakeup.
func (r *Relay) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	if r.listener != nil {
		go r.listen(ctx, wake)
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (r *Relay) listen(ctx context.Context, wake chan<- struct{}) {
	for {
		if err := r.listener.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox listener stopped, falling back to polling", "error", err)
			}
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}

// Drain publishes batches until the outbox is empty or a publish fails. It
// returns how many entries were published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.outbox.Process(ctx, r.batchSize, func(ctx context.Context, e OutboxEntry) error {
			if err := r.publisher.Publish(ctx, e.Key, e.Payload); err != nil {
				r.metrics.IncrementRelayFailed()
				return fmt.Errorf("publish outbox entry %d: %w", e.ID, err)
			}
			return nil
		})
		total += n
		r.metrics.IncrementRelayPublished(n)
		if err != nil {
			r.observeBacklog(ctx)
			return total, err
		}
		if n < r.batchSize {
			r.observeBacklog(ctx)
			return total, nil
		}
	}
}

func (r *Relay) observeBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	n, err := r.outbox.Pending(ctx)
	if err != nil {
		return
	}
	r.metrics.SetOutboxBacklog(n)
}

// PgxListener receives outbox notifications on a dedicated pgx connection.
type PgxListener struct {
	conn *pgx.Conn
}

// ListenPgx opens a connection to url and subscribes to NotifyChannel.
func ListenPgx(ctx context.Context, url string) (*PgxListener, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	return &PgxListener{conn: conn}, nil
}

func (l *PgxListener) Wait(ctx context.Context) error {
	_, err := l.conn.WaitForNotification(ctx)
	return err
}

func (l *PgxListener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
