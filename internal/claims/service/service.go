// Package service runs claim operations end to end: one transaction per
// request, the registry transition, the event append and the translation of
// failures into domain errors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"claimreg/internal/claims/events"
	"claimreg/internal/claims/metrics"
	"claimreg/internal/claims/models"
	"claimreg/internal/claims/registry"
	id "claimreg/pkg/domain"
	dErrors "claimreg/pkg/domain-errors"
	"claimreg/pkg/platform/sentinel"
	"claimreg/pkg/requestcontext"
)

const (
	opCreate   = "create"
	opRemove   = "remove"
	opTransfer = "transfer"

	// DefaultListLimit caps ListByOwner when the caller asks for no limit.
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Store is the claim table plus the owner index used by reads.
type Store interface {
	registry.Store
	ListByOwner(ctx context.Context, owner id.AccountID, limit int) ([]*models.Claim, error)
}

// Service orchestrates claim operations.
type Service struct {
	registry *registry.Registry
	store    Store
	sink     events.Sink
	tx       ClaimTx
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	registryOpts []registry.Option
}

type Option func(s *Service)

func WithTx(tx ClaimTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithTransferSequencePolicy(p registry.TransferSequencePolicy) Option {
	return func(s *Service) {
		s.registryOpts = append(s.registryOpts, registry.WithTransferSequencePolicy(p))
	}
}

// New constructs a Service. Without WithTx, operations are serialized
// in memory per fingerprint.
func New(store Store, sequence registry.SequenceSource, sink events.Sink, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink is required")
	}
	s := &Service{
		store:  store,
		sink:   sink,
		logger: slog.Default(),
		tracer: otel.Tracer("claimreg/claims"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	reg, err := registry.New(store, sequence, s.registryOpts...)
	if err != nil {
		return nil, err
	}
	s.registry = reg
	return s, nil
}

// Create registers fingerprint to caller.
func (s *Service) Create(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error) {
	return s.run(ctx, opCreate, caller, fingerprint, func(ctx context.Context) (models.Event, error) {
		return s.registry.Create(ctx, caller, fingerprint)
	})
}

// Remove deletes caller's claim on fingerprint.
func (s *Service) Remove(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error) {
	return s.run(ctx, opRemove, caller, fingerprint, func(ctx context.Context) (models.Event, error) {
		return s.registry.Remove(ctx, caller, fingerprint)
	})
}

// Transfer hands caller's claim on fingerprint to newOwner.
func (s *Service) Transfer(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint, newOwner id.AccountID) (models.Event, error) {
	if newOwner.IsNil() {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "new owner is required")
	}
	return s.run(ctx, opTransfer, caller, fingerprint, func(ctx context.Context) (models.Event, error) {
		return s.registry.Transfer(ctx, caller, fingerprint, newOwner)
	})
}

func (s *Service) run(
	ctx context.Context,
	op string,
	caller id.AccountID,
	fingerprint id.Fingerprint,
	fn func(ctx context.Context) (models.Event, error),
) (models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "claims."+op)
	defer span.End()
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("claim.fingerprint", fingerprint.String()),
			attribute.String("claim.caller", caller.String()),
		)
	}
	start := time.Now()

	if caller.IsNil() {
		err := dErrors.New(dErrors.CodeUnauthorized, "caller is not authenticated")
		s.observe(ctx, span, op, start, err)
		return models.Event{}, err
	}

	var event models.Event
	err := s.tx.RunInTx(ctx, fingerprint, func(ctx context.Context) error {
		var err error
		event, err = fn(ctx)
		if err != nil {
			return err
		}
		event.OccurredAt = requestcontext.Now(ctx)
		if err := s.sink.Append(ctx, event); err != nil {
			return fmt.Errorf("append claim event: %w", err)
		}
		return nil
	})
	if err != nil {
		err = translateError(op, err)
		s.observe(ctx, span, op, start, err)
		return models.Event{}, err
	}

	s.observe(ctx, span, op, start, nil)
	s.logger.InfoContext(ctx, "claim "+op,
		"kind", event.Kind,
		"fingerprint", fingerprint.String(),
		"owner", event.Owner,
		"new_owner", event.NewOwner,
		"sequence", event.Sequence,
		"request_id", requestcontext.RequestID(ctx),
	)
	return event, nil
}

func (s *Service) observe(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		code := dErrors.CodeOf(err)
		result = string(code)
		span.SetStatus(codes.Error, result)
		if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
			span.RecordError(err)
			s.logger.ErrorContext(ctx, "claim operation failed",
				"operation", op,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		} else {
			s.logger.DebugContext(ctx, "claim operation rejected",
				"operation", op,
				"reason", result,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	s.metrics.ObserveOperation(op, result, time.Since(start))
}

// Get returns the claim on fingerprint.
func (s *Service) Get(ctx context.Context, fingerprint id.Fingerprint) (*models.Claim, error) {
	claim, err := s.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return claim, nil
}

// ListByOwner returns up to limit claims held by owner. Limits outside
// (0, MaxListLimit] fall back to DefaultListLimit or MaxListLimit.
func (s *Service) ListByOwner(ctx context.Context, owner id.AccountID, limit int) ([]*models.Claim, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	claims, err := s.store.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	if claims == nil {
		claims = []*models.Claim{}
	}
	return claims, nil
}

// TransferPolicy reports how transfers treat the recorded sequence.
func (s *Service) TransferPolicy() registry.TransferSequencePolicy {
	return s.registry.TransferPolicy()
}

func translateError(op string, err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, registry.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, "fingerprint is already claimed")
	case errors.Is(err, registry.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "claim not found")
	case errors.Is(err, registry.ErrUnauthorized):
		return dErrors.Wrap(err, dErrors.CodeForbidden, "only the owner may "+op+" this claim")
	case errors.As(err, &de):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "claim operation timed out")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "claim storage unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "claim operation failed")
	}
}
