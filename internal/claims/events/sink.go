// Package events records claim transitions and delivers them downstream.
//
// The service appends each event returned by the registry to a Sink inside
// the same transaction as the mutation. MemorySink keeps events in process;
// OutboxSink writes them to the claim_outbox table, from which Relay
// publishes them to Kafka once committed.
package events

import (
	"context"

	"claimreg/internal/claims/models"
)

// Sink receives events for committed claim transitions.
type Sink interface {
	Append(ctx context.Context, event models.Event) error
}
