package models

import (
	"time"

	id "claimreg/pkg/domain"
)

// EventKind names a claim state transition.
type EventKind string

const (
	EventClaimCreated      EventKind = "claim_created"
	EventClaimRemoved      EventKind = "claim_removed"
	EventClaimOwnerChanged EventKind = "claim_owner_changed"
)

// Event records one successful claim transition. Failed operations produce
// no event.
//
// For EventClaimOwnerChanged, Owner is the previous owner and NewOwner the
// recipient. For the other kinds NewOwner is empty.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Owner       id.AccountID   `json:"owner"`
	NewOwner    id.AccountID   `json:"new_owner,omitempty"`
	Fingerprint id.Fingerprint `json:"fingerprint"`
	Sequence    uint64         `json:"sequence"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

func ClaimCreated(owner id.AccountID, fingerprint id.Fingerprint, sequence uint64) Event {
	return Event{Kind: EventClaimCreated, Owner: owner, Fingerprint: fingerprint, Sequence: sequence}
}

func ClaimRemoved(owner id.AccountID, fingerprint id.Fingerprint, sequence uint64) Event {
	return Event{Kind: EventClaimRemoved, Owner: owner, Fingerprint: fingerprint, Sequence: sequence}
}

func ClaimOwnerChanged(oldOwner, newOwner id.AccountID, fingerprint id.Fingerprint, sequence uint64) Event {
	return Event{Kind: EventClaimOwnerChanged, Owner: oldOwner, NewOwner: newOwner, Fingerprint: fingerprint, Sequence: sequence}
}
