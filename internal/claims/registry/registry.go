// Package registry implements the claim state machine.
//
// Each fingerprint is either absent or active with an owner and a sequence:
//
//	Absent      --Create(caller)--------------> Active(caller, current)
//	Active(o,s) --Remove(caller=o)------------> Absent
//	Active(o,s) --Transfer(caller=o, n)-------> Active(n, s)
//
// Any other attempt fails with no state change. The registry performs no
// locking and emits nothing itself: every successful operation returns the
// event describing it, and the caller decides where the event goes. Callers
// must serialize operations on the same fingerprint and make the store calls
// of one operation atomic (see service.Tx).
package registry

import (
	"context"
	"errors"
	"fmt"

	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	"claimreg/pkg/platform/sentinel"
)

// Store is the claim table: a partial map from fingerprint to claim.
// Get returns sentinel.ErrNotFound for absent fingerprints; Insert returns
// sentinel.ErrConflict when the fingerprint is already present.
type Store interface {
	Get(ctx context.Context, fingerprint id.Fingerprint) (*models.Claim, error)
	Insert(ctx context.Context, claim *models.Claim) error
	Update(ctx context.Context, claim *models.Claim) error
	Delete(ctx context.Context, fingerprint id.Fingerprint) error
}

// SequenceSource supplies the current height. Values never decrease.
type SequenceSource interface {
	Current(ctx context.Context) (uint64, error)
}

// Registry creates, transfers and removes claims.
type Registry struct {
	store          Store
	sequence       SequenceSource
	transferPolicy TransferSequencePolicy
}

type Option func(*Registry)

// WithTransferSequencePolicy selects how Transfer treats the recorded sequence.
func WithTransferSequencePolicy(p TransferSequencePolicy) Option {
	return func(r *Registry) {
		r.transferPolicy = p
	}
}

// New constructs a Registry. The default transfer policy is PreserveSequence.
func New(store Store, sequence SequenceSource, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("claim store is required")
	}
	if sequence == nil {
		return nil, fmt.Errorf("sequence source is required")
	}
	r := &Registry{store: store, sequence: sequence, transferPolicy: PreserveSequence}
	for _, opt := range opts {
		opt(r)
	}
	if !r.transferPolicy.valid() {
		return nil, fmt.Errorf("unknown transfer sequence policy %q", r.transferPolicy)
	}
	return r, nil
}

// TransferPolicy reports the configured transfer sequence policy.
func (r *Registry) TransferPolicy() TransferSequencePolicy {
	return r.transferPolicy
}

// Create registers fingerprint to caller at the current sequence.
func (r *Registry) Create(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error) {
	_, err := r.store.Get(ctx, fingerprint)
	switch {
	case err == nil:
		return models.Event{}, ErrAlreadyExists
	case !errors.Is(err, sentinel.ErrNotFound):
		return models.Event{}, fmt.Errorf("look up claim: %w", err)
	}

	seq, err := r.sequence.Current(ctx)
	if err != nil {
		return models.Event{}, fmt.Errorf("read sequence: %w", err)
	}

	if err := r.store.Insert(ctx, models.NewClaim(fingerprint, caller, seq)); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.Event{}, ErrAlreadyExists
		}
		return models.Event{}, fmt.Errorf("insert claim: %w", err)
	}
	return models.ClaimCreated(caller, fingerprint, seq), nil
}

// Remove deletes the claim on fingerprint. Only the owner may remove it.
func (r *Registry) Remove(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error) {
	claim, err := r.ownedClaim(ctx, caller, fingerprint)
	if err != nil {
		return models.Event{}, err
	}

	if err := r.store.Delete(ctx, fingerprint); err != nil {
		return models.Event{}, fmt.Errorf("delete claim: %w", err)
	}
	return models.ClaimRemoved(caller, fingerprint, claim.Sequence), nil
}

// Transfer hands the claim on fingerprint to newOwner. Only the owner may
// transfer it. Under PreserveSequence the sequence source is not consulted.
func (r *Registry) Transfer(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint, newOwner id.AccountID) (models.Event, error) {
	claim, err := r.ownedClaim(ctx, caller, fingerprint)
	if err != nil {
		return models.Event{}, err
	}

	oldOwner := claim.Owner
	claim.ApplyTransfer(newOwner)
	if r.transferPolicy == RefreshSequence {
		seq, err := r.sequence.Current(ctx)
		if err != nil {
			return models.Event{}, fmt.Errorf("read sequence: %w", err)
		}
		claim.Sequence = seq
	}

	if err := r.store.Update(ctx, claim); err != nil {
		return models.Event{}, fmt.Errorf("update claim: %w", err)
	}
	return models.ClaimOwnerChanged(oldOwner, newOwner, fingerprint, claim.Sequence), nil
}

func (r *Registry) ownedClaim(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (*models.Claim, error) {
	claim, err := r.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up claim: %w", err)
	}
	if !claim.IsOwnedBy(caller) {
		return nil, ErrUnauthorized
	}
	return claim, nil
}
