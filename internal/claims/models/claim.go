package models

import (
	id "claimreg/pkg/domain"
)

// Claim binds a fingerprint to its current owner and the sequence number
// recorded when it was registered.
//
// Invariants:
//   - A stored claim always has exactly one owner and one sequence value
//   - Only Owner may transfer or remove the claim
//   - Fingerprint never changes for the lifetime of the claim
type Claim struct {
	Fingerprint id.Fingerprint `json:"fingerprint"`
	Owner       id.AccountID   `json:"owner"`
	Sequence    uint64         `json:"sequence"`
}

// NewClaim builds a claim owned by owner at sequence.
func NewClaim(fingerprint id.Fingerprint, owner id.AccountID, sequence uint64) *Claim {
	return &Claim{
		Fingerprint: fingerprint,
		Owner:       owner,
		Sequence:    sequence,
	}
}

// IsOwnedBy reports whether caller is the recorded owner.
func (c *Claim) IsOwnedBy(caller id.AccountID) bool {
	return c.Owner == caller
}

// ApplyTransfer replaces the owner. The sequence is left to the caller's
// policy; see registry.TransferSequencePolicy.
func (c *Claim) ApplyTransfer(newOwner id.AccountID) {
	c.Owner = newOwner
}
