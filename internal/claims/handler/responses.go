package handler

import (
	"time"

	"claimreg/internal/claims/models"
)

// ClaimResponse describes one active claim. Fingerprints are hex encoded.
type ClaimResponse struct {
	Fingerprint string `json:"fingerprint"`
	Owner       string `json:"owner"`
	Sequence    uint64 `json:"sequence"`
}

// EventResponse describes the transition a mutation performed.
type EventResponse struct {
	Kind       string    `json:"kind"`
	Owner      string    `json:"owner"`
	NewOwner   string    `json:"new_owner,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MutationResponse is returned by create and transfer.
type MutationResponse struct {
	Claim ClaimResponse `json:"claim"`
	Event EventResponse `json:"event"`
}

// ClaimListResponse is returned by GET /accounts/{owner}/claims.
type ClaimListResponse struct {
	Owner  string          `json:"owner"`
	Claims []ClaimResponse `json:"claims"`
}

func FromClaim(c *models.Claim) ClaimResponse {
	return ClaimResponse{
		Fingerprint: c.Fingerprint.String(),
		Owner:       c.Owner.String(),
		Sequence:    c.Sequence,
	}
}

// FromEvent builds the response for a successful mutation. The resulting
// claim is derived from the event: its owner is NewOwner for transfers.
func FromEvent(e models.Event) *MutationResponse {
	owner := e.Owner
	if e.Kind == models.EventClaimOwnerChanged {
		owner = e.NewOwner
	}
	return &MutationResponse{
		Claim: ClaimResponse{
			Fingerprint: e.Fingerprint.String(),
			Owner:       owner.String(),
			Sequence:    e.Sequence,
		},
		Event: EventResponse{
			Kind:       string(e.Kind),
			Owner:      e.Owner.String(),
			NewOwner:   e.NewOwner.String(),
			OccurredAt: e.OccurredAt,
		},
	}
}

func FromClaims(owner string, claims []*models.Claim) *ClaimListResponse {
	out := make([]ClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, FromClaim(c))
	}
	return &ClaimListResponse{Owner: owner, Claims: out}
}
