package handler

import (
	"strings"

	id "claimreg/pkg/domain"
	dErrors "claimreg/pkg/domain-errors"
)

// CreateClaimRequest is the body of POST /claims.
type CreateClaimRequest struct {
	Fingerprint string `json:"fingerprint"`

	parsedFingerprint id.Fingerprint
}

func (r *CreateClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Fingerprint = strings.TrimSpace(r.Fingerprint)
	fp, err := id.ParseFingerprint(r.Fingerprint)
	if err != nil {
		return err
	}
	r.parsedFingerprint = fp
	return nil
}

func (r *CreateClaimRequest) ParsedFingerprint() id.Fingerprint {
	return r.parsedFingerprint
}

// TransferClaimRequest is the body of POST /claims/{fingerprint}/transfer.
type TransferClaimRequest struct {
	NewOwner string `json:"new_owner"`

	parsedNewOwner id.AccountID
}

func (r *TransferClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	owner, err := id.ParseAccountID(r.NewOwner)
	if err != nil {
		return err
	}
	r.parsedNewOwner = owner
	return nil
}

func (r *TransferClaimRequest) ParsedNewOwner() id.AccountID {
	return r.parsedNewOwner
}
