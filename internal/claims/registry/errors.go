package registry

import "errors"

// Registry errors. Each leaves the claim table unchanged.
var (
	ErrAlreadyExists = errors.New("claim already exists")
	ErrNotFound      = errors.New("claim does not exist")
	ErrUnauthorized  = errors.New("caller is not the claim owner")
)
