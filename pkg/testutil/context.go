package testutil

import (
	"net/http"

	id "claimreg/pkg/domain"
	"claimreg/pkg/requestcontext"
)

// WithAccountID marks the request as authenticated by accountID, as the auth
// middleware would. Invalid identifiers leave the request anonymous.
func WithAccountID(req *http.Request, accountID string) *http.Request {
	parsed, err := id.ParseAccountID(accountID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithAccountID(req.Context(), parsed))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
