// Package client calls the claim registry HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"claimreg/internal/claims/handler"
	id "claimreg/pkg/domain"
	dErrors "claimreg/pkg/domain-errors"
)

// Client is a thin typed wrapper over the claim endpoints. Failed calls
// return *dErrors.Error carrying the server's error code.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken authenticates mutating calls with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Create(ctx context.Context, fingerprint id.Fingerprint) (*handler.MutationResponse, error) {
	var out handler.MutationResponse
	body := handler.CreateClaimRequest{Fingerprint: fingerprint.String()}
	if err := c.do(ctx, http.MethodPost, "/claims", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Remove(ctx context.Context, fingerprint id.Fingerprint) error {
	return c.do(ctx, http.MethodDelete, "/claims/"+fingerprint.String(), nil, http.StatusNoContent, nil)
}

func (c *Client) Transfer(ctx context.Context, fingerprint id.Fingerprint, newOwner id.AccountID) (*handler.MutationResponse, error) {
	var out handler.MutationResponse
	body := handler.TransferClaimRequest{NewOwner: newOwner.String()}
	if err := c.do(ctx, http.MethodPost, "/claims/"+fingerprint.String()+"/transfer", body, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, fingerprint id.Fingerprint) (*handler.ClaimResponse, error) {
	var out handler.ClaimResponse
	if err := c.do(ctx, http.MethodGet, "/claims/"+fingerprint.String(), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListByOwner(ctx context.Context, owner id.AccountID, limit int) (*handler.ClaimListResponse, error) {
	path := "/accounts/" + url.PathEscape(owner.String()) + "/claims"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out handler.ClaimListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) do(ctx context.Context, method, path string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "claim registry unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == "" {
			return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
		msg := env.ErrorDescription
		if msg == "" {
			msg = env.Error
		}
		return dErrors.New(dErrors.Code(env.Error), msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
