package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	dErrors "claimreg/pkg/domain-errors"
	"claimreg/pkg/platform/httputil"
	authmw "claimreg/pkg/platform/middleware/auth"
	"claimreg/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service

// Service defines the claim operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error)
	Remove(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint) (models.Event, error)
	Transfer(ctx context.Context, caller id.AccountID, fingerprint id.Fingerprint, newOwner id.AccountID) (models.Event, error)
	Get(ctx context.Context, fingerprint id.Fingerprint) (*models.Claim, error)
	ListByOwner(ctx context.Context, owner id.AccountID, limit int) ([]*models.Claim, error)
}

// Handler wires claim endpoints to the claim service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator authmw.JWTValidator
	mutationMW   []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithMutationMiddleware adds middleware that runs on mutating routes after
// authentication, such as per-account rate limiting.
func WithMutationMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.mutationMW = append(h.mutationMW, mw...)
	}
}

// New constructs a claim handler. Mutating routes require a bearer token
// accepted by jwtValidator.
func New(service Service, logger *slog.Logger, jwtValidator authmw.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts claim endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/claims/{fingerprint}", h.HandleGet)
	r.Get("/accounts/{owner}/claims", h.HandleListByOwner)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Use(h.mutationMW...)
		r.Post("/claims", h.HandleCreate)
		r.Delete("/claims/{fingerprint}", h.HandleRemove)
		r.Post("/claims/{fingerprint}/transfer", h.HandleTransfer)
	})
}

// HandleCreate handles POST /claims.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	event, err := h.service.Create(ctx, caller, req.ParsedFingerprint())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromEvent(event))
}

// HandleRemove handles DELETE /claims/{fingerprint}.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	fp, ok := h.fingerprintParam(w, r)
	if !ok {
		return
	}

	if _, err := h.service.Remove(ctx, caller, fp); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTransfer handles POST /claims/{fingerprint}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.requireCaller(w, ctx)
	if !ok {
		return
	}
	fp, ok := h.fingerprintParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	event, err := h.service.Transfer(ctx, caller, fp, req.ParsedNewOwner())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromEvent(event))
}

// HandleGet handles GET /claims/{fingerprint}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	fp, ok := h.fingerprintParam(w, r)
	if !ok {
		return
	}
	claim, err := h.service.Get(r.Context(), fp)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromClaim(claim))
}

// HandleListByOwner handles GET /accounts/{owner}/claims?limit=N.
func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := id.ParseAccountID(chi.URLParam(r, "owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
	}

	claims, err := h.service.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromClaims(owner.String(), claims))
}

// requireCaller reads the authenticated account set by RequireAuth.
func (h *Handler) requireCaller(w http.ResponseWriter, ctx context.Context) (id.AccountID, bool) {
	caller := requestcontext.AccountID(ctx)
	if caller.IsNil() {
		h.logger.WarnContext(ctx, "claim request without authenticated caller",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) fingerprintParam(w http.ResponseWriter, r *http.Request) (id.Fingerprint, bool) {
	fp, err := id.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return fp, true
}
