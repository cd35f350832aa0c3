package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimreg/internal/platform/middleware"
	"claimreg/pkg/testutil"
)

type pingRegistrar struct{}

func (pingRegistrar) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	})
}

func newTestRouter(checks map[string]HealthCheck) http.Handler {
	return NewRouter(RouterConfig{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		HealthChecks: checks,
	}, pingRegistrar{})
}

func TestRouter(t *testing.T) {
	testutil.Given(t, "a router with one registrar", func(t *testing.T) {
		router := newTestRouter(nil)

		testutil.When(t, "a registered route is called", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ping"))

			testutil.Then(t, "it is served with a request id", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusNoContent)
				assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
			})
		})

		testutil.When(t, "a handler panics", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/panic"))

			testutil.Then(t, "the client gets an internal error envelope", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
			})
		})

		testutil.When(t, "metrics are scraped", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

			testutil.Then(t, "prometheus text is returned", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				assert.Contains(t, rr.Body.String(), "go_goroutines")
			})
		})
	})
}

func TestHealthz(t *testing.T) {
	t.Run("healthy without checks", func(t *testing.T) {
		rr := testutil.DoRequest(newTestRouter(nil), testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusOK)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("failing dependency degrades", func(t *testing.T) {
		router := newTestRouter(map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)

		resp := testutil.UnmarshalResponse[healthResponse](t, rr)
		require.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ok", resp.Checks["postgres"])
		assert.Equal(t, "connection refused", resp.Checks["redis"])
	})
}
