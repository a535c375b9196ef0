package routes

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"termlend/core/ledger"
	"termlend/gateway/middleware"
)

type Config struct {
	Ledger        *ledger.Ledger
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
}

// Rate limit keys of the route groups.
const (
	RouteMarkets  = "markets"
	RouteAccounts = "accounts"
)

// New builds the read-only gateway over a deployed ledger.
func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("gateway: ledger required")
	}
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	lr := &lendingRoutes{ledger: cfg.Ledger}
	group := func(name string, mount func(chi.Router)) func(chi.Router) {
		return func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(name))
			}
			if obs != nil {
				sr.Use(obs.Middleware(name))
			}
			mount(sr)
		}
	}
	r.Route("/v1/markets", group(RouteMarkets, lr.mountMarkets))
	r.Route("/v1/accounts", group(RouteAccounts, lr.mountAccounts))

	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}
	return r, nil
}
