package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/servihogar/servihogar/internal/invoicing"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/payments"
	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/visits"
	"github.com/servihogar/servihogar/jobs"
)

// RouterParams aggregates everything the HTTP router mounts.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	Pool             *pgxpool.Pool
	PaymentsHandler  *payments.Handler
	VisitsHandler    *visits.Handler
	InvoicingHandler *invoicing.Handler
	LedgerHandler    *ledger.Handler
	JobsHandler      *jobs.Handler
}

// NewRouter assembles the chi router with the full middleware stack and all
// mounted handlers.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  p.Logger,
		Config:  p.Config,
		Metrics: p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if p.Pool != nil {
			if err := p.Pool.Ping(req.Context()); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "database unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	if p.PaymentsHandler != nil {
		p.PaymentsHandler.MountRoutes(r)
	}
	if p.VisitsHandler != nil {
		p.VisitsHandler.MountRoutes(r)
	}
	if p.InvoicingHandler != nil {
		p.InvoicingHandler.MountRoutes(r)
	}
	if p.LedgerHandler != nil {
		p.LedgerHandler.MountRoutes(r)
	}
	if p.JobsHandler != nil {
		r.Route("/jobs", p.JobsHandler.MountRoutes)
	}

	return r
}
