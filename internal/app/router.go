package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/buildledger/buildledger/internal/api"
	"github.com/buildledger/buildledger/internal/auth"
	"github.com/buildledger/buildledger/internal/observability"
	"github.com/buildledger/buildledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthService *auth.Service

	AccountHandler       *api.AccountHandler
	JournalHandler       *api.JournalHandler
	BillHandler          *api.BillHandler
	DepositHandler       *api.DepositHandler
	PurchaseOrderHandler *api.PurchaseOrderHandler
	ReconHandler         *api.ReconHandler
	PeriodHandler        *api.PeriodHandler
	LotHandler           *api.LotHandler
	TokenHandler         *api.TokenHandler
	JobHandler           *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi router. Health and metrics endpoints stay
// outside the authenticated group.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(params.AuthService))

		r.Route("/accounts", params.AccountHandler.MountRoutes)
		r.Route("/journal-entries", params.JournalHandler.MountRoutes)
		r.Route("/bills", params.BillHandler.MountRoutes)
		r.Route("/deposits", params.DepositHandler.MountRoutes)
		r.Route("/purchase-orders", params.PurchaseOrderHandler.MountRoutes)
		r.Route("/reconciliations", params.ReconHandler.MountRoutes)
		r.Route("/periods", params.PeriodHandler.MountRoutes)
		r.Route("/lots", params.LotHandler.MountRoutes)
		r.Route("/tokens", params.TokenHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
