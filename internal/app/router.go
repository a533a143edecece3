package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bi-platform/bi-ledger/internal/inventory"
	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/ledger/periodlock"
	"github.com/bi-platform/bi-ledger/internal/observability"
	"github.com/bi-platform/bi-ledger/internal/purchasing"
	"github.com/bi-platform/bi-ledger/internal/sales"
	"github.com/bi-platform/bi-ledger/internal/vouchers"
	"github.com/bi-platform/bi-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AccountsHandler   *accounts.Handler
	JournalsHandler   *journals.Handler
	PeriodLockHandler *periodlock.Handler
	SalesHandler      *sales.Handler
	PurchasingHandler *purchasing.Handler
	VouchersHandler   *vouchers.Handler
	InventoryHandler  *inventory.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/ledger", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
		}
		if params.PeriodLockHandler != nil {
			r.Route("/period-lock", params.PeriodLockHandler.MountRoutes)
		}
	})
	if params.SalesHandler != nil {
		r.Route("/invoices", params.SalesHandler.MountRoutes)
	}
	if params.PurchasingHandler != nil {
		r.Route("/purchases", params.PurchasingHandler.MountRoutes)
	}
	if params.VouchersHandler != nil {
		r.Route("/vouchers", params.VouchersHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/products", params.InventoryHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
