package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	DB              Pinger
	AccountsHandler *accounts.Handler
	JournalsHandler *journals.Handler
	BankHandler     *bank.Handler
	InvoicesHandler *invoices.Handler
	NotesHandler    *notes.Handler
	PaymentsHandler *payments.Handler
	JobHandler      *jobs.Handler
}

// HandlersFor builds the HTTP handlers of every ledger service.
func HandlersFor(logger *slog.Logger, l *Ledger) RouterParams {
	return RouterParams{
		Logger:          logger,
		AccountsHandler: accounts.NewHandler(logger, l.Accounts),
		JournalsHandler: journals.NewHandler(logger, l.Journals),
		BankHandler:     bank.NewHandler(logger, l.Bank),
		InvoicesHandler: invoices.NewHandler(logger, l.Invoices),
		NotesHandler:    notes.NewHandler(logger, l.Notes),
		PaymentsHandler: payments.NewHandler(logger, l.Payments),
	}
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
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
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
		}
		if params.BankHandler != nil {
			r.Route("/bank", params.BankHandler.MountRoutes)
		}
		if params.InvoicesHandler != nil {
			r.Route("/invoices", func(r chi.Router) {
				params.InvoicesHandler.MountRoutes(r)
				if params.NotesHandler != nil {
					r.Post("/{id}/apply-notes", params.NotesHandler.AutoApply)
				}
			})
		}
		if params.NotesHandler != nil {
			r.Route("/notes", params.NotesHandler.MountRoutes)
		}
		if params.PaymentsHandler != nil {
			r.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
