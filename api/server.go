/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed as X-Request-Id
  2. RealIP:     Client address from proxy headers
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Access log: One zap line per request; latency histogram when metrics on
  5. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/workers, /api/companies, /api/service-types  Reference data
  /api/allocations/*                                Allocation Store
  /api/payments/*, /api/invoices/*                  Settlements
  /api/reports/*                                    Reporting Projection
  /api/audit                                        Audit log
  /api/scenarios/*                                  Demo data (optional)
  /healthz                                          Liveness + DB ping
  /metrics                                          Prometheus (optional)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/warp/staffing-ledger/observability"
)

// RouterOptions configures optional parts of the router.
type RouterOptions struct {
	CORSOrigins []string

	// Metrics records request latency. Nil disables it.
	Metrics *observability.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Scenarios mounts /api/scenarios.
	Scenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(h.log, opts.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{id}", h.GetWorker)
			r.Delete("/{id}", h.DeactivateWorker)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Get("/", h.ListCompanies)
			r.Post("/", h.CreateCompany)
			r.Get("/{id}", h.GetCompany)
			r.Delete("/{id}", h.DeactivateCompany)
		})

		r.Route("/service-types", func(r chi.Router) {
			r.Get("/", h.ListServiceTypes)
			r.Post("/", h.CreateServiceType)
		})

		r.Route("/allocations", func(r chi.Router) {
			r.Get("/", h.ListAllocations)
			r.Post("/", h.CreateAllocation)
			r.Get("/{id}", h.GetAllocation)
			r.Put("/{id}", h.UpdateAllocation)
			r.Delete("/{id}", h.DeleteAllocation)
			r.Put("/{id}/worker-payment-status", h.UpdateWorkerPaymentStatus)
			r.Put("/{id}/company-payment-status", h.UpdateCompanyPaymentStatus)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.CreateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Put("/{id}/status", h.SetInvoiceStatus)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/calendar", h.Calendar)
			r.Get("/summary", h.Summary)
			r.Get("/month-over-month", h.MonthOverMonth)
			r.Get("/workers", h.WorkerRollup)
			r.Get("/companies", h.CompanyRollup)
			r.Get("/settlements", h.SettlementSummary)
		})

		r.Get("/audit", h.ListAudit)

		if opts.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}
	})

	return r
}

// pinger is implemented by stores with a live connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness, and database reachability when the store can
// be pinged.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLog logs each request and observes its latency.
func accessLog(log *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unknown"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			metrics.ObserveRequest(r.Method, route, status, elapsed)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
				zap.Int("bytes_out", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= http.StatusInternalServerError:
				log.Error("http_request", fields...)
			case route == "/metrics" || route == "/healthz":
				log.Debug("http_request", fields...)
			default:
				log.Info("http_request", fields...)
			}
		})
	}
}
