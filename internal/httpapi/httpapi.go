// Package httpapi exposes the dashboard service over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/service"
	"soapstock/backend/internal/store"
)

const (
	maxBodyBytes    = 1 << 20
	maxRestoreBytes = 32 << 20
	restorePath     = "/api/v1/admin/restore"
)

// bodyLimit caps request bodies. Only a backup upload may be large.
func bodyLimit(r *http.Request) int64 {
	if r.URL.Path == restorePath {
		return maxRestoreBytes
	}
	return maxBodyBytes
}

var (
	errMissingToken  = errors.New("missing bearer token")
	errForbiddenRole = errors.New("forbidden role")
)

type Options struct {
	AllowedOrigin string
	Logger        *logger.Logger
	// Gatherer backs /metrics. The route is not mounted when nil.
	Gatherer prometheus.Gatherer
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	log           *logger.Logger
	gatherer      prometheus.Gatherer
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	origin := strings.TrimSpace(opts.AllowedOrigin)
	if origin == "" {
		origin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		log:           opts.Logger.Component("http"),
		gatherer:      opts.Gatherer,
		allowedOrigin: origin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(a.log), requestID(a.log), requestLogging(a.log), a.securityHeaders)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(RoleOperator))

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Post("/", a.handleCreateSale)
				r.Delete("/{saleID}", a.handleDeleteSale)
				r.Post("/{saleID}/payments", a.handleAddPayment)
				r.Put("/{saleID}/paid", a.handleSetSalePaid)
			})
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", a.handleListOrders)
				r.Post("/", a.handleCreateOrder)
				r.Delete("/{orderID}", a.handleDeleteOrder)
				r.Post("/{orderID}/complete", a.handleCompleteOrder)
			})
			r.Route("/supermarkets", func(r chi.Router) {
				r.Get("/", a.handleListSupermarkets)
				r.Post("/", a.handleCreateSupermarket)
				r.Patch("/{supermarketID}", a.handleUpdateSupermarket)
				r.Delete("/{supermarketID}", a.handleDeleteSupermarket)
			})
			r.Route("/stock", func(r chi.Router) {
				r.Get("/history", a.handleStockHistory)
				r.Post("/movements", a.handleUpdateStock)
				r.Get("/fragrances", a.handleFragranceStock)
				r.Put("/fragrances/{fragranceID}", a.handleSetFragranceStock)
			})
			r.Get("/reports/monthly", a.handleMonthlyReport)
			r.Get("/reports/summary", a.handleSummary)
			r.Get("/reports/period", a.handlePeriodReport)

			r.Get("/sync/status", a.handleSyncStatus)
			r.Post("/sync", a.handleForceSync)
			r.Get("/migration/status", a.handleMigrationStatus)
			r.Post("/migration/run", a.handleRunMigration)
			r.Get("/admin/backup", a.handleBackup)
			r.Post("/admin/restore", a.handleRestore)
		})
	})

	return r
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and storage errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrOffline), errors.Is(err, service.ErrMigrationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		a.log.Error(r.Context(), "request failed", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; storage errors can carry SQL and hosts.
	msg := err.Error()
	if status >= 500 && status != http.StatusServiceUnavailable {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
