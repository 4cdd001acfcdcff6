// Package httpapi exposes the authcore engine over HTTP.
//
// Routes are mounted on a net/http ServeMux using method patterns. The
// handler chain layers request-id tagging, request logging, security
// headers, an optional per-IP rate limit, and a body cap over the
// route table. Every error response shares one envelope:
//
//	{"error": "...", "request_id": "..."}
//
// Client IP, user agent, and request id travel into the engine through
// its context carriers, so audit events written by the engine carry
// the HTTP caller's metadata without the handlers threading it by
// hand.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/horizonsync/authcore"
)

// API is the HTTP layer over one engine.
type API struct {
	engine  *authcore.Engine
	log     *slog.Logger
	mux     *http.ServeMux
	ready   func(context.Context) error
	limit   *ipLimiter
	wrap    func(http.Handler) http.Handler
	version string
}

// Options configures the optional edges of the API. Zero values
// disable the corresponding feature.
type Options struct {
	// Logger receives request logs and handler errors. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Ready is polled by GET /readyz, typically a database ping.
	Ready func(context.Context) error

	// Metrics, when set, is mounted at GET /metrics.
	Metrics http.Handler

	// Instrument wraps the route table itself, inside the rest of the
	// chain, so matched-pattern labels are visible to it.
	Instrument func(http.Handler) http.Handler

	// RateRPS and RateBurst bound per-IP request rates when RateRPS
	// is positive.
	RateRPS   float64
	RateBurst int

	// Version is reported by GET /healthz.
	Version string
}

// New mounts the route table. Call Handler for the servable chain.
func New(engine *authcore.Engine, opts Options) *API {
	a := &API{
		engine:  engine,
		log:     opts.Logger,
		ready:   opts.Ready,
		wrap:    opts.Instrument,
		version: opts.Version,
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if opts.RateRPS > 0 {
		a.limit = newIPLimiter(opts.RateRPS, opts.RateBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /refresh", a.handleRefresh)
	mux.Handle("POST /logout", a.authed(a.handleLogout))
	mux.Handle("GET /sessions", a.authed(a.handleListSessions))
	mux.Handle("DELETE /sessions/{id}", a.authed(a.handleRevokeSession))
	mux.Handle("POST /mfa/enable", a.authed(a.handleMFAEnable))
	mux.Handle("POST /mfa/verify", a.authed(a.handleMFAVerify))
	mux.Handle("POST /mfa/disable", a.authed(a.handleMFADisable))
	mux.Handle("POST /mfa/backup-codes", a.authed(a.handleRegenerateBackupCodes))
	mux.Handle("GET /mfa/backup-codes", a.authed(a.handleBackupCodeStatus))
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	a.mux = mux
	return a
}

// Handler assembles the middleware chain around the route table.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.wrap != nil {
		h = a.wrap(h)
	}
	h = maxBodyBytes(h, 1<<20)
	if a.limit != nil {
		h = a.limit.middleware(h)
	}
	h = securityHeaders(h)
	h = a.logging(h)
	h = a.withClientContext(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authd",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
