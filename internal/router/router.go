package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/auth"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/contest"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/person"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/resource"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/stats"
	"github.com/ovaphlow/pitchfork/service-coach-crm/internal/telemetry"
)

// Prefix is the path every API route is mounted under.
const Prefix = "/coach-crm-api"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level and records their latency
// by route pattern.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			telemetry.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(dur.Seconds())
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS only over TLS, 30 days
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handlers bundles the feature handlers the router mounts.
type Handlers struct {
	Verifier *auth.Verifier
	Person   *person.Handler
	Stats    *stats.Handler
	Contest  *contest.Handler
	Resource *resource.Handler
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
// Signup, health and metrics are public; everything else needs a bearer token.
func RegisterRoutes(logger *zap.SugaredLogger, h Handlers) http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET "+Prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST "+Prefix+"/signup/coach", h.Person.SignupCoach)
	mux.HandleFunc("POST "+Prefix+"/signup/manager", h.Person.SignupManager)

	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.Verifier.Middleware(fn))
	}

	// people and hierarchy
	authed("GET "+Prefix+"/me", h.Person.Me)
	authed("GET "+Prefix+"/people/{id}/chain", h.Person.Chain)
	authed("GET "+Prefix+"/people/{id}/downlines", h.Person.Downlines)
	authed("PUT "+Prefix+"/admin/people/{id}/upline", h.Person.RepairUpline)
	authed("POST "+Prefix+"/admin/people/{id}/restitch", h.Person.Restitch)

	// customers of the calling coach
	authed("GET "+Prefix+"/customers", h.Person.ListCustomers)
	authed("POST "+Prefix+"/customers", h.Person.CreateCustomer)
	authed("GET "+Prefix+"/customers/{id}", h.Person.GetCustomer)
	authed("DELETE "+Prefix+"/customers/{id}", h.Person.DeleteCustomer)
	authed("POST "+Prefix+"/customers/{id}/attendance", h.Person.RecordAttendance)
	authed("POST "+Prefix+"/customers/{id}/payments", h.Person.RecordPayment)
	authed("PUT "+Prefix+"/customers/{id}/composition", h.Person.UpdateComposition)
	authed("PATCH "+Prefix+"/customers/{id}/status", h.Person.UpdateStatus)
	authed("PUT "+Prefix+"/customers/{id}/follow-up", h.Person.SetFollowUp)

	authed("GET "+Prefix+"/stats", h.Stats.Mine)

	// contests
	authed("GET "+Prefix+"/contests", h.Contest.List)
	authed("POST "+Prefix+"/contests", h.Contest.Create)
	authed("GET "+Prefix+"/contests/{id}", h.Contest.Get)
	authed("POST "+Prefix+"/contests/{id}/participants", h.Contest.Enroll)
	authed("GET "+Prefix+"/contests/{id}/leaderboard", h.Contest.Leaderboard)

	// resource library
	authed("GET "+Prefix+"/resources", h.Resource.List)
	authed("POST "+Prefix+"/resources", h.Resource.Create)
	authed("DELETE "+Prefix+"/resources/{id}", h.Resource.Delete)

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return handler
}
