package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const (
	routeLabelKey   ctxKey = "metrics_route"
	requestIDCtxKey ctxKey = "metrics_request_id"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscal_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campuscal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campuscal_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	staleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscal_stale_responses_total",
		Help: "Event fetch results discarded because the dashboard state moved on.",
	})

	aggregateFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscal_aggregate_fallback_total",
		Help: "Aggregate calendars fetched as single calendars because no university was resolvable.",
	})

	authorizationDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscal_authorization_denied_total",
		Help: "Mutations refused before dispatch for lack of capability.",
	}, []string{"operation"})

	shareLinksMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscal_share_links_minted_total",
		Help: "Share links issued.",
	})

	shareTokensPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campuscal_share_tokens_purged_total",
		Help: "Expired share tokens removed by the cleanup job.",
	})

	dashboardViewsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscal_dashboard_views_evicted_total",
		Help: "Cached dashboard views dropped, by reason.",
	}, []string{"reason"})
)

// Middleware records request metrics and enriches the context with labels for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			reqID := middleware.GetReqID(r.Context())

			ctx := context.WithValue(r.Context(), routeLabelKey, route)
			if reqID != "" {
				ctx = context.WithValue(ctx, requestIDCtxKey, reqID)
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			statusCode := strconv.Itoa(status)
			// chi fills the pattern in while routing, so read it again afterwards.
			route = routePattern(r)

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	route := routeFromContext(ctx)
	dbLatency.WithLabelValues(operation, route).Observe(time.Since(start).Seconds())
}

// StaleResponse counts a discarded fetch result.
func StaleResponse() { staleResponses.Inc() }

// AggregateFallback counts an aggregate calendar fetched in degraded mode.
func AggregateFallback() { aggregateFallbacks.Inc() }

// AuthorizationDenied counts a refused mutation.
func AuthorizationDenied(operation string) {
	authorizationDenied.WithLabelValues(operation).Inc()
}

// ShareLinkMinted counts an issued share link.
func ShareLinkMinted() { shareLinksMinted.Inc() }

// ShareTokensPurged adds n removed share tokens.
func ShareTokensPurged(n int64) {
	if n > 0 {
		shareTokensPurged.Add(float64(n))
	}
}

// DashboardViewsEvicted adds n views dropped for reason ("idle" or "relogin").
func DashboardViewsEvicted(reason string, n int) {
	if n > 0 {
		dashboardViewsEvicted.WithLabelValues(reason).Add(float64(n))
	}
}

// RequestIDFromContext extracts the request ID stored by the metrics middleware.
func RequestIDFromContext(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return reqID
	}
	return ""
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
