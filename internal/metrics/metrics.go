package metrics

import (
	"net/http"

	"github.com/ErlanBelekov/catalog-access/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Login links

	MagicLinkRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "magic_link_requests_total",
		Help:      "Login link requests, by outcome.",
	}, []string{"outcome"})

	MagicLinkRedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "magic_link_redemptions_total",
		Help:      "Login link redemptions, by outcome.",
	}, []string{"outcome"})

	EmailDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "email_deliveries_total",
		Help:      "Outbound login link emails, by outcome.",
	}, []string{"outcome"})

	// Payments

	WebhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries, by provider and outcome.",
	}, []string{"provider", "outcome"})

	PackageGrantsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "package_grant_requests_total",
		Help:      "Package ids requested for grant by reconciliation, by package.",
	}, []string{"package"})

	// Catalog

	CatalogReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "catalog_reloads_total",
		Help:      "Scheduled catalog reloads, by outcome.",
	}, []string{"outcome"})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog_access",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_access",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "catalog_access",
		Name:      "http_requests_in_flight",
		Help:      "HTTP requests currently being served.",
	})
)

func Register() {
	prometheus.MustRegister(
		MagicLinkRequestsTotal,
		MagicLinkRedemptionsTotal,
		EmailDeliveriesTotal,
		WebhookEventsTotal,
		PackageGrantsTotal,
		CatalogReloadsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
		HTTPRequestsInFlight,
	)
}

// NewServer serves /metrics and the health endpoints on a separate port.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health.WriteResult(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		health.WriteResult(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
