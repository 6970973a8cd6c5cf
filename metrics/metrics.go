// Package metrics exposes Prometheus counters for the storefront's
// fulfillment and download paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the instrument set shared by services and handlers.
type Metrics struct {
	linksIssued    *prometheus.CounterVec
	redirects      *prometheus.CounterVec
	webhooksTotal  *prometheus.CounterVec
	providerErrors prometheus.Counter
}

// New registers the instrument set with the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use their own registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		linksIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiostore_download_links_issued_total",
			Help: "Download links issued, by origin (webhook, self_fulfill, admin) and outcome.",
		}, []string{"origin", "outcome"}),
		redirects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiostore_download_redirects_total",
			Help: "Download redirect resolutions by outcome.",
		}, []string{"outcome"}),
		webhooksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audiostore_payment_webhooks_total",
			Help: "Payment webhooks received, by outcome.",
		}, []string{"outcome"}),
		providerErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "audiostore_provider_errors_total",
			Help: "Upstream provider failures (storage or payment).",
		}),
	}
}

// LinkIssued records a grant issuance attempt.
func (m *Metrics) LinkIssued(origin, outcome string) {
	if m == nil {
		return
	}
	m.linksIssued.WithLabelValues(origin, outcome).Inc()
}

// Redirect records a redirect resolution.
func (m *Metrics) Redirect(outcome string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(outcome).Inc()
}

// Webhook records a webhook delivery.
func (m *Metrics) Webhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(outcome).Inc()
}

// ProviderError records an upstream failure.
func (m *Metrics) ProviderError() {
	if m == nil {
		return
	}
	m.providerErrors.Inc()
}
