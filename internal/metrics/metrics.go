package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CheckoutsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_initiations_total",
			Help: "Number of paid checkout initiations, by provider",
		},
		[]string{"provider"},
	)

	FreeEnrollments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "free_enrollments_total",
			Help: "Number of zero-cost enrollments granted without a purchase",
		},
	)

	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_webhooks_total",
			Help: "Number of webhook deliveries received, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	PurchasesConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_confirmed_total",
			Help: "Number of purchases transitioned to SUCCESS, by path",
		},
		[]string{"path"},
	)

	AnomalousConfirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anomalous_confirmations_total",
			Help: "Webhook confirmations for unknown or already-failed purchases",
		},
	)

	ProviderInitiateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "provider_initiate_duration_seconds",
			Help: "Time spent creating a provider checkout",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		CheckoutsInitiated,
		FreeEnrollments,
		WebhooksReceived,
		PurchasesConfirmed,
		AnomalousConfirmations,
		ProviderInitiateDuration,
	)
}
