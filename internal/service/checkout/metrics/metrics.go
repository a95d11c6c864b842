// internal/service/checkout/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_created_total",
		Help: "Orders materialized, by payment method.",
	}, []string{"method"})

	PaymentCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_callbacks_total",
		Help: "Gateway payment callbacks processed, by outcome.",
	}, []string{"result"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_rate_limited_total",
		Help: "Requests rejected by the sliding-window rate guard.",
	})

	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reservations_expired_total",
		Help: "Reservations cancelled by the TTL sweep.",
	})

	PromoValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_promo_validations_total",
		Help: "Promotion validations, by outcome subcode (ok for success).",
	}, []string{"outcome"})
)
