package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techcare",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techcare",
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status.",
		},
		[]string{"status"},
	)

	emailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techcare",
			Name:      "email_deliveries_total",
			Help:      "Transactional email delivery attempts by template and result.",
		},
		[]string{"template", "result"},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techcare",
			Name:      "payments_total",
			Help:      "Payment events by outcome.",
		},
		[]string{"outcome"},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techcare",
			Name:      "db_backups_total",
			Help:      "SQLite snapshot attempts by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingTransitions, emailDeliveries, payments, backups)
	})
}

// IncHTTP increments the request counter for a route pattern and status code.
func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncBookingTransition(status string) {
	bookingTransitions.WithLabelValues(status).Inc()
}

func IncEmail(template, result string) {
	emailDeliveries.WithLabelValues(template, result).Inc()
}

func IncPayment(outcome string) {
	payments.WithLabelValues(outcome).Inc()
}

func IncBackup(result string) {
	backups.WithLabelValues(result).Inc()
}
