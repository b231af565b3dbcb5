package obs

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	domainOnce sync.Once

	// SettlementsTotal counts settlement attempts by payment method and result.
	SettlementsTotal *prometheus.CounterVec
	// SettlementAmount observes settled totals in major currency units.
	SettlementAmount *prometheus.HistogramVec
	// SettlementDuration records submit latency in milliseconds.
	SettlementDuration *prometheus.HistogramVec
	// ComposeRejections counts composer validation failures by kind.
	ComposeRejections *prometheus.CounterVec
	// BookFeeAdjustments counts book fee updates.
	BookFeeAdjustments prometheus.Counter
	// NotificationsTotal counts sink deliveries.
	NotificationsTotal *prometheus.CounterVec
	// EventsHandled counts worker event handling outcomes.
	EventsHandled *prometheus.CounterVec
)

var (
	meterOnce         sync.Once
	settlementCounter metric.Int64Counter
	settledMinor      metric.Int64Counter
)

// MustRegisterDomainMetrics initialises and registers settlement collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Settlement submissions by payment method and result.",
		}, []string{"method", "result"}))
		SettlementAmount = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_amount",
			Help:      "Settled totals in major currency units.",
			Buckets:   []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		}, []string{"method"}))
		SettlementDuration = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_submit_duration_ms",
			Help:      "Latency of settlement submission in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"}))
		ComposeRejections = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_compose_rejections_total",
			Help:      "Composer validation failures by kind.",
		}, []string{"kind"}))
		BookFeeAdjustments = registerOrReuse(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_fee_adjustments_total",
			Help:      "Book fee amounts changed outside a settlement.",
		}))
		NotificationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink, kind and result.",
		}, []string{"sink", "kind", "result"}))
		EventsHandled = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Worker event handling outcomes.",
		}, []string{"topic", "result"}))
	})
}

func meters() {
	meterOnce.Do(func() {
		m := otel.Meter("github.com/noah-isme/backend-sekolah/settlement")
		settlementCounter, _ = m.Int64Counter("settlement.submissions", metric.WithDescription("Settlement submissions"))
		settledMinor, _ = m.Int64Counter("settlement.settled_minor_units", metric.WithDescription("Settled amount in minor units"), metric.WithUnit("{minor}"))
	})
}

// RecordSettlement reports one settlement attempt. totalMinor is only added
// to the settled amount when result is "ok".
func RecordSettlement(ctx context.Context, method, result string, totalMinor int64, durationMs float64) {
	if SettlementsTotal != nil {
		SettlementsTotal.WithLabelValues(method, result).Inc()
	}
	if SettlementDuration != nil {
		SettlementDuration.WithLabelValues(result).Observe(durationMs)
	}
	if result == "ok" && SettlementAmount != nil {
		SettlementAmount.WithLabelValues(method).Observe(float64(totalMinor) / 100)
	}
	meters()
	attrs := metric.WithAttributes(attribute.String("payment.method", method), attribute.String("result", result))
	if settlementCounter != nil {
		settlementCounter.Add(ctx, 1, attrs)
	}
	if result == "ok" && settledMinor != nil {
		settledMinor.Add(ctx, totalMinor, metric.WithAttributes(attribute.String("payment.method", method)))
	}
}

// RecordComposeRejection counts a validation failure of the given kind.
func RecordComposeRejection(kind string) {
	if ComposeRejections != nil {
		ComposeRejections.WithLabelValues(kind).Inc()
	}
}

// RecordBookFeeAdjustment counts one book fee change.
func RecordBookFeeAdjustment() {
	if BookFeeAdjustments != nil {
		BookFeeAdjustments.Inc()
	}
}

// RecordNotification counts one sink delivery.
func RecordNotification(sink, kind, result string) {
	if NotificationsTotal != nil {
		NotificationsTotal.WithLabelValues(sink, kind, result).Inc()
	}
}

// RecordEvent counts one handled worker event.
func RecordEvent(topic, result string) {
	if EventsHandled != nil {
		EventsHandled.WithLabelValues(topic, result).Inc()
	}
}
