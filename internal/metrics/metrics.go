// Package metrics: метрики Prometheus сервиса.
// Все метрики регистрируются в глобальном реестре через promauto
// и отдаются на /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	// PayoutsTotal: записи журнала по типу и статусу (approved/flushed/completed).
	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlm_payouts_total",
			Help: "Total number of ledger entries produced by distributions",
		},
		[]string{"type", "status"},
	)

	PayoutAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlm_payout_amount_total",
			Help: "Total amount of ledger entries produced by distributions",
		},
		[]string{"type", "status"},
	)

	OrchestrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlm_orchestration_duration_seconds",
			Help:    "Duration of purchase, click and deposit distributions",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		},
		[]string{"event"},
	)

	ActivitiesCapped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mlm_activities_capped_total",
			Help: "Minting activities deactivated after reaching the earnings cap",
		},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlm_job_runs_total",
			Help: "Scheduled job runs",
		},
		[]string{"job", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlm_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordPayout учитывает одну запись журнала.
func RecordPayout(txType, status string, amount decimal.Decimal) {
	PayoutsTotal.WithLabelValues(txType, status).Inc()
	PayoutAmountTotal.WithLabelValues(txType, status).Add(amount.InexactFloat64())
}

// ObserveOrchestration учитывает длительность события.
func ObserveOrchestration(event string, d time.Duration) {
	OrchestrationDuration.WithLabelValues(event).Observe(d.Seconds())
}

// RecordJob учитывает запуск фоновой задачи.
func RecordJob(job string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	JobRunsTotal.WithLabelValues(job, status).Inc()
}

// Middleware: chi-middleware с HTTP-метриками.
// В метку path идёт шаблон маршрута, а не сырой путь (без ID в метках).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path = rctx.RoutePattern()
		}
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
