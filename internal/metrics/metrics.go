// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "api_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outreach_sends_total", Help: "Messages dispatched by channel and outcome"},
		[]string{"channel", "status"},
	)
	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outreach_send_duration_seconds",
			Help:    "Time spent in a single dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outreach_token_refresh_total", Help: "OAuth token refresh attempts"},
		[]string{"channel", "result"},
	)

	SchedulerJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "scheduler_jobs_registered", Help: "Campaign cron jobs currently registered"},
	)
	SchedulerBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_batches_total", Help: "Scheduler ticks by result"},
		[]string{"result"},
	)

	AnalyticsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "analytics_events_total", Help: "Tracked analytics events"},
		[]string{"event_type", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		APIRequestsTotal, APIRequestDuration,
		SendsTotal, SendDuration, TokenRefreshTotal,
		SchedulerJobs, SchedulerBatchesTotal,
		AnalyticsEventsTotal,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
