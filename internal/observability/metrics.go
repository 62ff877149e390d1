package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_ws_events_total",
			Help: "Total number of websocket events handled, by event type.",
		},
		[]string{"event"},
	)
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_messages_total",
			Help: "Total number of accepted chat messages.",
		},
		[]string{"conversation"},
	)
	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_rejections_total",
			Help: "Total number of rejected operations, by rejection kind.",
		},
		[]string{"kind"},
	)
	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_moderation_actions_total",
			Help: "Total number of moderation actions applied.",
		},
		[]string{"action"},
	)
	storeWriteErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanchat_store_write_errors_total",
			Help: "Total number of failed JSON store writes, by collection.",
		},
		[]string{"collection"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lanchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		messagesTotal,
		rejectionsTotal,
		moderationActionsTotal,
		storeWriteErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncMessage(conversation string) {
	messagesTotal.WithLabelValues(conversation).Inc()
}

func IncRejection(kind string) {
	rejectionsTotal.WithLabelValues(kind).Inc()
}

func IncModerationAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

func IncStoreWriteError(collection string) {
	storeWriteErrorsTotal.WithLabelValues(collection).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
