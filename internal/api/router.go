package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestIDKey = "request_id"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_http_requests_total",
		Help: "HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// NewRouter wires every endpoint onto a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), observe(h.logger))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	calls := r.Group("/api/calls")
	calls.POST("/nearby", h.Nearby)
	calls.GET("/longest-dispatch", h.LongestDispatch)
	calls.GET("/address-frequency", h.AddressFrequency)
	calls.GET("/safest-neighborhoods", h.SafestNeighborhoods)
	calls.GET("/neighborhoods", h.Neighborhoods)
	calls.GET("/battalions", h.Battalions)

	metrics := r.Group("/api/metrics")
	metrics.GET("/calls-per-hour", h.CallsPerHour)
	metrics.GET("/group-response-time", h.GroupResponseTime)
	metrics.GET("/unit-type-dist", h.UnitTypeDistribution)
	metrics.GET("/battalion-dist", h.BattalionDistribution)
	metrics.POST("/battalion-dist", h.BattalionCallTypes)
	metrics.GET("/neighborhood-trends", h.NeighborhoodTrends)
	metrics.POST("/neighborhood-trends", h.NeighborhoodDrilldown)

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// observe logs one line per request and records its metrics.
func observe(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		logger.Info("request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
	}
}
