package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 判分结果，按 checkpoint 类型和结果状态分
	AttemptsGraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_attempts_graded_total",
			Help: "Checkpoint attempts graded, by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	StageUnlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_stage_unlocks_total",
			Help: "Stage gates that transitioned to unlocked",
		},
	)

	GateAnomalies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_gate_anomalies_total",
			Help: "Authoring-time gate rule violations clamped at evaluation",
		},
	)

	ReviewsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reviews_recorded_total",
			Help: "Flashcard reviews recorded, by quality grade",
		},
		[]string{"quality"},
	)

	QuizAutoSubmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_quiz_auto_submits_total",
			Help: "Quiz sessions finished by the timeout timer",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AttemptsGraded)
	prometheus.MustRegister(StageUnlocks)
	prometheus.MustRegister(GateAnomalies)
	prometheus.MustRegister(ReviewsRecorded)
	prometheus.MustRegister(QuizAutoSubmits)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
