package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/aoabd/course-api/internal/service"
)

// MetricsHandler exposes observability and probe endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	db      *sqlx.DB
	cache   *redis.Client
}

// NewMetricsHandler constructs a metrics handler. The cache client may be
// nil; readiness then only covers the database.
func NewMetricsHandler(metrics *service.MetricsService, db *sqlx.DB, cache *redis.Client) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, db: db, cache: cache}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health is the liveness probe.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the API can actually serve: the database must
// answer a ping. A down cache is reported but does not fail readiness,
// since all cached paths fall back to the database.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{"database": "ok"}

	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": gin.H{"database": "not configured"}})
		return
	}
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx).Err(); err != nil {
			checks["cache"] = "degraded: " + err.Error()
		} else {
			checks["cache"] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
