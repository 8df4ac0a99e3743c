package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker pings the store and, when rate limiting is enabled, Redis.
type HealthChecker struct {
	logger *zap.Logger
	checks map[string]pinger
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	checks := map[string]pinger{"store": infra.Store()}
	if redis := infra.Redis(); redis != nil {
		checks["redis"] = redis
	}
	return &HealthChecker{
		logger: infra.Logger(),
		checks: checks,
	}
}

// check runs every ping concurrently and returns the failures by name.
func (h *HealthChecker) check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures = make(map[string]string)
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Ping(ctx); err != nil {
				mu.Lock()
				failures[name] = err.Error()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return failures
}

func (h *HealthChecker) Handler(c *gin.Context) {
	failures := h.check(c.Request.Context())

	components := make(gin.H, len(h.checks))
	for name := range h.checks {
		if msg, failed := failures[name]; failed {
			components[name] = gin.H{"status": "fail", "error": msg}
		} else {
			components[name] = gin.H{"status": "pass"}
		}
	}

	if len(failures) > 0 {
		h.logger.Warn("Health check failed", zap.Any("failures", failures))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "fail",
			"components": components,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "pass",
		"components": components,
	})
}
