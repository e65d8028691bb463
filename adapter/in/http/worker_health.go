package http

import (
	"context"
	"sort"
	"time"

	"campaign_worker/pkg/metrics"
	"campaign_worker/pkg/resilience"
	"campaign_worker/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// HealthChecker is anything that can report its own reachability.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks  map[string]HealthChecker
	stats   map[string]func() any
	timeout time.Duration
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]HealthChecker),
		stats:   make(map[string]func() any),
		timeout: 5 * time.Second,
	}
}

// WithCheck adds a readiness dependency. A nil checker is ignored.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	if checker != nil {
		h.checks[name] = checker
	}
	return h
}

// WithStats adds a connection pool snapshot to the readiness report.
func (h *HealthHandler) WithStats(name string, fn func() any) *HealthHandler {
	if fn != nil {
		h.stats[name] = fn
	}
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(response.NewHealth("ok", nil))
}

// Ready pings every registered dependency. Breaker states and stage
// latencies are reported but do not affect readiness.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	status, code := "ready", fiber.StatusOK
	if !healthy {
		status, code = "not ready", fiber.StatusServiceUnavailable
	}

	latency := make(map[string]map[string]any)
	for name, s := range metrics.AllLatencyStats() {
		latency[name] = s.ToMap()
	}

	pools := make(map[string]any)
	for name, s := range metrics.AllPoolStats() {
		pools[name] = s
	}
	for name, fn := range h.stats {
		pools[name] = fn()
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"breakers":  resilience.Snapshot(),
		"pools":     pools,
		"latency":   latency,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
