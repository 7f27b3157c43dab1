package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}

// ObserveRequest records one served API request.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)

	HTTPRequests().WithLabelValues(method, route, statusLabel).Inc()
	HTTPLatency().WithLabelValues(method, route).Observe(duration.Seconds())
	if status >= fiber.StatusBadRequest {
		HTTPErrors().WithLabelValues(method, route, statusLabel).Inc()
	}
}
