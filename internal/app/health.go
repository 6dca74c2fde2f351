package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HealthCheckTimeout bounds each dependency ping.
const HealthCheckTimeout = 5 * time.Second

// Check is the outcome of one dependency ping.
type Check struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time"`
	Error        string `json:"error,omitempty"`
}

// Health reports whether the database (and Redis, when configured) respond.
type Health struct {
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Environment string           `json:"environment"`
	Checks      map[string]Check `json:"checks"`
}

func (h Health) Healthy() bool {
	return h.Status == "healthy"
}

// CheckHealth pings every dependency. A Redis failure is reported but does
// not make the overall status unhealthy, since Redis is optional.
func (a *App) CheckHealth(ctx context.Context) Health {
	start := time.Now()
	logger := zerolog.Ctx(ctx).With().Str("operation", "health_check").Logger()

	health := Health{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Environment: a.Config.Primary.Env,
		Checks:      map[string]Check{},
	}

	dbCheck := a.ping(ctx, &logger, "database", a.DB.Pool.Ping)
	health.Checks["database"] = dbCheck
	if dbCheck.Status != "healthy" {
		health.Status = "unhealthy"
	}

	if a.Redis != nil {
		health.Checks["redis"] = a.ping(ctx, &logger, "redis", func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})
	}

	if !health.Healthy() {
		logger.Warn().Dur("total_duration", time.Since(start)).Msg("health check failed")
		a.recordHealthEvent(map[string]any{
			"check_type":        "overall",
			"error_type":        "overall_unhealthy",
			"total_duration_ms": time.Since(start).Milliseconds(),
		})
		return health
	}

	logger.Info().Dur("total_duration", time.Since(start)).Msg("health check passed")
	return health
}

func (a *App) ping(ctx context.Context, logger *zerolog.Logger, name string, ping func(context.Context) error) Check {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("response_time", elapsed).Msgf("%s health check failed", name)
		a.recordHealthEvent(map[string]any{
			"check_type":       name,
			"error_type":       name + "_unhealthy",
			"response_time_ms": elapsed.Milliseconds(),
			"error_message":    err.Error(),
		})
		return Check{Status: "unhealthy", ResponseTime: elapsed.String(), Error: err.Error()}
	}

	logger.Info().Dur("response_time", elapsed).Msgf("%s health check passed", name)
	return Check{Status: "healthy", ResponseTime: elapsed.String()}
}

// recordHealthEvent sends a HealthCheckError custom event when New Relic is enabled.
func (a *App) recordHealthEvent(attrs map[string]any) {
	nrApp := a.LoggerService.GetApplication()
	if nrApp == nil {
		return
	}
	attrs["operation"] = "health_check"
	nrApp.RecordCustomEvent("HealthCheckError", attrs)
}
