// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/raffle-ledger/internal/config"
	"github.com/iliyamo/raffle-ledger/internal/handler"
	"github.com/iliyamo/raffle-ledger/internal/metrics"
	"github.com/iliyamo/raffle-ledger/internal/middleware"
)

// Deps bundles what the routes need.  Redis may be nil, which disables the
// response cache and the rate limiter.
type Deps struct {
	Tickets   *handler.TicketHandler
	DB        handler.Pinger
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Log       log.FieldLogger
}

// RegisterRoutes registers operational endpoints (health, metrics).
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterTickets registers the public ticket board and the admin desk
// under /api.  The ticket grid is served through the Redis cache, which
// every successful mutation invalidates; reservations are rate limited.
func RegisterTickets(e *echo.Echo, d Deps) {
	cache := middleware.NewRedisCache(d.Cache, d.Redis, d.Log)
	invalidate := middleware.NewCacheInvalidator(d.Cache, d.Redis, d.Log, "/api/tickets", "/api/tickets/summary")
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)

	api := e.Group("/api")
	api.GET("/tickets", d.Tickets.ListTickets, cache)
	api.GET("/tickets/summary", d.Tickets.Summary, cache)
	api.POST("/reserve", d.Tickets.Reserve, limit, invalidate)

	admin := api.Group("/admin")
	admin.GET("/reservations", d.Tickets.ListReservations)
	admin.GET("/reservation-groups", d.Tickets.ListReservationGroups)
	admin.POST("/approve", d.Tickets.Approve, invalidate)
	admin.POST("/release", d.Tickets.Release, invalidate)
}
