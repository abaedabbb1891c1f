// Package api is the HTTP/WebSocket façade: route registration, middleware
// stack and graceful shutdown. Grounded on the teacher's internal/api/rest.go
// for the echo setup and the context-cancellation-driven Run(ctx) pattern,
// but registers routes directly against SPEC_FULL.md's HTTP table instead of
// through a generated OpenAPI StrictHandler, since no schema for this
// service's surface is shipped.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/pkg/logger"
)

var log = logger.Get("API")

type Config struct {
	HostAddr    string
	CORSOrigins []string
}

type Gateway struct {
	cfg       Config
	ec        *echo.Echo
	auth      *auth.Provider
	tokenRate *ratelimit.Limiter
}

func NewGateway(cfg Config, authProvider *auth.Provider, tokenRate *ratelimit.Limiter, controllers ...Controller) *Gateway {
	ec := echo.New()
	ec.HideBanner = true
	ec.HidePort = true

	ec.Pre(middleware.RemoveTrailingSlash())
	ec.Use(middleware.Recover())
	ec.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	ec.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))

	gw := &Gateway{cfg: cfg, ec: ec, auth: authProvider, tokenRate: tokenRate}

	for _, c := range controllers {
		c.SetRoutes(ec, authProvider, tokenRate)
	}

	return gw
}

// Controller registers its own routes directly against the shared echo
// instance - callers register whatever literal paths their resource owns
// (some, like /token and /users/, sit outside the /api prefix).
type Controller interface {
	SetRoutes(ec *echo.Echo, authProvider *auth.Provider, tokenRate *ratelimit.Limiter)
}

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// connections and returns.
func (gw *Gateway) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gw.ec.Start(gw.cfg.HostAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.ec.Shutdown(shutdownCtx); err != nil {
			log.Warnf("error during HTTP server shutdown: %v\n", err)
		}
	}()

	wg.Wait()
	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}
