package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/capability"
	"github.com/arcflux/reeltime/internal/ratelimit"
)

type CapabilityController struct {
	detector *capability.Detector
}

func NewCapabilityController(detector *capability.Detector) *CapabilityController {
	return &CapabilityController{detector: detector}
}

func (c *CapabilityController) SetRoutes(ec *echo.Echo, authProvider *auth.Provider, _ *ratelimit.Limiter) {
	ec.GET("/api/capabilities", c.get, authProvider.RequireAuth)
}

func (c *CapabilityController) get(ec echo.Context) error {
	ctx, cancel := context.WithTimeout(ec.Request().Context(), 5*time.Second)
	defer cancel()

	profile, err := c.detector.Detect(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to detect capability profile")
	}

	return ec.JSON(http.StatusOK, profile)
}
