package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arcflux/reeltime/internal/api/auth"
	"github.com/arcflux/reeltime/internal/database"
	"github.com/arcflux/reeltime/internal/ratelimit"
	"github.com/arcflux/reeltime/internal/user"
)

// AuthController owns credential exchange (/token), registration and
// identity (/users/*). Split out from asset/task controllers since these
// three routes sit outside the /api prefix the rest of the surface shares.
type AuthController struct {
	db        database.Queryable
	userStore *user.Store
}

func NewAuthController(db database.Queryable, userStore *user.Store) *AuthController {
	return &AuthController{db: db, userStore: userStore}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *AuthController) SetRoutes(ec *echo.Echo, authProvider *auth.Provider, tokenRate *ratelimit.Limiter) {
	ec.POST("/token", c.login(authProvider), tokenRate.Middleware)
	// registered without the trailing slash spec.md's table shows: gateway.go's
	// RemoveTrailingSlash middleware normalizes "/users/" requests to "/users"
	// before routing reaches here.
	ec.POST("/users", c.register)
	ec.GET("/users/me", c.me(authProvider), authProvider.RequireAuth)
	ec.POST("/auth/refresh", c.refresh(authProvider))
	ec.POST("/auth/logout", c.logout(authProvider), authProvider.RequireAuth)
}

func (c *AuthController) login(authProvider *auth.Provider) echo.HandlerFunc {
	return func(ec echo.Context) error {
		var req loginRequest
		if err := ec.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid login payload")
		}

		accessCookie, refreshCookie, err := authProvider.Authenticate(req.Username, req.Password)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}

		ec.SetCookie(accessCookie)
		ec.SetCookie(refreshCookie)
		return ec.JSON(http.StatusOK, map[string]string{
			"access_token": accessCookie.Value,
			"token_type":   "bearer",
		})
	}
}

func (c *AuthController) register(ec echo.Context) error {
	var req registerRequest
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid registration payload")
	}

	if err := c.userStore.Create(c.db, []byte(req.Username), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to register user")
	}

	return ec.NoContent(http.StatusCreated)
}

func (c *AuthController) me(authProvider *auth.Provider) echo.HandlerFunc {
	return func(ec echo.Context) error {
		caller, _ := auth.GetAuthenticatedUser(ec)

		u, err := c.userStore.GetWithId(c.db, caller.UserID)
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}

		return ec.JSON(http.StatusOK, u)
	}
}

func (c *AuthController) refresh(authProvider *auth.Provider) echo.HandlerFunc {
	return func(ec echo.Context) error {
		cookie, err := ec.Cookie(auth.RefreshTokenCookieName)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
		}

		accessCookie, err := authProvider.Refresh(cookie.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired refresh token")
		}

		ec.SetCookie(accessCookie)
		return ec.NoContent(http.StatusNoContent)
	}
}

func (c *AuthController) logout(authProvider *auth.Provider) echo.HandlerFunc {
	return func(ec echo.Context) error {
		if cookie, err := ec.Cookie(auth.AuthTokenCookieName); err == nil {
			authProvider.Revoke(cookie.Value, time.Hour)
		}
		return ec.NoContent(http.StatusNoContent)
	}
}
