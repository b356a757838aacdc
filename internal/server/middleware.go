package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"pinpress-api/internal/article"
	"pinpress-api/internal/auth"
	"pinpress-api/internal/inference"
	"pinpress-api/internal/pinterest"
	"pinpress-api/internal/store"
)

const ownerKey = "owner"

func (s *Server) setupMiddleware() {
	e := s.Echo

	e.HTTPErrorHandler = httpErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	origins := s.deps.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))

	e.Use(middleware.BodyLimit("2M"))
}

// requireAuth resolves the bearer token to an owner id.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "No authorization header")
		}
		owner, err := s.deps.Verifier.Verify(c.Request().Context(), token)
		if err != nil {
			c.Logger().Warnf("token verification failed: %v", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}
		c.Set(ownerKey, owner)
		return next(c)
	}
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiter.Allow(ownerID(c)) {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many generation requests, try again shortly")
		}
		return next(c)
	}
}

func ownerID(c echo.Context) string {
	owner, _ := c.Get(ownerKey).(string)
	return owner
}

func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := errorResponse(err)
	if code >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, map[string]string{"error": msg})
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

// errorResponse maps an error to a status code and a user-facing message.
func errorResponse(err error) (int, string) {
	var (
		he        *echo.HTTPError
		malformed *article.MalformedArticleError
		apiErr    *pinterest.APIError
	)
	switch {
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Article not found"
	case errors.Is(err, article.ErrEmptyTitle):
		return http.StatusBadRequest, "Title is required"
	case errors.Is(err, pinterest.ErrNoBoard):
		return http.StatusBadRequest, "Board id is required"
	case errors.Is(err, inference.ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusInternalServerError, "Generation timed out"
	case errors.As(err, &malformed):
		return http.StatusInternalServerError, malformed.Error()
	case errors.As(err, &apiErr):
		if apiErr.Message == "" {
			return http.StatusInternalServerError, "Failed to create pin"
		}
		return http.StatusInternalServerError, fmt.Sprintf("Failed to create pin: %s", apiErr.Message)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
