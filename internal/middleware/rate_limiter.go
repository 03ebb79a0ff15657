package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// DefaultUploadRate is the per-IP request rate allowed on upload routes.
const DefaultUploadRate = 10

// RateLimiter limits requests to DefaultUploadRate per second per IP address
// for the routes it's applied to.
func RateLimiter() echo.MiddlewareFunc {
	return RateLimiterWithRate(DefaultUploadRate)
}

// RateLimiterWithRate limits requests to perSec per second per IP address,
// allowing bursts of the same size.
func RateLimiterWithRate(perSec float64) echo.MiddlewareFunc {
	if perSec <= 0 {
		perSec = DefaultUploadRate
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}

	config := middleware.RateLimiterConfig{
		// In-memory store, suitable for a single instance.
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSec),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.String(http.StatusForbidden, "Unable to identify client.")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			FromContext(c.Request().Context()).Warn("Upload rate limit exceeded", "client_ip", identifier)
			return c.String(http.StatusTooManyRequests, "Too many requests. Please try again later.")
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
