package v1

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// userIDContextKey carries the authenticated user id through the request.
const userIDContextKey = "user-id"

// userID returns the authenticated user id set by AuthMiddleware.
func userID(c echo.Context) int32 {
	if id, ok := c.Get(userIDContextKey).(int32); ok {
		return id
	}
	return 0
}

// AuthMiddleware accepts `Authorization: Bearer <key>` or `?token=` and
// binds the request to the key's user id. No detail leaks on failure.
func (s *APIV1Service) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := bearerToken(c)
		if key == "" {
			return errJSON(c, http.StatusUnauthorized, "Unauthorized")
		}
		id, ok := s.Profile.LookupAPIKey(key)
		if !ok {
			return errJSON(c, http.StatusUnauthorized, "Unauthorized")
		}
		c.Set(userIDContextKey, id)
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.QueryParam("token")
}

// Per-key token buckets: burst 20, 10 req/s refill.
const (
	rateLimit = rate.Limit(10)
	rateBurst = 20
)

func (s *APIV1Service) limiterFor(key string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rateLimit, rateBurst)
		s.limiters[key] = l
	}
	return l
}

// RateLimitMiddleware throttles each API key independently.
func (s *APIV1Service) RateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiterFor(bearerToken(c)).Allow() {
			return errJSON(c, http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
