package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/mattcl/task-streamer/internal/platform/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// mutationLimit bounds how often one client may replace tasks or the topic.
// A push hook fires on every Taskwarrior change, so bursts are expected.
type mutationLimit struct {
	perSecond float64
	burst     int
	expiry    time.Duration
}

var defaultMutationLimit = mutationLimit{
	perSecond: 2,
	burst:     10,
	expiry:    5 * time.Minute,
}

// retryAfter is the Retry-After value in whole seconds for one token.
func (l mutationLimit) retryAfter() int {
	if l.perSecond <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(1/l.perSecond)))
}

// newMutationRateLimiter limits mutations per client IP. Rejections are
// counted by route and rendered as rate_limited errors with Retry-After.
func newMutationRateLimiter(limit mutationLimit, rejected *prometheus.CounterVec) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit.perSecond),
			Burst:     limit.burst,
			ExpiresIn: limit.expiry,
		},
	)
	retryAfter := limit.retryAfter()

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		ErrorHandler: func(c echo.Context, err error) error {
			return apperrors.InternalError("failed to identify client", err)
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			rejected.WithLabelValues(c.Path()).Inc()
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return apperrors.RateLimitedError("too many updates").
				WithField("retry_after_seconds", retryAfter)
		},
	})
}
