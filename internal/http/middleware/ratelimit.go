package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-notes/inkwell-backend/internal/http/response"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/ratelimit"
	"github.com/inkwell-notes/inkwell-backend/internal/requestdata"
)

// RateLimit counts per authenticated user, falling back to the client IP on
// unauthenticated routes. A limiter backend failure fails open.
func RateLimit(log *logger.Logger, limiter ratelimit.Limiter) gin.HandlerFunc {
	mwLog := log.With("middleware", "RateLimit")
	return func(c *gin.Context) {
		key := c.ClientIP()
		if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
			key = rd.UserID.String()
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			mwLog.Warn("Rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			if secs := int(retryAfter.Seconds()); secs > 0 {
				c.Header("Retry-After", strconv.Itoa(secs))
			}
			c.Abort()
			response.RespondError(c, http.StatusTooManyRequests, "quota_exceeded", errors.New("too many requests"))
			return
		}
		c.Next()
	}
}
