package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/repository"
)

// UserHeader carries the numeric user id set by the upstream auth layer.
const UserHeader = "X-User-Id"

// RequireUser reads the caller's id from UserHeader and makes sure a users
// row exists for it.
func RequireUser(users repository.UserRepository, clk clock.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "UNAUTHORIZED",
				"error":   "missing or invalid " + UserHeader,
			})
			return
		}
		if err := users.EnsureExists(c.Request.Context(), id, clock.NowMillis(clk)); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"code":    "INTERNAL",
				"error":   "user lookup failed",
			})
			return
		}
		c.Set(logger.UserIDKey, id)
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(logger.UserIDKey)
}
