package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pytutor/pytutor/internal/common"
	"github.com/pytutor/pytutor/internal/store/redisstore"
)

// TurnRateLimit caps turns per thread in a fixed window. Redis being
// unreachable fails open: losing rate limiting is better than losing chat.
func TurnRateLimit(rds *redisstore.Store, limit int, window time.Duration, threadIDFrom func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		threadID := threadIDFrom(c)
		if threadID == "" {
			c.Next()
			return
		}

		allowed, err := rds.AllowTurn(c.Request.Context(), threadID, limit, window)
		if err != nil {
			log.Printf("rate limit check failed thread=%s err=%v", threadID, err)
			c.Next()
			return
		}
		if !allowed {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many turns, slow down")
			c.Abort()
			return
		}
		c.Next()
	}
}
