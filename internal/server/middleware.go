package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bozorlab/marketpulse/internal/accountctx"
)

// HeaderAccount carries the caller's account id. Authentication happens at
// the gateway; this header is the trust boundary handoff.
const HeaderAccount = "X-Account-ID"

// AccountRequired resolves the account header into the request context. API
// routes refuse requests without a usable account id.
func AccountRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderAccount))
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || accountID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := accountctx.WithAccountID(c.Request.Context(), accountID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
