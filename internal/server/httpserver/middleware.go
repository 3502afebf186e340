package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/poapgate/internal/logging"
	"github.com/gin-gonic/gin"
)

const addrKey = "addr"

// Authenticator resolves a bearer token to the address it was issued to.
type Authenticator interface {
	Authenticate(token string) (string, error)
}

// JWTMiddleware rejects requests without a valid bearer token and stores the
// caller's address under "addr".
func JWTMiddleware(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": "missing bearer token"})
			return
		}
		addr, err := a.Authenticate(h[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"err": err.Error()})
			return
		}
		c.Set(addrKey, addr)
		c.Next()
	}
}

func requestLogger(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
			"addr", c.GetString(addrKey))
	}
}
