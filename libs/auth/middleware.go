package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextOwnerKey holds the authenticated wallet address.
const ContextOwnerKey = "owner"

type rejection struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	AbortCode uint16 `json:"abort_code"`
}

func reject(c *gin.Context, reason string) {
	c.Header("WWW-Authenticate", `Bearer realm="fee-router"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, rejection{Code: "UNAUTHORIZED", Message: reason})
}

// Middleware requires a bearer token signed with secret and exposes its
// subject through Owner.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractBearer(c.GetHeader("Authorization"))
		if raw == "" {
			reject(c, "missing token")
			return
		}
		claims, err := ParseJWT(raw, secret)
		if err != nil {
			reject(c, "invalid token")
			return
		}
		c.Set(ContextOwnerKey, claims.Subject)
		c.Next()
	}
}

// Owner returns the wallet address set by Middleware.
func Owner(c *gin.Context) (string, bool) {
	owner := c.GetString(ContextOwnerKey)
	return owner, owner != ""
}
