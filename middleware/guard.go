package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/passgate"
)

const (
	identityKey    = "passgate.identity"
	verifyEmailKey = "passgate.verify_email"
	verifyTokenKey = "passgate.verify_token"
)

// TokenValidator decodes engine tokens. *passgate.Engine implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*passgate.Identity, error)
	ValidateVerifyToken(token string) (string, error)
}

// RequireAccess admits requests carrying a valid access token and stores
// the identity for IdentityFrom.
func RequireAccess(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || v == nil {
			abortUnauthorized(c, "Bearer token required.")
			return
		}
		id, err := v.ValidateAccessToken(token)
		if err != nil {
			abortUnauthorized(c, "Invalid access token.")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireVerifyScope admits requests carrying a live verify-scope token. The
// handler must still match the submitted email against VerifiedEmail.
func RequireVerifyScope(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || v == nil {
			abortUnauthorized(c, "Verification token required.")
			return
		}
		email, err := v.ValidateVerifyToken(token)
		if err != nil {
			abortUnauthorized(c, "Invalid verification token.")
			return
		}
		c.Set(verifyEmailKey, email)
		c.Set(verifyTokenKey, token)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (*passgate.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*passgate.Identity)
	return id, ok
}

// VerifiedEmail returns the email bound to the request's verify-scope token.
func VerifiedEmail(c *gin.Context) (string, bool) {
	return c.GetString(verifyEmailKey), c.GetString(verifyEmailKey) != ""
}

// VerifyToken returns the raw verify-scope token admitted by
// RequireVerifyScope.
func VerifyToken(c *gin.Context) string {
	return c.GetString(verifyTokenKey)
}

func abortUnauthorized(c *gin.Context, description string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_token",
		"error_description": description,
	})
}

func bearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
