package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"go.uber.org/zap"

	"github.com/retgrow/billing/pkg/logctx"
	"github.com/retgrow/billing/pkg/response"
)

const (
	RoleAdmin = "admin"
	keyRole   = "role"
)

// Claims is the token issued by the learning platform. Subject carries the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.StandardClaims
}

func parseToken(raw, secret string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !tkn.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func bearerToken(c *gin.Context) string {
	hdr := c.GetHeader("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}

// AuthMiddleware validates the HS256 bearer token and stores the user id on both
// gin.Context and the request context.
func AuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.MessageT[any](response.APIResponseCodeUnavailable, "authentication is not configured", nil))
			return
		}
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.MessageT[any](response.APIResponseCodeUnauthorized, "missing bearer token", nil))
			return
		}
		claims, err := parseToken(raw, secret)
		if err != nil {
			logctx.FromGin(c, base).Infow("auth_rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.MessageT[any](response.APIResponseCodeUnauthorized, "invalid token", nil))
			return
		}

		c.Set(logctx.KeyUserID, claims.Subject)
		c.Set(keyRole, claims.Role)
		c.Request = c.Request.WithContext(logctx.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(keyRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, response.MessageT[any](response.APIResponseCodeForbidden, "admin role required", nil))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	if uid := c.GetString(logctx.KeyUserID); uid != "" {
		return uid
	}
	return logctx.UserID(c.Request.Context())
}
