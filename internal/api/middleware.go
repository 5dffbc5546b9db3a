package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys for values set by the middleware.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyDriverID  = "auth_driver_id"
	ContextKeyClaims    = "auth_claims"
)

// providerAnonymous marks tokens issued to guest sessions of the identity
// provider. Guests can browse but never act as drivers.
const providerAnonymous = "anonymous"

var errAnonymous = errors.New("anonymous token")

// Claims are the access token claims issued by the identity provider. The
// driver ID is the standard subject claim.
type Claims struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid access token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("access token has no subject")
	}
	if claims.Provider == providerAnonymous {
		return nil, errAnonymous
	}
	return claims, nil
}

// JWTAuth validates the Bearer token of the request. On success the driver ID
// and claims are stored in the Gin context; otherwise the request is aborted
// with 401, or 403 for anonymous tokens.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format; expected 'Bearer <token>'"})
			return
		}

		claims, err := ParseToken(secret, strings.TrimSpace(parts[1]))
		if errors.Is(err, errAnonymous) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "guest accounts cannot use driver features"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextKeyDriverID, claims.Subject)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// DriverID returns the authenticated driver, or "" outside JWTAuth.
func DriverID(c *gin.Context) string {
	return c.GetString(ContextKeyDriverID)
}

func claimsFrom(c *gin.Context) *Claims {
	if v, ok := c.Get(ContextKeyClaims); ok {
		if claims, ok := v.(*Claims); ok {
			return claims
		}
	}
	return &Claims{}
}

// Timeout attaches a deadline to the request context and answers 503 if the
// deadline fired before the handler wrote anything. The chain runs on the
// request goroutine.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() != nil && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "request timed out"})
		}
	}
}

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}
