package controlplane

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// Claims is the bearer token payload an operator's JWT is expected to
// carry. Role is placed in the gin context for RoleAuth below to check.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var claimsPool = sync.Pool{New: func() interface{} { return &Claims{} }}

// AuthMiddleware validates the bearer token against the configured secret
// and places username/role into the gin context for downstream handlers
// and RoleAuth to read.
func AuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed Authorization header"})
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := claimsPool.Get().(*Claims)
		defer claimsPool.Put(claims)
		*claims = Claims{}

		if err := validateToken(tokenString, claims, secret); err != nil {
			logger.Warn("control-plane API: token validation failed", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func validateToken(tokenString string, claims *Claims, secret string) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err
}

// RoleAuth requires the authenticated caller to hold requiredRole. The
// control-plane route wiring does not install it, so no route is
// currently gated by role.
func RoleAuth(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists || role != requiredRole {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimiter caps each client IP to limit requests per minute — a
// control plane with unlimited polling becomes noise an operator has to
// filter through during an actual incident.
func RateLimiter(requestsPerMinute int64, logger *zap.Logger) gin.HandlerFunc {
	rate := limiter.Rate{Period: time.Minute, Limit: requestsPerMinute}
	instance := limiter.New(memory.NewStore(), rate)

	return func(c *gin.Context) {
		ctx, err := instance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Error("rate limiter lookup failed", zap.Error(err))
			c.Next()
			return
		}
		if ctx.Reached {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// SecurityHeaders sets the handful of response headers an operator-facing
// control surface should always carry.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}
