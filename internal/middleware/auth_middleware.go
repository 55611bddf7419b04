package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"flight-radar/internal/cache"
	"flight-radar/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware accepts either the admin API key or a bearer token
// issued by /api/admin/token.
func AdminAuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")

		authHeader := c.GetHeader("Authorization")
		var tokenString string
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		switch {
		case apiKey != "":
			if err := authService.ValidateAPIKey(apiKey); err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				return
			}
			c.Set("admin_auth", "api_key")
		case tokenString != "":
			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				return
			}
			c.Set("admin_auth", "jwt")
			c.Set("token_id", claims.ID)
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Next()
	}
}

// RateLimitMiddleware caps requests per client IP per clock hour. Counters
// live in redis when available so the cap holds across replicas.
func RateLimitMiddleware(cm *cache.CacheManager, limitPerHour int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", ClientIPv4(c), time.Now().UTC().Format("2006-01-02-15"))

		count, err := cm.Increment(key, 1, time.Hour)
		if err != nil {
			// If cache fails, continue without rate limiting
			c.Next()
			return
		}

		if count > int64(limitPerHour) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "Rate limit exceeded",
				"limit":     limitPerHour,
				"remaining": 0,
			})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limitPerHour))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limitPerHour-int(count)))

		c.Next()
	}
}

// ClientIPv4 returns the caller address, unwrapping IPv4-mapped IPv6.
func ClientIPv4(c *gin.Context) string {
	ip := c.ClientIP()
	if parsed := net.ParseIP(ip); parsed != nil {
		if v4 := parsed.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ip
}

func ValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bodies on POST/PUT must be JSON; empty bodies are fine.
		if (c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut) && c.Request.ContentLength > 0 {
			contentType := c.GetHeader("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Content-Type must be application/json"})
				return
			}
		}
		c.Next()
	}
}
