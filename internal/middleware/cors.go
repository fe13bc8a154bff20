// Package middleware provides the gin middleware chain for the gateway:
// panic recovery, request logging, CORS, and optional rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for the CORS middleware. The gateway
// serves a single frontend, so a single allowed origin is enough.
type CORSConfig struct {
	// AllowOrigin is the origin allowed to access the gateway. "*" allows
	// all origins.
	AllowOrigin string

	// AllowMethods are the methods advertised on preflight.
	AllowMethods []string

	// AllowHeaders are the request headers advertised on preflight.
	AllowHeaders []string

	// MaxAge is how long (seconds) a preflight result may be cached.
	MaxAge int
}

// DefaultCORSConfig returns a CORS config with default values.
func DefaultCORSConfig(origin string) CORSConfig {
	return CORSConfig{
		AllowOrigin:  origin,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		MaxAge:       86400,
	}
}

// CORS returns a middleware allowing the single configured origin.
func CORS(origin string) gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig(origin))
}

// CORSWithConfig returns a CORS middleware with custom configuration.
func CORSWithConfig(config CORSConfig) gin.HandlerFunc {
	allowAll := config.AllowOrigin == "*"
	allowMethods := strings.Join(config.AllowMethods, ", ")
	allowHeaders := strings.Join(config.AllowHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if !allowAll && origin != config.AllowOrigin {
			c.Next()
			return
		}

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
