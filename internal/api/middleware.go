package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"freedomain/internal/services"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Context keys set by RequireAuth
const (
	ctxUsername = "username"
	ctxIsAdmin  = "is_admin"
)

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUsername)
}

// RequireAuth validates the bearer token and stores the caller in the context
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing or invalid token"})
			return
		}

		claims, err := h.authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing or invalid token"})
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Set(ctxIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// RequireAdmin rejects non-admin callers and reports the attempt
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ctxIsAdmin) {
			c.Next()
			return
		}

		h.securityMonitor.OnAction(c.Request.Context(), currentUser(c), services.ActionServerAccess,
			fmt.Sprintf("Non-admin access to %s %s", c.Request.Method, c.FullPath()))
		fail(c, services.ErrAdminRequired)
	}
}

// LimitRequests rejects callers exceeding the per-user request rate
func (h *Handler) LimitRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := currentUser(c)
		if h.limiter.allow(username) {
			c.Next()
			return
		}

		h.securityMonitor.OnAction(c.Request.Context(), username, services.ActionMultipleRequests,
			fmt.Sprintf("Request rate exceeded on %s %s", c.Request.Method, c.FullPath()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "too many requests"})
	}
}

// requestLimiter keeps one token bucket per username
type requestLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newRequestLimiter allows perMinute requests per user. Zero disables it.
func newRequestLimiter(perMinute, burst int) *requestLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst < 1 {
		burst = 1
	}

	return &requestLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *requestLimiter) allow(username string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[username]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[username] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
