package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/apikey-service-api/internal/ierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultClientIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientThrottle is a per-client-IP token bucket for unauthenticated routes
// such as login. It lives in process memory and is not shared across replicas.
type ClientThrottle struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewClientThrottle(requestsPerSecond float64, burst int, logger *zap.Logger) *ClientThrottle {
	return &ClientThrottle{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idleTTL: defaultClientIdleTTL,
		now:     time.Now,
		logger:  logger.Named("ClientThrottle"),
	}
}

func (t *ClientThrottle) Allow(clientIP string) bool {
	now := t.now()

	t.mu.Lock()
	entry, ok := t.clients[clientIP]
	if !ok {
		entry = &clientBucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[clientIP] = entry
	}
	entry.lastAccess = now
	limiter := entry.limiter
	t.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Prune drops buckets idle for longer than the TTL and reports how many
// were removed.
func (t *ClientThrottle) Prune() int {
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for ip, entry := range t.clients {
		if entry.lastAccess.Before(cutoff) {
			delete(t.clients, ip)
			removed++
		}
	}
	return removed
}

// Run prunes idle buckets every interval until ctx is cancelled.
func (t *ClientThrottle) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := t.Prune(); removed > 0 {
				t.logger.Debug("Pruned idle client buckets", zap.Int("removed", removed))
			}
		}
	}
}

func (t *ClientThrottle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !t.Allow(clientIP) {
			t.logger.Warn("Client throttled", zap.String("client_ip", clientIP), zap.String("path", c.FullPath()))
			c.Header("Retry-After", "1")
			_ = c.Error(fmt.Errorf("%w: slow down", ierr.ErrRateLimited))
			c.Abort()
			return
		}
		c.Next()
	}
}
