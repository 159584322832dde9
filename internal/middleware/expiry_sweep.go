package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
)

type expirySweeper interface {
	ExpireSessions(ctx context.Context, today time.Time) (*dto.ExpirySummary, error)
}

// ExpirySweepConfig tunes the opportunistic sweep.
type ExpirySweepConfig struct {
	MinInterval time.Duration
	Timeout     time.Duration
}

// ExpirySweep completes expired sessions before the request is handled, at most once per
// MinInterval per process. Concurrent requests inside the window skip the sweep instead of
// waiting. A failing sweep is logged and the request continues.
func ExpirySweep(sweeper expirySweeper, zone *clock.Zone, cfg ExpirySweepConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	var (
		mu      sync.Mutex
		lastRun time.Time
	)

	return func(c *gin.Context) {
		if sweeper == nil {
			c.Next()
			return
		}

		now := time.Now()
		if !mu.TryLock() {
			c.Next()
			return
		}
		due := lastRun.IsZero() || now.Sub(lastRun) >= cfg.MinInterval
		if due {
			lastRun = now
		}
		mu.Unlock()

		if due {
			ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.Timeout)
			summary, err := sweeper.ExpireSessions(ctx, zone.Today())
			cancel()
			if err != nil {
				logger.Warn("opportunistic expiry sweep failed", zap.Error(err))
			} else if len(summary.Sessions) > 0 {
				logger.Info("opportunistic expiry sweep completed sessions",
					zap.Int("sessions", len(summary.Sessions)),
					zap.Int("enrollments", summary.Enrollments),
				)
			}
		}
		c.Next()
	}
}
