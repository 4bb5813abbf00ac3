package services

import (
	"context"
	"time"
)

// RunTokenJanitor purges expired tokens every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (s *UserService) RunTokenJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpiredTokens(ctx); err != nil && ctx.Err() == nil {
				s.log.Error(ctx, "token purge failed", "error", err)
			}
		}
	}
}
