package session

import (
	"context"
	"time"

	"github.com/PabloGalante/voicechat/internal/observability"
)

// Sweep calls CleanupExpired every interval until ctx is done.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	log := observability.Logger().With("component", "session")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.CleanupExpired(); n > 0 {
				log.Info("expired sessions purged", "count", n)
			}
		}
	}
}
