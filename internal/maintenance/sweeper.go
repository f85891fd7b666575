package maintenance

import (
	"context"
	"time"

	"shop-auth/internal/observability"
	"shop-auth/internal/otp"
	"shop-auth/internal/session"
)

const defaultInterval = 5 * time.Minute

// Sweeper runs the periodic janitor: it marks and purges expired OTP
// codes and hard-deletes expired refresh sessions. Best-effort only; a
// failed pass is logged and retried on the next tick, never sooner.
type Sweeper struct {
	ledger   *otp.Ledger
	sessions *session.Service
	logger   *observability.Logger
	interval time.Duration
}

func NewSweeper(ledger *otp.Ledger, sessions *session.Service, logger *observability.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{ledger: ledger, sessions: sessions, logger: logger, interval: interval}
}

// Start launches the sweep loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep pass. Uses the same storage paths and
// guarantees as request handling; errors are swallowed after logging.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if err := s.ledger.Sweep(ctx, now); err != nil {
		s.logger.Error("otp_sweep_failed", map[string]any{"error": err.Error()})
	}

	deleted, err := s.sessions.PurgeExpired(ctx, now)
	if err != nil {
		s.logger.Error("session_purge_failed", map[string]any{"error": err.Error()})
		return
	}

	if deleted > 0 {
		s.logger.Info("session_purge", map[string]any{"deleted": deleted})
	}
}
