package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"ledger-service/internal/services"
)

// LockReaper periodically expires overdue top-up leases so users whose
// gateway never called back are not blocked from topping up forever.
type LockReaper struct {
	service  *services.WalletLedgerService
	interval time.Duration
	log      *logrus.Logger
}

func NewLockReaper(service *services.WalletLedgerService, interval time.Duration, log *logrus.Logger) *LockReaper {
	return &LockReaper{
		service:  service,
		interval: interval,
		log:      log,
	}
}

func (r *LockReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Infof("lock reaper started, sweeping every %s", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("lock reaper stopped")
			return

		case <-ticker.C:
			expired, err := r.service.ExpireTopupLocks(ctx)
			if err != nil {
				r.log.WithError(err).Error("failed to expire stale top-up locks")
				continue
			}
			if expired > 0 {
				r.log.Infof("expired %d stale top-up locks", expired)
			}
		}
	}
}
