package membership

import (
	"context"
	"fmt"

	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

// SweepJobName names the sweep's scheduler job and lock. The cron job, the
// admin trigger and aifansctl share it so runs never overlap.
const SweepJobName = "membership-sweep"

// Sweeper downgrades PREMIUM users whose expiry has passed. Running it twice
// is harmless; the second run matches nothing.
type Sweeper struct {
	users   repository.UserRepository
	counter counter.Recorder
	now     Clock
}

func NewSweeper(users repository.UserRepository, rec counter.Recorder, now Clock) *Sweeper {
	if now == nil {
		now = utcNow
	}
	if rec == nil {
		rec = counter.Nop{}
	}
	return &Sweeper{users: users, counter: rec, now: now}
}

// Run performs one sweep and returns the number of downgraded users.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.users.DowngradeExpiredPremium(ctx, now)
	if err != nil {
		log.Errorf("[Sweeper] downgrade failed: %v", err)
		return 0, fmt.Errorf("downgrade expired premium users: %w", err)
	}
	s.counter.Add(ctx, counter.UsersDowngraded, n)
	log.Infof("[Sweeper] downgraded %d expired premium users (cutoff %s)", n, now.Format("2006-01-02 15:04:05"))
	return n, nil
}
