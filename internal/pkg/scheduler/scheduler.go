// Package scheduler runs periodic maintenance jobs on a seconds-resolution
// cron. Every run takes a distributed lock first so replicas do not overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aifans/aifans/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSpec = "0 0 1 * * *"

	defaultLockTTL    = 10 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

type Config struct {
	Enabled    bool
	LockTTL    time.Duration
	JobTimeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Enabled:    env.GetEnvBool("SCHEDULER_ENABLED", true),
		LockTTL:    env.GetEnvDuration("SCHEDULER_LOCK_TTL", defaultLockTTL),
		JobTimeout: env.GetEnvDuration("SCHEDULER_JOB_TIMEOUT", defaultJobTimeout),
	}
}

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	locker Locker

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	running bool
}

func New(cfg Config, locker Locker) *Scheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if locker == nil {
		locker = NopLocker{}
	}
	return &Scheduler{
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		locker: locker,
		jobs:   make(map[string]cron.EntryID),
	}
}

// AddJob registers fn under name with a six-field cron spec.
func (s *Scheduler) AddJob(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		if _, err := s.RunLocked(ctx, name, fn); err != nil {
			log.Errorf("[Scheduler] job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid spec %q for %s: %w", spec, name, err)
	}
	s.jobs[name] = id
	log.Infof("[Scheduler] registered job %s (%s)", name, spec)
	return nil
}

// RunLocked runs fn while holding the job's lock. It reports false without
// running fn when another process holds the lock.
func (s *Scheduler) RunLocked(ctx context.Context, name string, fn JobFunc) (bool, error) {
	unlock, err := s.locker.TryLock(ctx, "scheduler:"+name, s.cfg.LockTTL)
	if err != nil {
		log.Infof("[Scheduler] skipping %s: lock not acquired (%v)", name, err)
		return false, nil
	}
	defer unlock()

	start := time.Now()
	log.Infof("[Scheduler] running %s", name)
	if err := fn(ctx); err != nil {
		return true, err
	}
	log.Infof("[Scheduler] %s finished in %s", name, time.Since(start).Round(time.Millisecond))
	return true, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled {
		log.Info("[Scheduler] disabled by configuration")
		return
	}
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	log.Infof("[Scheduler] started with %d job(s)", len(s.jobs))
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info("[Scheduler] stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs lists the registered job names with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.jobs))
	for name, id := range s.jobs {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}
