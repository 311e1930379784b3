package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs named jobs on cron schedules ("@every 30m", "0 6 * * *").
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		entries: map[string]cron.EntryID{},
	}
}

// Add registers fn under name, replacing any job with the same name. An empty
// spec leaves the job disabled.
func (s *Scheduler) Add(name, spec string, fn func() error) error {
	spec = strings.TrimSpace(spec)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
		delete(s.entries, name)
	}
	if spec == "" {
		slog.Info("scheduled job disabled", "job", name)
		return nil
	}

	id, err := s.cron.AddFunc(spec, func() {
		if err := fn(); err != nil {
			slog.Warn("scheduled job failed", "job", name, "error", err)
			return
		}
		slog.Debug("scheduled job ran", "job", name)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.entries[name] = id
	slog.Info("scheduled job registered", "job", name, "schedule", spec)
	return nil
}

// Run executes the named job immediately, outside its schedule.
func (s *Scheduler) Run(name string) bool {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	e := s.cron.Entry(id)
	if !e.Valid() {
		return false
	}
	e.WrappedJob.Run()
	return true
}

func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
