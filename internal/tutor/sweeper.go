package tutor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Expirer ends sessions idle since a cutoff. *Coordinator satisfies it.
type Expirer interface {
	ExpireIdle(before time.Time) (int, error)
}

// Sweeper periodically ends sessions that have been idle for too long.
type Sweeper struct {
	expirer   Expirer
	idle      time.Duration
	every     time.Duration
	scheduler *gocron.Scheduler
}

// NewSweeper creates a sweeper that runs every interval and ends sessions
// idle for longer than idle.
func NewSweeper(expirer Expirer, idle, every time.Duration) *Sweeper {
	return &Sweeper{
		expirer:   expirer,
		idle:      idle,
		every:     every,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the sweep without blocking.
func (s *Sweeper) Start() error {
	if s.idle <= 0 || s.every <= 0 {
		return fmt.Errorf("sweeper idle timeout and interval must be positive")
	}
	if _, err := s.scheduler.Every(s.every).SingletonMode().Do(s.Sweep); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	slog.Info("session sweeper started", "idle", s.idle.String(), "every", s.every.String())
	return nil
}

// Stop terminates the schedule.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep ends idle sessions once and returns how many were ended.
func (s *Sweeper) Sweep() int {
	n, err := s.expirer.ExpireIdle(time.Now().Add(-s.idle))
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("idle sessions ended", "count", n)
	}
	return n
}
