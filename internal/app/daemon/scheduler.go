package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Scheduler executes a callback repeatedly. The pause after each run depends
// on its result: Interval after a success, Cooldown after a failure.
type Scheduler struct {
	settings schedulerSettings
	quit     chan struct{} // Channel for signaling termination.
	done     chan struct{} // Closed once the schedule loop has returned.
	stopOnce sync.Once
}

// Encapsulates the configuration options for a Scheduler.
type schedulerSettings struct {
	Callback        func(context.Context) error // Function to be executed at each interval.
	Interval        time.Duration               // Pause after a successful run.
	Cooldown        time.Duration               // Pause after a failed run, Interval when unset.
	LaunchInitially bool                        // Flag indicating whether to execute the callback immediately upon scheduling.
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// ScheduleWithCtx launches the schedule loop in the background.
//
// Returns an error only if invalid settings are provided (e.g., interval <= 0 or nil callback).
// The loop ends when ctx is cancelled or Stop is called, never in the middle of a run.
func (s *Scheduler) ScheduleWithCtx(ctx context.Context, settings schedulerSettings) error {
	if settings.Interval <= 0 {
		return errors.New("interval must be larger than 0")
	}
	if settings.Callback == nil {
		return errors.New("callback is nil")
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = settings.Interval
	}

	s.settings = settings
	go s.runSchedule(ctx)
	return nil
}

func (s *Scheduler) runSchedule(ctx context.Context) {
	defer close(s.done)

	var delay time.Duration
	if !s.settings.LaunchInitially {
		delay = s.settings.Interval
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			next := s.settings.Interval
			if err := s.invoke(ctx); err != nil {
				next = s.settings.Cooldown
			}
			timer.Reset(next)
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()

	return s.settings.Callback(ctx)
}

// Stop terminates the Scheduler and waits for a run in progress to finish.
// It must only be called after a successful ScheduleWithCtx.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.done
}
