package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper removes idle sessions and reports how many went and how many remain.
type Sweeper interface {
	Sweep() int
	Len() int
}

// SweepRecorder is notified after every sweep.
type SweepRecorder interface {
	RecordSweep(evicted int)
}

// Config controls which jobs run and how often.
type Config struct {
	SweepInterval time.Duration

	// KeepAliveURL is pinged every KeepAliveInterval when set, so hosted
	// instances on idle-suspending platforms stay warm.
	KeepAliveURL      string
	KeepAliveInterval time.Duration
}

// Scheduler runs the periodic background jobs: the session idle sweep and the optional keep-alive ping.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	sessions  Sweeper
	recorder  SweepRecorder
	client    *http.Client
	logger    *slog.Logger
}

// New creates a new Scheduler. recorder may be nil.
func New(cfg Config, sessions Sweeper, recorder SweepRecorder, client *http.Client, logger *slog.Logger) *Scheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 14 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
		sessions:  sessions,
		recorder:  recorder,
		client:    client,
		logger:    logger,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.cfg.SweepInterval).WaitForSchedule().Do(s.SweepSessions); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}

	if s.cfg.KeepAliveURL != "" {
		_, err := s.scheduler.Every(s.cfg.KeepAliveInterval).WaitForSchedule().Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.KeepAlive(ctx); err != nil {
				s.logger.Warn("keep-alive ping failed", "url", s.cfg.KeepAliveURL, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule keep-alive: %w", err)
		}
	} else {
		s.logger.Debug("scheduler: no keep-alive url configured")
	}

	s.scheduler.StartAsync()
	return nil
}

// SweepSessions evicts idle sessions once.
func (s *Scheduler) SweepSessions() {
	evicted := s.sessions.Sweep()
	remaining := s.sessions.Len()
	if s.recorder != nil {
		s.recorder.RecordSweep(evicted)
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", "evicted", evicted, "remaining", remaining)
	}
}

// KeepAlive issues one GET to the keep-alive url.
func (s *Scheduler) KeepAlive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.KeepAliveURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("keep-alive returned status %d", resp.StatusCode)
	}
	s.logger.Debug("keep-alive ping", "status", resp.StatusCode)
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
