// Package cron schedules recurring maintenance jobs.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobManager runs named jobs on cron schedules (with seconds). A job never
// overlaps with itself; a tick that arrives while it still runs is skipped.
type JobManager struct {
	cron    *cron.Cron
	logger  pipeline.Logger
	metrics pipeline.MetricsCollector
	timeout time.Duration

	mutex   sync.RWMutex
	entries map[string]cron.EntryID
	running map[string]bool
}

// NewJobManager creates a manager whose jobs get at most timeout per run.
func NewJobManager(timeout time.Duration, logger pipeline.Logger, metrics pipeline.MetricsCollector) *JobManager {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &JobManager{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger.With(pipeline.String("component", "cron")),
		metrics: metrics,
		timeout: timeout,
		entries: make(map[string]cron.EntryID),
		running: make(map[string]bool),
	}
}

// Schedule registers fn under name. Names are unique.
func (m *JobManager) Schedule(name, schedule string, fn JobFunc) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.entries[name]; exists {
		return fmt.Errorf("job %q already scheduled", name)
	}
	entryID, err := m.cron.AddFunc(schedule, func() { m.Run(name, fn) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	m.entries[name] = entryID
	m.logger.Info("Scheduled job", pipeline.String("job", name), pipeline.String("schedule", schedule))
	return nil
}

// Start starts the scheduler in its own goroutine.
func (m *JobManager) Start() {
	m.cron.Start()
}

// Run executes fn once under name unless it is already running. It reports
// whether the job ran.
func (m *JobManager) Run(name string, fn JobFunc) bool {
	m.mutex.Lock()
	if m.running[name] {
		m.mutex.Unlock()
		m.logger.Warn("Job already in progress, skipping", pipeline.String("job", name))
		return false
	}
	m.running[name] = true
	m.mutex.Unlock()

	defer func() {
		m.mutex.Lock()
		m.running[name] = false
		m.mutex.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := time.Now()
	result := "success"
	if err := fn(ctx); err != nil {
		result = "error"
		m.logger.Error("Job failed", pipeline.String("job", name), pipeline.Error(err))
	} else {
		m.logger.Debug("Job completed", pipeline.String("job", name), pipeline.Duration("took", time.Since(start)))
	}
	m.metrics.RecordCounter("cron_runs", 1, map[string]string{"job": name, "result": result})
	return true
}

// Stop stops the scheduler and waits for running jobs to finish.
func (m *JobManager) Stop() {
	<-m.cron.Stop().Done()
	m.logger.Info("Job manager stopped")
}

// NextRun returns the next scheduled run of a job, or the zero time.
func (m *JobManager) NextRun(name string) time.Time {
	m.mutex.RLock()
	entryID, ok := m.entries[name]
	m.mutex.RUnlock()
	if !ok {
		return time.Time{}
	}
	return m.cron.Entry(entryID).Next
}

// IsRunning returns whether a job is currently in progress.
func (m *JobManager) IsRunning(name string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running[name]
}
