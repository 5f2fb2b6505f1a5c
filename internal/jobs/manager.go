// Package jobs runs periodic maintenance work on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"document-portal/portal-backend/pkg/metrics"
)

// Job is one named periodic task. Spec uses the six-field form with seconds,
// e.g. "0 */30 * * * *".
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Status reports the scheduling state of a registered job
type Status struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	NextRun   time.Time `json:"next_run"`
	PrevRun   time.Time `json:"prev_run"`
	LastError string    `json:"last_error,omitempty"`
}

// Manager owns the cron scheduler. Runs of the same job never overlap and a
// panicking job is logged instead of killing the process.
type Manager struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	specs   map[string]string
	errs    map[string]string
	metrics *metrics.Collector
	logger  *zap.Logger
	mu      sync.RWMutex
	running bool
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewManager(logger *zap.Logger, collector *metrics.Collector) *Manager {
	cl := cronLogger{logger}
	return &Manager{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:    make(map[string]cron.EntryID),
		specs:   make(map[string]string),
		errs:    make(map[string]string),
		metrics: collector,
		logger:  logger,
	}
}

// Add registers job, replacing any job with the same name.
func (m *Manager) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a run function")
	}
	if err := ValidateSpec(job.Spec); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.jobs[job.Name]; ok {
		m.cron.Remove(id)
	}
	id, err := m.cron.AddFunc(job.Spec, func() { m.execute(context.Background(), job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", job.Name, err)
	}
	m.jobs[job.Name] = id
	m.specs[job.Name] = job.Spec
	m.logger.Info("Added job", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

// RunNow executes job synchronously outside the schedule.
func (m *Manager) RunNow(ctx context.Context, job Job) error {
	return m.execute(ctx, job)
}

func (m *Manager) execute(ctx context.Context, job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	result := "ok"
	m.mu.Lock()
	if err != nil {
		result = "error"
		m.errs[job.Name] = err.Error()
	} else {
		delete(m.errs, job.Name)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Inc("job_runs_total", map[string]string{"job": job.Name, "result": result})
		m.metrics.Observe("job "+job.Name, elapsed)
	}
	if err != nil {
		m.logger.Error("Job failed", zap.String("job", job.Name), zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	m.logger.Info("Job completed", zap.String("job", job.Name), zap.Duration("duration", elapsed))
	return nil
}

func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("job manager already running")
	}
	m.running = true
	m.cron.Start()
	m.logger.Info("Job manager started", zap.Int("jobs", len(m.jobs)))
	return nil
}

// Stop halts scheduling and waits for running jobs to finish or ctx to end.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		m.logger.Warn("Job manager stopped before running jobs finished")
	}
}

func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.jobs))
	for name, id := range m.jobs {
		entry := m.cron.Entry(id)
		out = append(out, Status{
			Name:      name,
			Spec:      m.specs[name],
			NextRun:   entry.Next,
			PrevRun:   entry.Prev,
			LastError: m.errs[name],
		})
	}
	return out
}

func ValidateSpec(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
