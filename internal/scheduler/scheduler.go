package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/goclaw/internal/bus"
	"github.com/goclaw/goclaw/internal/config"
	"github.com/goclaw/goclaw/internal/sandbox"
)

// JobCategory selects the concurrency semaphore a job runs under and, for
// shell, how its content is interpreted.
type JobCategory string

const (
	CategoryLLM     JobCategory = "llm"
	CategoryShell   JobCategory = "shell"
	CategoryDefault JobCategory = "default"
)

// Job is one recurring unit of work. Content is the prompt for llm jobs
// and the command line for shell jobs.
type Job struct {
	Name     string
	Cron     *CronExpr
	Category JobCategory
	Content  string
}

// ShellRunner executes shell-category jobs. The sandbox executor
// satisfies it.
type ShellRunner interface {
	Run(ctx context.Context, inv sandbox.Invocation) (*sandbox.Result, error)
}

// Scheduler manages job registration, tick dispatch, and concurrency control.
type Scheduler struct {
	cfg        config.SchedulerConfig
	bus        *bus.MessageBus
	shell      ShellRunner
	workDir    string
	jobs       map[string]*Job
	mu         sync.RWMutex
	semaphores map[JobCategory]*Semaphore
	lock       *FileLock
}

// New creates a Scheduler. stateDir hosts the cross-process lock file and
// the directory shell jobs run in.
func New(cfg config.SchedulerConfig, stateDir string, b *bus.MessageBus, shell ShellRunner) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}
	if cfg.MaxConcLLM <= 0 {
		cfg.MaxConcLLM = 2
	}
	if cfg.MaxConcShell <= 0 {
		cfg.MaxConcShell = 1
	}
	if cfg.MaxConcDefault <= 0 {
		cfg.MaxConcDefault = 4
	}

	return &Scheduler{
		cfg:     cfg,
		bus:     b,
		shell:   shell,
		workDir: filepath.Join(stateDir, "scheduler"),
		jobs:    make(map[string]*Job),
		semaphores: map[JobCategory]*Semaphore{
			CategoryLLM:     NewSemaphore(cfg.MaxConcLLM),
			CategoryShell:   NewSemaphore(cfg.MaxConcShell),
			CategoryDefault: NewSemaphore(cfg.MaxConcDefault),
		},
		lock: NewFileLock(filepath.Join(stateDir, "scheduler.lock")),
	}
}

// LoadJobs registers the configured jobs. Invalid entries are logged and
// skipped so one bad expression does not take the daemon down.
func (s *Scheduler) LoadJobs(jobs []config.JobConfig) {
	for _, jc := range jobs {
		if err := s.AddJob(jc); err != nil {
			slog.Warn("scheduler job rejected", "name", jc.Name, "error", err)
		}
	}
}

// AddJob parses one config entry and registers it. An empty category means
// llm; unknown categories run under the default semaphore.
func (s *Scheduler) AddJob(jc config.JobConfig) error {
	name := strings.TrimSpace(jc.Name)
	if name == "" {
		return errors.New("job name is required")
	}
	if strings.TrimSpace(jc.Content) == "" {
		return errors.New("job content is required")
	}
	cron, err := ParseCron(jc.Cron)
	if err != nil {
		return err
	}

	category := JobCategory(jc.Category)
	switch category {
	case CategoryLLM, CategoryShell:
	case "":
		category = CategoryLLM
	default:
		category = CategoryDefault
	}

	s.Register(&Job{Name: name, Cron: cron, Category: category, Content: jc.Content})
	return nil
}

// Register adds a job to the scheduler.
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = job
	slog.Info("scheduler job registered", "name", job.Name, "category", job.Category)
}

// Unregister removes a job by name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
}

// Jobs returns a snapshot of the registered jobs.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Run starts the scheduler tick loop. Blocks until context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started", "tick", s.cfg.TickInterval, "jobs", len(s.jobs))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case t := <-ticker.C:
			s.tick(ctx, t)
		}
	}
}

// tick acquires the cross-process lock, then dispatches any job whose cron
// matches the tick minute. Another daemon holding the lock means this tick
// is its to run.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	acquired, err := s.lock.TryLock()
	if err != nil {
		slog.Warn("scheduler lock error", "error", err)
		return
	}
	if !acquired {
		slog.Debug("scheduler tick skipped, lock held by another process")
		return
	}
	defer s.lock.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if !job.Cron.Matches(now) {
			continue
		}
		s.dispatch(ctx, job, now)
	}
}

// dispatch runs one matching job if its category has a free slot.
func (s *Scheduler) dispatch(ctx context.Context, job *Job, now time.Time) {
	sem := s.semaphores[job.Category]
	if sem == nil {
		sem = s.semaphores[CategoryDefault]
	}

	if !sem.TryAcquire() {
		slog.Warn("scheduler job skipped, concurrency limit", "job", job.Name, "category", job.Category)
		return
	}

	slog.Info("scheduler dispatching job", "job", job.Name, "category", job.Category)

	go func() {
		defer sem.Release()
		if job.Category == CategoryShell {
			s.runShellJob(ctx, job)
			return
		}
		// Prompt jobs become synthetic inbound messages. The job name as
		// group id gives every job its own session thread.
		s.bus.PublishInbound(&bus.InboundMessage{
			From:      "scheduler",
			Channel:   "scheduler",
			Text:      job.Content,
			GroupID:   job.Name,
			Timestamp: now,
		})
	}()
}

func (s *Scheduler) runShellJob(ctx context.Context, job *Job) {
	if s.shell == nil {
		slog.Error("scheduler shell job has no runner", "job", job.Name)
		return
	}
	if err := os.MkdirAll(s.workDir, 0o700); err != nil {
		slog.Error("scheduler workspace unavailable", "job", job.Name, "error", err)
		return
	}
	res, err := s.shell.Run(ctx, sandbox.Invocation{
		Command:       job.Content,
		WorkspacePath: s.workDir,
	})
	if err != nil {
		slog.Error("scheduler shell job failed", "job", job.Name, "error", err)
		return
	}
	out := strings.TrimSpace(res.Stdout)
	if len(out) > 400 {
		out = out[:400] + "..."
	}
	slog.Info("scheduler shell job finished",
		"job", job.Name,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"output", out)
}
