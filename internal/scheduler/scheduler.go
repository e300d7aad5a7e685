// Package scheduler runs future one-shot and recurring tasks in guild
// channels. Tasks persist in SQLite and survive restarts; on startup,
// slightly overdue tasks still run while long-stale ones are discarded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/namielle/summabot/internal/observability"
)

// Scheduling limits, enforced when tasks are created.
const (
	// MinLead is the minimum delay before a task may fire.
	MinLead = time.Minute
	// MaxHorizon is how far in the future a task may be scheduled.
	MaxHorizon = 30 * 24 * time.Hour
	// MaxPerGuild caps pending tasks per guild.
	MaxPerGuild = 25
	// StaleThreshold is how overdue a task may be at startup and still run.
	StaleThreshold = time.Hour

	defaultPollInterval = 30 * time.Second
)

var (
	ErrTooSoon   = fmt.Errorf("tasks must be scheduled at least %s in the future", MinLead)
	ErrTooFar    = errors.New("tasks cannot be scheduled more than 30 days ahead")
	ErrGuildFull = fmt.Errorf("this server already has %d scheduled tasks; cancel one first", MaxPerGuild)
)

// Runner executes a due task. Static tasks post their content verbatim;
// dynamic tasks run the conversation engine first.
type Runner interface {
	RunTask(ctx context.Context, task Task) error
}

// Service owns the task store and the polling loop that fires due tasks.
type Service struct {
	store   *Store
	runner  Runner
	logger  *observability.Logger
	metrics *observability.Metrics

	now          func() time.Time
	pollInterval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPollInterval overrides the 30s poll interval, for tests.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) { s.pollInterval = d }
}

// NewService creates a scheduler service around a store and runner.
func NewService(store *Store, runner Runner, opts ...Option) *Service {
	s := &Service{
		store:        store,
		runner:       runner,
		logger:       observability.NewLogger(observability.LogConfig{}),
		now:          time.Now,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule validates and persists a new task, returning it with its assigned
// ID. For recurring tasks, executeAt is the first firing and cronSpec
// determines the rest.
func (s *Service) Schedule(ctx context.Context, guildID, channelID string, taskType TaskType, content string, executeAt time.Time, cronSpec, createdBy string) (*Task, error) {
	now := s.now()
	if executeAt.Before(now.Add(MinLead)) {
		return nil, ErrTooSoon
	}
	if executeAt.After(now.Add(MaxHorizon)) {
		return nil, ErrTooFar
	}
	if taskType != TaskStatic && taskType != TaskDynamic {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}
	if cronSpec != "" {
		if _, err := cron.ParseStandard(cronSpec); err != nil {
			return nil, fmt.Errorf("invalid recurrence %q: %w", cronSpec, err)
		}
	}

	count, err := s.store.CountGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if count >= MaxPerGuild {
		return nil, ErrGuildFull
	}

	task := Task{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		ChannelID: channelID,
		Type:      taskType,
		Content:   content,
		ExecuteAt: executeAt,
		CronSpec:  cronSpec,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if err := s.store.Add(ctx, task); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns a guild's pending tasks.
func (s *Service) List(ctx context.Context, guildID string) ([]Task, error) {
	return s.store.ListGuild(ctx, guildID)
}

// Cancel removes a task by ID within a guild.
func (s *Service) Cancel(ctx context.Context, guildID, taskID string) error {
	return s.store.Delete(ctx, guildID, taskID)
}

// Start launches the polling loop. It first sweeps tasks that came due while
// the bot was down: tasks overdue by less than StaleThreshold still run,
// older ones are discarded with a log line.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.sweepStale(runCtx); err != nil {
		s.logger.Warn(runCtx, "stale task sweep failed", "error", err)
	}

	go s.loop(runCtx)
	return nil
}

// Stop terminates the polling loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

func (s *Service) sweepStale(ctx context.Context) error {
	now := s.now()
	due, err := s.store.Due(ctx, now)
	if err != nil {
		return err
	}
	for _, task := range due {
		if now.Sub(task.ExecuteAt) > StaleThreshold {
			s.logger.Warn(ctx, "discarding stale task",
				"task_id", task.ID, "guild_id", task.GuildID, "overdue", now.Sub(task.ExecuteAt).String())
			s.record(task, "stale")
			s.finish(ctx, task)
			continue
		}
		s.run(ctx, task)
	}
	return nil
}

// dispatchDue runs every task due at this tick, sequentially and oldest
// first so a guild's tasks fire in the order they were scheduled.
func (s *Service) dispatchDue(ctx context.Context) {
	due, err := s.store.Due(ctx, s.now())
	if err != nil {
		s.logger.Error(ctx, "listing due tasks failed", "error", err)
		return
	}
	for _, task := range due {
		s.run(ctx, task)
	}
}

func (s *Service) run(ctx context.Context, task Task) {
	if err := s.runner.RunTask(ctx, task); err != nil {
		s.logger.Error(ctx, "scheduled task failed",
			"task_id", task.ID, "guild_id", task.GuildID, "type", string(task.Type), "error", err)
		s.record(task, "error")
	} else {
		s.record(task, "ok")
	}
	// A failed run is not retried; the task is consumed either way.
	s.finish(ctx, task)
}

// finish deletes a one-shot task or advances a recurring one.
func (s *Service) finish(ctx context.Context, task Task) {
	if task.CronSpec != "" {
		schedule, err := cron.ParseStandard(task.CronSpec)
		if err == nil {
			next := schedule.Next(s.now())
			if err := s.store.Reschedule(ctx, task.ID, next); err != nil {
				s.logger.Error(ctx, "rescheduling recurring task failed", "task_id", task.ID, "error", err)
			}
			return
		}
		s.logger.Error(ctx, "recurring task has unparseable spec, dropping", "task_id", task.ID, "spec", task.CronSpec)
	}
	if err := s.store.Delete(ctx, task.GuildID, task.ID); err != nil && !errors.Is(err, ErrTaskNotFound) {
		s.logger.Error(ctx, "deleting finished task failed", "task_id", task.ID, "error", err)
	}
}

func (s *Service) record(task Task, status string) {
	if s.metrics != nil {
		s.metrics.RecordTask(string(task.Type), status)
	}
}
