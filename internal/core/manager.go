package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Store abstracts the durable task record storage used by the manager.
// Records carry a TTL refreshed on every write; expired records behave as
// absent.
type Store interface {
	InsertTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context) ([]*Task, error)
	// DeleteTask fails with ErrTaskRunning while the stored status is
	// running, and with ErrTaskNotFound for unknown ids.
	DeleteTask(ctx context.Context, id string) error
	MarkTaskStarted(ctx context.Context, id string, startedAt time.Time) error
	MarkTaskFinished(ctx context.Context, id string, status TaskStatus, stoppedAt time.Time) error
	// ApplyTaskCycle replaces the statistics columns with a fresh snapshot.
	// It must not touch the status column.
	ApplyTaskCycle(ctx context.Context, id string, stats Statistics, services map[string]ServiceStats, at time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sender performs one fan-out of OTP-trigger calls to every configured
// provider and reports per-provider outcomes. Individual provider
// failures are outcomes, not errors.
type Sender interface {
	Providers() []string
	SendCycle(ctx context.Context, phoneNumber string) CycleResult
}

// Notifier receives operator notifications when a task reaches a terminal
// state on its own (error or completed).
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Manager owns the task lifecycle: it creates records, launches one
// runner goroutine per running task, applies state transitions, and keeps
// the store and the in-process registry consistent.
type Manager struct {
	store    Store
	sender   Sender
	registry *Registry
	notifier Notifier
	logger   *slog.Logger

	cron *cron.Cron

	// baseCtx outlives individual runner contexts so that an in-flight
	// cycle can finish its writes after its runner has been cancelled.
	baseCtx context.Context
}

// NewManager constructs a manager. notifier may be nil.
func NewManager(store Store, sender Sender, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		sender:   sender,
		registry: NewRegistry(),
		notifier: notifier,
		logger:   logger,
		cron:     cron.New(),
		baseCtx:  context.Background(),
	}
}

// Start wires the process context and begins the periodic sweep that
// deletes expired task records.
func (m *Manager) Start(ctx context.Context, sweepEvery time.Duration) {
	m.baseCtx = ctx
	m.cron.Schedule(cron.Every(sweepEvery), cron.FuncJob(func() {
		n, err := m.store.PurgeExpired(m.ctxOrBackground(), time.Now().UTC())
		if err != nil {
			m.logger.Error("purge expired tasks", "err", err)
			return
		}
		if n > 0 {
			m.logger.Info("purged expired tasks", "count", n)
		}
	}))
	m.cron.Start()
}

// Stop cancels every active runner and halts the expiry sweep. The
// returned context is done once in-flight cron jobs have drained.
func (m *Manager) Stop() context.Context {
	m.registry.CancelAll()
	return m.cron.Stop()
}

// Registry exposes the runner registry, mainly for reconciliation checks.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// StartTask validates the request, persists a fresh record and launches
// its runner. maxIterations of zero means the task runs until stopped.
// No record is created for invalid input. If the runner cannot be
// started after the record was persisted, the record is marked error
// before the failure is returned.
func (m *Manager) StartTask(ctx context.Context, phoneNumber string, intervalSeconds int, maxIterations uint64) (*Task, error) {
	if !validPhoneNumber(phoneNumber) {
		return nil, ErrInvalidPhoneNumber
	}
	if intervalSeconds < 1 || intervalSeconds > 3600 {
		return nil, ErrInvalidInterval
	}

	now := time.Now().UTC()
	task := &Task{
		ID:              NewTaskID(),
		PhoneNumber:     phoneNumber,
		IntervalSeconds: intervalSeconds,
		MaxIterations:   maxIterations,
		Status:          TaskStatusPending,
		CreatedAt:       now,
		ServiceStats:    ZeroServiceStats(m.sender.Providers()),
	}
	if err := m.store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	runCtx, cancel := context.WithCancel(m.ctxOrBackground())
	if err := m.registry.Register(task.ID, cancel); err != nil {
		cancel()
		m.failStartup(task.ID, err)
		return nil, err
	}

	startedAt := time.Now().UTC()
	if err := m.store.MarkTaskStarted(ctx, task.ID, startedAt); err != nil {
		m.registry.Cancel(task.ID)
		m.failStartup(task.ID, err)
		return nil, fmt.Errorf("mark task started: %w", err)
	}
	task.Status = TaskStatusRunning
	task.StartedAt = &startedAt

	go m.runTask(runCtx, task.Clone())

	m.logger.Info("task started", "task_id", task.ID, "phone_number", phoneNumber, "interval_s", intervalSeconds)
	return task, nil
}

// failStartup marks a freshly created record as errored so a start
// failure never leaves it stuck in pending.
func (m *Manager) failStartup(taskID string, cause error) {
	m.logger.Error("task startup failed", "task_id", taskID, "err", cause)
	if err := m.store.MarkTaskFinished(m.ctxOrBackground(), taskID, TaskStatusError, time.Now().UTC()); err != nil {
		m.logger.Error("mark failed startup", "task_id", taskID, "err", err)
	}
}

// StopTask signals the runner to stop and records the transition.
// Stopping a task that is not running is a no-op success.
func (m *Manager) StopTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskStatusRunning {
		return m.reconcile(ctx, task), nil
	}

	// Persist the stopped status before releasing the handle, so a
	// concurrent read never observes a running record without an active
	// runner and mistakes it for an orphan. A tick already in flight
	// finishes its provider calls and writes one final statistics update;
	// that write touches counters only, so the stopped status below
	// cannot be overwritten.
	stoppedAt := time.Now().UTC()
	if err := m.store.MarkTaskFinished(ctx, taskID, TaskStatusStopped, stoppedAt); err != nil {
		return nil, fmt.Errorf("mark task stopped: %w", err)
	}
	m.registry.Cancel(taskID)
	task.Status = TaskStatusStopped
	task.StoppedAt = &stoppedAt
	m.logger.Info("task stopped", "task_id", taskID)
	return task, nil
}

// GetTask returns the current record for taskID.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return m.reconcile(ctx, task), nil
}

// ListTasks returns every live record ordered by creation time.
func (m *Manager) ListTasks(ctx context.Context) ([]*Task, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for i, task := range tasks {
		tasks[i] = m.reconcile(ctx, task)
	}
	return tasks, nil
}

// DeleteTask removes a non-running task from the store and drops any
// stale registry handle.
func (m *Manager) DeleteTask(ctx context.Context, taskID string) error {
	if err := m.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	m.registry.Cancel(taskID)
	m.logger.Info("task deleted", "task_id", taskID)
	return nil
}

// reconcile flips records that claim to be running but have no runner in
// this process (orphans left behind by a restart) to error on first
// access. The store's status is authoritative for everything else.
func (m *Manager) reconcile(ctx context.Context, task *Task) *Task {
	if task.Status != TaskStatusRunning || m.registry.Active(task.ID) {
		return task
	}
	now := time.Now().UTC()
	if err := m.store.MarkTaskFinished(ctx, task.ID, TaskStatusError, now); err != nil {
		m.logger.Error("mark orphaned task", "task_id", task.ID, "err", err)
		return task
	}
	m.logger.Warn("orphaned running task marked error", "task_id", task.ID)
	task.Status = TaskStatusError
	task.StoppedAt = &now
	return task
}

// finish records a terminal transition reached by the runner itself and
// releases its registry handle.
func (m *Manager) finish(taskID string, status TaskStatus, detail string) {
	ctx := m.ctxOrBackground()
	if err := m.store.MarkTaskFinished(ctx, taskID, status, time.Now().UTC()); err != nil {
		m.logger.Error("mark task finished", "task_id", taskID, "status", status, "err", err)
	}
	m.registry.Cancel(taskID)
	m.logger.Info("task finished", "task_id", taskID, "status", status, "detail", detail)
	if m.notifier != nil {
		title := fmt.Sprintf("otptaskd: task %s", status)
		if err := m.notifier.Send(ctx, title, fmt.Sprintf("%s: %s", taskID, detail)); err != nil {
			m.logger.Warn("notify", "task_id", taskID, "err", err)
		}
	}
}

func (m *Manager) ctxOrBackground() context.Context {
	if m.baseCtx != nil {
		return m.baseCtx
	}
	return context.Background()
}

func validPhoneNumber(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
