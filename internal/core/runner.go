package core

import (
	"context"
	"time"
)

// runTask is the per-task execution loop. Each running task owns exactly
// one of these goroutines, which is what serializes its ticks: the next
// tick cannot begin before the previous cycle's statistics write has
// landed. The loop exits on cancellation, on a persistence failure
// (task goes to error) or when the optional iteration bound is reached
// (task goes to completed).
//
// Provider calls and store writes run under the manager's base context,
// not the runner context, so a cycle in flight at cancellation time may
// complete and persist one final update after the stop was requested.
func (m *Manager) runTask(ctx context.Context, task *Task) {
	interval := time.Duration(task.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stats := task.Stats
	services := task.ServiceStats

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cycle := m.sender.SendCycle(m.ctxOrBackground(), task.PhoneNumber)
		stats, services = ApplyCycle(stats, services, cycle)

		now := time.Now().UTC()
		if err := m.store.ApplyTaskCycle(m.ctxOrBackground(), task.ID, stats, services, now); err != nil {
			m.logger.Error("persist cycle", "task_id", task.ID, "iteration", stats.Iterations, "err", err)
			m.finish(task.ID, TaskStatusError, "persistence failure: "+err.Error())
			return
		}

		m.logger.Debug("cycle complete",
			"task_id", task.ID,
			"iteration", stats.Iterations,
			"successful", stats.SuccessfulRequests,
			"failed", stats.FailedRequests)

		if task.MaxIterations > 0 && stats.Iterations >= task.MaxIterations {
			m.finish(task.ID, TaskStatusCompleted, "iteration limit reached")
			return
		}
	}
}
