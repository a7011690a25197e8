package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"otptaskd/internal/core"
)

// timeFormat is RFC3339 with fixed-width nanoseconds. Timestamps are
// compared as TEXT (expiry filters, creation-time ordering), and the
// fixed width keeps those comparisons exact at sub-second granularity,
// which RFC3339Nano's trimmed trailing zeros would not.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// expiresFrom computes the refreshed expiry for a write happening at now.
func (s *Store) expiresFrom(now time.Time) string {
	return now.Add(s.TTL).UTC().Format(timeFormat)
}

// InsertTask persists a freshly created record. The expiry window starts
// at insert time.
func (s *Store) InsertTask(ctx context.Context, task *core.Task) error {
	services, err := json.Marshal(task.ServiceStats)
	if err != nil {
		return fmt.Errorf("encode services stats: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO tasks (id, phone_number, interval_seconds, max_iterations, status,
			created_at, started_at, stopped_at, last_activity,
			iterations, total_requests, successful_requests, failed_requests,
			services_stats, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.PhoneNumber, task.IntervalSeconds, task.MaxIterations, task.Status,
		task.CreatedAt.UTC().Format(timeFormat),
		nullableTime(task.StartedAt), nullableTime(task.StoppedAt), nullableTime(task.LastActivity),
		task.Stats.Iterations, task.Stats.TotalRequests, task.Stats.SuccessfulRequests, task.Stats.FailedRequests,
		string(services), s.expiresFrom(now))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask loads a record by id. Expired rows behave as absent.
func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, phone_number, interval_seconds, max_iterations, status,
			created_at, started_at, stopped_at, last_activity,
			iterations, total_requests, successful_requests, failed_requests, services_stats
		FROM tasks
		WHERE id = ? AND expires_at > ?
	`, id, time.Now().UTC().Format(timeFormat))
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListTasks returns every live record ordered by creation time.
func (s *Store) ListTasks(ctx context.Context) ([]*core.Task, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, phone_number, interval_seconds, max_iterations, status,
			created_at, started_at, stopped_at, last_activity,
			iterations, total_requests, successful_requests, failed_requests, services_stats
		FROM tasks
		WHERE expires_at > ?
		ORDER BY created_at ASC
	`, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var tasks []*core.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// DeleteTask removes a record. Running tasks must be stopped first.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	var status string
	err := s.DB.QueryRowContext(ctx, `
		SELECT status FROM tasks WHERE id = ? AND expires_at > ?
	`, id, time.Now().UTC().Format(timeFormat)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("check task status: %w", err)
	}
	if core.TaskStatus(status) == core.TaskStatusRunning {
		return core.ErrTaskRunning
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// MarkTaskStarted transitions a record to running.
func (s *Store) MarkTaskStarted(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, started_at = ?, expires_at = ?
		WHERE id = ?
	`, core.TaskStatusRunning, startedAt.UTC().Format(timeFormat), s.expiresFrom(startedAt), id)
	if err != nil {
		return fmt.Errorf("mark task started: %w", err)
	}
	return requireRow(res)
}

// MarkTaskFinished records a terminal transition (stopped, completed or
// error) together with the stop timestamp.
func (s *Store) MarkTaskFinished(ctx context.Context, id string, status core.TaskStatus, stoppedAt time.Time) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, stopped_at = ?, expires_at = ?
		WHERE id = ?
	`, status, stoppedAt.UTC().Format(timeFormat), s.expiresFrom(stoppedAt), id)
	if err != nil {
		return fmt.Errorf("mark task finished: %w", err)
	}
	return requireRow(res)
}

// ApplyTaskCycle replaces the statistics columns with the snapshot for
// one completed cycle. A single UPDATE keeps the write atomic, and the
// status column is deliberately untouched so a late cycle write cannot
// resurrect a task stopped concurrently.
func (s *Store) ApplyTaskCycle(ctx context.Context, id string, stats core.Statistics, services map[string]core.ServiceStats, at time.Time) error {
	encoded, err := json.Marshal(services)
	if err != nil {
		return fmt.Errorf("encode services stats: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET iterations = ?, total_requests = ?, successful_requests = ?, failed_requests = ?,
			services_stats = ?, last_activity = ?, expires_at = ?
		WHERE id = ?
	`, stats.Iterations, stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests,
		string(encoded), at.UTC().Format(timeFormat), s.expiresFrom(at), id)
	if err != nil {
		return fmt.Errorf("apply task cycle: %w", err)
	}
	return requireRow(res)
}

// PurgeExpired deletes records whose expiry has passed and reports how
// many were removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tasks WHERE expires_at <= ?`,
		now.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("purge expired tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func requireRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return core.ErrTaskNotFound
	}
	return nil
}

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*core.Task, error) {
	var (
		id           string
		phoneNumber  string
		interval     int
		maxIter      uint64
		status       string
		createdAt    string
		startedAt    sql.NullString
		stoppedAt    sql.NullString
		lastActivity sql.NullString
		stats        core.Statistics
		services     string
	)
	if err := scanner.Scan(&id, &phoneNumber, &interval, &maxIter, &status,
		&createdAt, &startedAt, &stoppedAt, &lastActivity,
		&stats.Iterations, &stats.TotalRequests, &stats.SuccessfulRequests, &stats.FailedRequests,
		&services); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task := &core.Task{
		ID:              id,
		PhoneNumber:     phoneNumber,
		IntervalSeconds: interval,
		MaxIterations:   maxIter,
		Status:          core.TaskStatus(status),
		Stats:           stats,
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	task.CreatedAt = created
	task.StartedAt = parseNullTime(startedAt)
	task.StoppedAt = parseNullTime(stoppedAt)
	task.LastActivity = parseNullTime(lastActivity)
	if err := json.Unmarshal([]byte(services), &task.ServiceStats); err != nil {
		return nil, fmt.Errorf("decode services stats: %w", err)
	}
	return task, nil
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(timeFormat)
}
