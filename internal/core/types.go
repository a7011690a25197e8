package core

import (
	"fmt"
	"time"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusStopped   TaskStatus = "stopped"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusError     TaskStatus = "error"
)

// Terminal reports whether the status admits no further transitions
// other than deletion.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusStopped, TaskStatusCompleted, TaskStatusError:
		return true
	}
	return false
}

// Statistics accumulates request counters across all completed cycles.
type Statistics struct {
	Iterations         uint64
	TotalRequests      uint64
	SuccessfulRequests uint64
	FailedRequests     uint64
}

// SuccessRate formats the successful/total ratio as a percentage string.
// Zero total requests reports "0.0%".
func (s Statistics) SuccessRate() string {
	total := s.TotalRequests
	if total == 0 {
		total = 1
	}
	return fmt.Sprintf("%.1f%%", float64(s.SuccessfulRequests)/float64(total)*100)
}

// ServiceStats holds per-provider success/failure counters.
type ServiceStats struct {
	Success uint64 `json:"success"`
	Failed  uint64 `json:"failed"`
}

// Task represents one recurring OTP fan-out job for a phone number.
type Task struct {
	ID              string
	PhoneNumber     string
	IntervalSeconds int
	// MaxIterations bounds the number of cycles; zero means unbounded.
	MaxIterations uint64
	Status        TaskStatus
	CreatedAt     time.Time
	StartedAt     *time.Time
	StoppedAt     *time.Time
	LastActivity  *time.Time
	Stats         Statistics
	ServiceStats  map[string]ServiceStats
}

// Runtime formats the elapsed running time as H:MM:SS. For a task that has
// stopped it measures start to stop; for one still running, start to now.
// Tasks that never started have no runtime.
func (t *Task) Runtime(now time.Time) string {
	if t.StartedAt == nil {
		return ""
	}
	end := now
	if t.Status != TaskStatusRunning && t.StoppedAt != nil {
		end = *t.StoppedAt
	}
	d := end.Sub(*t.StartedAt)
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

// Clone returns a deep copy of the task, including its service stats map.
func (t *Task) Clone() *Task {
	cp := *t
	cp.ServiceStats = cloneServiceStats(t.ServiceStats)
	return &cp
}

func cloneServiceStats(src map[string]ServiceStats) map[string]ServiceStats {
	dst := make(map[string]ServiceStats, len(src))
	for name, st := range src {
		dst[name] = st
	}
	return dst
}

// ProviderResult is the outcome of one provider call within a cycle.
type ProviderResult struct {
	Provider string
	Success  bool
	// Detail carries a diagnostic for failures (status code or transport error).
	Detail string
}

// CycleResult holds exactly one result per configured provider for one
// completed fan-out cycle.
type CycleResult []ProviderResult
