package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"otptaskd/internal/core"

	"github.com/go-chi/chi/v5"
)

type startTaskRequest struct {
	// Num is the 10-digit phone number; Int the interval in seconds.
	// Field names follow the public API shape.
	Num           string `json:"num"`
	Int           int    `json:"int"`
	MaxIterations uint64 `json:"max_iterations"`
}

type startTaskResponse struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
	Interval    int    `json:"interval"`
	Message     string `json:"message"`
}

type statisticsResponse struct {
	Iterations         uint64 `json:"iterations"`
	TotalRequests      uint64 `json:"total_requests"`
	SuccessfulRequests uint64 `json:"successful_requests"`
	FailedRequests     uint64 `json:"failed_requests"`
	SuccessRate        string `json:"success_rate"`
}

type taskResponse struct {
	TaskID          string                        `json:"task_id"`
	PhoneNumber     string                        `json:"phone_number"`
	IntervalSeconds int                           `json:"interval_seconds"`
	Status          string                        `json:"status"`
	CreatedAt       string                        `json:"created_at"`
	StartedAt       *string                       `json:"started_at"`
	StoppedAt       *string                       `json:"stopped_at"`
	Runtime         *string                       `json:"runtime"`
	Statistics      statisticsResponse            `json:"statistics"`
	LastActivity    *string                       `json:"last_activity"`
	ServicesStats   map[string]core.ServiceStats  `json:"services_stats"`
}

type taskSummary struct {
	TaskID      string `json:"task_id"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
	Iterations  uint64 `json:"iterations"`
	CreatedAt   string `json:"created_at"`
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req startTaskRequest
	if r.Body != nil {
		// An empty or invalid body is tolerated; query params may carry
		// the request instead.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Num == "" {
		req.Num = r.URL.Query().Get("num")
	}
	if v := r.URL.Query().Get("int"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			req.Int = parsed
		}
	}
	if req.Int == 0 {
		req.Int = 60
	}
	req.Num = strings.TrimSpace(req.Num)
	if req.Num == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "missing required parameter: num")
		return
	}

	task, err := s.manager.StartTask(r.Context(), req.Num, req.Int, req.MaxIterations)
	if err != nil {
		s.writeTaskError(w, "", err, "failed to start task")
		return
	}

	writeJSON(w, http.StatusCreated, startTaskResponse{
		TaskID:      task.ID,
		Status:      "started",
		PhoneNumber: task.PhoneNumber,
		Interval:    task.IntervalSeconds,
		Message:     "Task " + task.ID + " started successfully",
	})
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.manager.StopTask(r.Context(), taskID)
	if err != nil {
		s.writeTaskError(w, taskID, err, "failed to stop task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": task.ID,
		"status":  string(task.Status),
		"message": "Task " + task.ID + " stopped successfully",
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.manager.GetTask(r.Context(), taskID)
	if err != nil {
		s.writeTaskError(w, taskID, err, "failed to get task")
		return
	}
	writeJSON(w, http.StatusOK, taskToResponse(task, time.Now().UTC()))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.manager.ListTasks(r.Context())
	if err != nil {
		s.writeTaskError(w, "", err, "failed to list tasks")
		return
	}
	summaries := make([]taskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, taskSummary{
			TaskID:      t.ID,
			PhoneNumber: t.PhoneNumber,
			Status:      string(t.Status),
			Iterations:  t.Stats.Iterations,
			CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": summaries,
		"total": len(summaries),
	})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.manager.DeleteTask(r.Context(), taskID); err != nil {
		s.writeTaskError(w, taskID, err, "failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"status":  "deleted",
		"message": "Task " + taskID + " deleted successfully",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "otptaskd",
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "otptaskd",
		"description": "Background OTP task management API",
		"endpoints": map[string]string{
			"POST /api/task/start":         "start a new background OTP task ({\"num\": \"9876543210\", \"int\": 30})",
			"POST /api/task/stop/{taskID}": "stop a running task",
			"GET /api/task/{taskID}":       "get task info",
			"GET /api/tasks":               "list all tasks",
			"DELETE /api/task/{taskID}":    "delete a task (must be stopped first)",
			"GET /health":                  "health check",
		},
	})
}

// writeTaskError maps core error kinds to HTTP status codes.
func (s *Server) writeTaskError(w http.ResponseWriter, taskID string, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrInvalidPhoneNumber), errors.Is(err, core.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, core.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, core.ErrTaskRunning), errors.Is(err, core.ErrDuplicateTask):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.logger.Error(fallback, "task_id", taskID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

func taskToResponse(task *core.Task, now time.Time) taskResponse {
	resp := taskResponse{
		TaskID:          task.ID,
		PhoneNumber:     task.PhoneNumber,
		IntervalSeconds: task.IntervalSeconds,
		Status:          string(task.Status),
		CreatedAt:       task.CreatedAt.UTC().Format(time.RFC3339),
		StartedAt:       formatTimePtr(task.StartedAt),
		StoppedAt:       formatTimePtr(task.StoppedAt),
		LastActivity:    formatTimePtr(task.LastActivity),
		Statistics: statisticsResponse{
			Iterations:         task.Stats.Iterations,
			TotalRequests:      task.Stats.TotalRequests,
			SuccessfulRequests: task.Stats.SuccessfulRequests,
			FailedRequests:     task.Stats.FailedRequests,
			SuccessRate:        task.Stats.SuccessRate(),
		},
		ServicesStats: task.ServiceStats,
	}
	if runtime := task.Runtime(now); runtime != "" {
		resp.Runtime = &runtime
	}
	return resp
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339)
	return &formatted
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
