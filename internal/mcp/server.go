package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"otptaskd/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the task operations as MCP tools over stdio.
type MCPServer struct {
	manager *core.Manager
	logger  *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(manager *core.Manager, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		manager: manager,
		logger:  logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"otptaskd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("otp_start_task",
		mcp.WithDescription("Start a recurring OTP fan-out task for a phone number"),
		mcp.WithString("phone_number",
			mcp.Required(),
			mcp.Description("Phone number, exactly 10 digits"),
		),
		mcp.WithNumber("interval_seconds",
			mcp.Description("Seconds between fan-out cycles (1-3600, default 60)"),
			mcp.Min(1),
			mcp.Max(3600),
		),
		mcp.WithNumber("max_iterations",
			mcp.Description("Stop after this many cycles; 0 runs until stopped"),
			mcp.Min(0),
		),
	), s.handleStartTask)

	mcpServer.AddTool(mcp.NewTool("otp_stop_task",
		mcp.WithDescription("Stop a running task (no-op if already stopped)"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleStopTask)

	mcpServer.AddTool(mcp.NewTool("otp_get_task",
		mcp.WithDescription("Get task details including statistics"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleGetTask)

	mcpServer.AddTool(mcp.NewTool("otp_list_tasks",
		mcp.WithDescription("List all tasks ordered by creation time"),
	), s.handleListTasks)

	mcpServer.AddTool(mcp.NewTool("otp_delete_task",
		mcp.WithDescription("Delete a task; running tasks must be stopped first"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleDeleteTask)

	s.logger.Info("MCP tools registered", "count", 5)
}

func (s *MCPServer) handleStartTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phoneNumber := mcp.ParseString(request, "phone_number", "")
	interval := int(mcp.ParseFloat64(request, "interval_seconds", 60))
	maxIterations := uint64(mcp.ParseFloat64(request, "max_iterations", 0))

	task, err := s.manager.StartTask(ctx, phoneNumber, interval, maxIterations)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task started\nID: %s\nPhone: %s\nInterval: %ds",
		task.ID, task.PhoneNumber, task.IntervalSeconds)), nil
}

func (s *MCPServer) handleStopTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.manager.StopTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to stop task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task %s is now %s", task.ID, task.Status)), nil
}

func (s *MCPServer) handleGetTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	task, err := s.manager.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get task: %v", err)), nil
	}

	result := fmt.Sprintf("Task ID: %s\n", task.ID)
	result += fmt.Sprintf("Phone: %s\n", task.PhoneNumber)
	result += fmt.Sprintf("Status: %s\n", task.Status)
	result += fmt.Sprintf("Interval: %ds\n", task.IntervalSeconds)
	result += fmt.Sprintf("Created: %s\n", formatTime(&task.CreatedAt))
	result += fmt.Sprintf("Started: %s\n", formatTime(task.StartedAt))
	result += fmt.Sprintf("Stopped: %s\n", formatTime(task.StoppedAt))
	if runtime := task.Runtime(time.Now().UTC()); runtime != "" {
		result += fmt.Sprintf("Runtime: %s\n", runtime)
	}
	result += fmt.Sprintf("Iterations: %d\n", task.Stats.Iterations)
	result += fmt.Sprintf("Requests: %d total, %d ok, %d failed (%s)\n",
		task.Stats.TotalRequests, task.Stats.SuccessfulRequests, task.Stats.FailedRequests,
		task.Stats.SuccessRate())
	for name, st := range task.ServiceStats {
		result += fmt.Sprintf("  %s: %d ok, %d failed\n", name, st.Success, st.Failed)
	}

	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.manager.ListTasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	if len(tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	result := fmt.Sprintf("Found %d task(s):\n\n", len(tasks))
	for _, t := range tasks {
		result += fmt.Sprintf("%s [%s]\n", t.ID, t.Status)
		result += fmt.Sprintf("  Phone: %s, interval %ds, iterations %d\n",
			t.PhoneNumber, t.IntervalSeconds, t.Stats.Iterations)
		result += fmt.Sprintf("  Created: %s\n\n", formatTime(&t.CreatedAt))
	}

	return mcp.NewToolResultText(result), nil
}

func (s *MCPServer) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	if err := s.manager.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, core.ErrTaskNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}
		if errors.Is(err, core.ErrTaskRunning) {
			return mcp.NewToolResultError(fmt.Sprintf("task %s is running; stop it first", taskID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task deleted: %s", taskID)), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
