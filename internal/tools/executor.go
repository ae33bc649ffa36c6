package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/xaenox/taskmate/internal/models"
	"github.com/xaenox/taskmate/internal/storage"
	"go.uber.org/zap"
)

// Executor runs tools against the task API. It never returns an error:
// every failure is reported through models.ToolOutcome.
type Executor struct {
	catalog Catalog
	api     *TaskAPI
	logger  *zap.Logger
}

func NewExecutor(catalog Catalog, api *TaskAPI, logger *zap.Logger) *Executor {
	return &Executor{
		catalog: catalog,
		api:     api,
		logger:  logger.Named("executor"),
	}
}

// Execute runs the named tool with args, forwarding authToken as a bearer
// credential when it is not empty.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]string, authToken string) models.ToolOutcome {
	log := e.logger.With(zap.String("tool", name))

	if _, err := e.catalog.GetToolDefinition(ctx, name); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error("Failed to look up tool definition", zap.Error(err))
		}
		return models.ToolOutcome{
			Success: false,
			Error:   fmt.Sprintf("Tool '%s' not found", name),
			Message: fmt.Sprintf("Tool '%s' is not available", name),
		}
	}

	call, err := DecodeCall(Name(name), args)
	if err != nil {
		log.Warn("Tool has a catalog entry but no implementation", zap.Error(err))
		return models.ToolOutcome{
			Success: false,
			Error:   fmt.Sprintf("Unknown tool: %s", name),
			Message: fmt.Sprintf("Tool '%s' is not implemented", name),
		}
	}

	var outcome models.ToolOutcome
	switch c := call.(type) {
	case CreateTaskArgs:
		outcome = e.createTask(ctx, c, authToken)
	case UpdateTaskArgs:
		outcome = e.updateTask(ctx, c, authToken)
	case DeleteTaskArgs:
		outcome = e.deleteTask(ctx, c, authToken)
	case ListTasksArgs:
		outcome = e.listTasks(ctx, c, authToken)
	}

	if outcome.Success {
		log.Info("Tool executed", zap.String("message", outcome.Message))
	} else {
		log.Warn("Tool failed",
			zap.String("message", outcome.Message),
			zap.String("error", outcome.Error))
	}
	return outcome
}

func (e *Executor) createTask(ctx context.Context, args CreateTaskArgs, token string) models.ToolOutcome {
	const failed = "An error occurred while creating the task"

	resp, err := e.api.CreateTask(ctx, fields(args.Title, args.Description, args.DueDate, args.Status), token)
	if err != nil {
		return transportFailure(err, failed)
	}
	if resp.StatusCode != http.StatusOK {
		return statusFailure(resp, "Failed to create task")
	}

	var created struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return transportFailure(fmt.Errorf("decode response: %w", err), failed)
	}

	return models.ToolOutcome{
		Success: true,
		TaskID:  rawID(created.ID),
		Message: "Task created successfully",
	}
}

func (e *Executor) updateTask(ctx context.Context, args UpdateTaskArgs, token string) models.ToolOutcome {
	if args.TaskID == "" {
		return missingTaskID(UpdateTask)
	}

	resp, err := e.api.UpdateTask(ctx, args.TaskID, fields(args.Title, args.Description, args.DueDate, args.Status), token)
	if err != nil {
		return transportFailure(err, "An error occurred while updating the task")
	}
	if resp.StatusCode != http.StatusOK {
		return statusFailure(resp, "Failed to update task")
	}

	return models.ToolOutcome{Success: true, Message: "Task updated successfully"}
}

func (e *Executor) deleteTask(ctx context.Context, args DeleteTaskArgs, token string) models.ToolOutcome {
	if args.TaskID == "" {
		return missingTaskID(DeleteTask)
	}

	resp, err := e.api.DeleteTask(ctx, args.TaskID, token)
	if err != nil {
		return transportFailure(err, "An error occurred while deleting the task")
	}
	if resp.StatusCode != http.StatusOK {
		return statusFailure(resp, "Failed to delete task")
	}

	return models.ToolOutcome{Success: true, Message: "Task deleted successfully"}
}

func (e *Executor) listTasks(ctx context.Context, args ListTasksArgs, token string) models.ToolOutcome {
	const failed = "An error occurred while listing tasks"

	query := url.Values{}
	if args.Status != nil {
		query.Set("status", *args.Status)
	}
	if args.Limit != nil {
		query.Set("limit", *args.Limit)
	}
	if args.Offset != nil {
		query.Set("offset", *args.Offset)
	}

	resp, err := e.api.ListTasks(ctx, query, token)
	if err != nil {
		return transportFailure(err, failed)
	}
	if resp.StatusCode != http.StatusOK {
		return statusFailure(resp, "Failed to list tasks")
	}

	var tasks []json.RawMessage
	if err := json.Unmarshal(resp.Body, &tasks); err != nil {
		return transportFailure(fmt.Errorf("decode response: %w", err), failed)
	}
	if tasks == nil {
		tasks = []json.RawMessage{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return transportFailure(fmt.Errorf("encode tasks: %w", err), failed)
	}

	// total_count is the size of the returned page, not a server-side total.
	count := len(tasks)
	return models.ToolOutcome{
		Success:    true,
		Tasks:      raw,
		TotalCount: &count,
		Message:    "Tasks retrieved successfully",
	}
}

func missingTaskID(name Name) models.ToolOutcome {
	return models.ToolOutcome{
		Success: false,
		Error:   fmt.Sprintf("task_id is required for %s", name),
		Message: "Missing required parameter: task_id",
	}
}

func statusFailure(resp *Response, message string) models.ToolOutcome {
	return models.ToolOutcome{
		Success: false,
		Error:   string(resp.Body),
		Message: message,
	}
}

func transportFailure(err error, message string) models.ToolOutcome {
	return models.ToolOutcome{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// rawID renders the id field whether the API returns it as a string or a number.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
