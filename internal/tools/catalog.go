// Package tools maps extracted intents onto task API calls.
package tools

import (
	"context"
	"encoding/json"

	"github.com/xaenox/taskmate/internal/models"
)

// Name identifies one of the supported tools.
type Name string

const (
	CreateTask Name = "create_task"
	UpdateTask Name = "update_task"
	DeleteTask Name = "delete_task"
	ListTasks  Name = "list_tasks"
)

// Catalog looks up tool definitions by name.
// GetToolDefinition returns storage.ErrNotFound for unknown names.
type Catalog interface {
	GetToolDefinition(ctx context.Context, name string) (*models.ToolDefinition, error)
	ListToolDefinitions(ctx context.Context) ([]*models.ToolDefinition, error)
}

// Definitions returns the catalog entries seeded at startup.
func Definitions() []*models.ToolDefinition {
	return []*models.ToolDefinition{
		{
			Name:        string(CreateTask),
			Description: "Create a new task with the provided details",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"title": {"type": "string", "description": "Title of the task"},
					"description": {"type": "string", "description": "Detailed description of the task"},
					"due_date": {"type": "string", "format": "date", "description": "Due date for the task"},
					"status": {"type": "string", "enum": ["pending", "in-progress", "completed"]}
				},
				"required": ["title"]
			}`),
			OutputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"success": {"type": "boolean"},
					"task_id": {"type": "string", "description": "ID of the created task"},
					"message": {"type": "string", "description": "Result message"}
				}
			}`),
			EndpointMapping: "/api/tasks",
		},
		{
			Name:        string(UpdateTask),
			Description: "Update an existing task with new details",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "ID of the task to update"},
					"title": {"type": "string", "description": "New title of the task"},
					"description": {"type": "string", "description": "New description of the task"},
					"due_date": {"type": "string", "format": "date", "description": "New due date for the task"},
					"status": {"type": "string", "enum": ["pending", "in-progress", "completed"]}
				},
				"required": ["task_id"]
			}`),
			OutputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"success": {"type": "boolean"},
					"message": {"type": "string", "description": "Result message"}
				}
			}`),
			EndpointMapping: "/api/tasks/{task_id}",
		},
		{
			Name:        string(DeleteTask),
			Description: "Delete an existing task",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"task_id": {"type": "string", "description": "ID of the task to delete"}
				},
				"required": ["task_id"]
			}`),
			OutputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"success": {"type": "boolean"},
					"message": {"type": "string", "description": "Result message"}
				}
			}`),
			EndpointMapping: "/api/tasks/{task_id}",
		},
		{
			Name:        string(ListTasks),
			Description: "Retrieve a list of tasks based on filters",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"status": {"type": "string", "enum": ["pending", "in-progress", "completed", "all"]},
					"limit": {"type": "integer", "minimum": 1, "maximum": 100},
					"offset": {"type": "integer", "minimum": 0}
				}
			}`),
			OutputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"success": {"type": "boolean"},
					"tasks": {
						"type": "array",
						"items": {
							"type": "object",
							"properties": {
								"id": {"type": "string"},
								"title": {"type": "string"},
								"description": {"type": "string"},
								"due_date": {"type": "string", "format": "date"},
								"status": {"type": "string"}
							}
						}
					},
					"total_count": {"type": "integer"}
				}
			}`),
			EndpointMapping: "/api/tasks",
		},
	}
}
