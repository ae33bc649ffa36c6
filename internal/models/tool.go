package models

import "encoding/json"

// ToolDefinition describes one tool the assistant may invoke
type ToolDefinition struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	InputSchema     json.RawMessage `json:"input_schema"`
	OutputSchema    json.RawMessage `json:"output_schema"`
	EndpointMapping string          `json:"endpoint_mapping"`
}

// ToolOutcome is the uniform result of a tool invocation
type ToolOutcome struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Error      string          `json:"error,omitempty"`
	TaskID     string          `json:"task_id,omitempty"`
	// Tasks is the task API's array as returned. It is only set by
	// list_tasks, where an empty list is kept as [].
	Tasks      json.RawMessage `json:"tasks,omitempty"`
	TotalCount *int            `json:"total_count,omitempty"`
}
