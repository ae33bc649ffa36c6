package tools

import (
	"strings"

	"github.com/xaenox/taskmate/internal/models"
)

// Invocation is a tool selected for an intent together with its raw arguments.
type Invocation struct {
	Name Name
	Args map[string]string
}

var intentTools = map[string]Name{
	models.IntentCreateTask: CreateTask,
	models.IntentUpdateTask: UpdateTask,
	models.IntentDeleteTask: DeleteTask,
	models.IntentListTasks:  ListTasks,
}

var entityArgs = map[string]string{
	"task_id":     "task_id",
	"title":       "title",
	"description": "description",
	"date":        "due_date",
	"status":      "status",
}

// MapToTool picks the tool for intent and folds entities into arguments.
// Unknown entity types are dropped; when a type repeats the last value wins.
// Required arguments are not checked here.
func MapToTool(intent string, entities []models.ExtractedEntity) (Invocation, bool) {
	name, ok := intentTools[intent]
	if !ok {
		return Invocation{}, false
	}

	args := make(map[string]string, len(entities))
	for _, e := range entities {
		if key, ok := entityArgs[strings.ToLower(e.Type)]; ok {
			args[key] = e.Value
		}
	}

	return Invocation{Name: name, Args: args}, true
}
