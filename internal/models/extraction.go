package models

// Intents understood by the assistant
const (
	IntentCreateTask = "CREATE_TASK"
	IntentUpdateTask = "UPDATE_TASK"
	IntentDeleteTask = "DELETE_TASK"
	IntentListTasks  = "LIST_TASKS"
	IntentUnknown    = "UNKNOWN"
)

// ExtractedEntity is a typed span reported by the oracle
type ExtractedEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult represents the result of intent analysis for one message
type ExtractionResult struct {
	Intent     string            `json:"intent"`
	Entities   []ExtractedEntity `json:"entities"`
	Confidence float64           `json:"confidence"`
}

// UnknownExtraction is returned whenever the oracle output cannot be used.
func UnknownExtraction() ExtractionResult {
	return ExtractionResult{
		Intent:     IntentUnknown,
		Entities:   []ExtractedEntity{},
		Confidence: 0,
	}
}

// IsActionable reports whether the intent maps onto a tool.
func IsActionable(intent string) bool {
	switch intent {
	case IntentCreateTask, IntentUpdateTask, IntentDeleteTask, IntentListTasks:
		return true
	}
	return false
}
