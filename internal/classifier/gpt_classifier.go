package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/taskmate/internal/models"
	"github.com/xaenox/taskmate/internal/oracle"
	"go.uber.org/zap"
)

const extractionPrompt = `Analyze the following user message and extract the intent and relevant entities:

User message: %q

Available intents: CREATE_TASK, UPDATE_TASK, DELETE_TASK, LIST_TASKS
If none of them applies, use UNKNOWN.

Please respond in JSON format with the following structure:
{
    "intent": "...",
    "entities": [
        {
            "type": "...",
            "value": "...",
            "confidence": 0.0-1.0
        }
    ],
    "confidence": 0.0-1.0
}

For entity types, use: TITLE, DATE, STATUS, DESCRIPTION, TASK_ID, etc.

Examples:
- For "Create a task to buy groceries tomorrow": intent should be CREATE_TASK, entities: [{"type": "TITLE", "value": "buy groceries", "confidence": 0.9}, {"type": "DATE", "value": "tomorrow", "confidence": 0.9}]
- For "Update the meeting task to next week": intent should be UPDATE_TASK, entities: [{"type": "TITLE", "value": "meeting", "confidence": 0.8}, {"type": "DATE", "value": "next week", "confidence": 0.9}]
- For "Delete the doctor appointment task": intent should be DELETE_TASK, entities: [{"type": "TITLE", "value": "doctor appointment", "confidence": 0.9}]
- For "Show me my tasks": intent should be LIST_TASKS`

type extractionResponse struct {
	Intent     *string            `json:"intent"`
	Entities   []extractionEntity `json:"entities"`
	Confidence float64            `json:"confidence"`
}

type extractionEntity struct {
	Type       *string  `json:"type"`
	Value      *string  `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// GPTClassifier asks the oracle to classify intent and extract entities.
type GPTClassifier struct {
	oracle        oracle.Oracle
	minConfidence float64
	logger        *zap.Logger
}

// NewGPTClassifier builds a classifier. minConfidence of zero disables
// confidence gating.
func NewGPTClassifier(o oracle.Oracle, minConfidence float64, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		oracle:        o,
		minConfidence: minConfidence,
		logger:        logger.Named("classifier"),
	}
}

func (c *GPTClassifier) ExtractIntent(ctx context.Context, text string) models.ExtractionResult {
	raw, err := c.oracle.Complete(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		c.logger.Error("Failed to get extraction response", zap.Error(err))
		return models.UnknownExtraction()
	}

	result, err := parseExtraction(raw)
	if err != nil {
		c.logger.Error("Failed to parse extraction response",
			zap.Error(err),
			zap.String("response", raw))
		return models.UnknownExtraction()
	}

	if c.minConfidence > 0 && result.Intent != models.IntentUnknown && result.Confidence < c.minConfidence {
		c.logger.Info("Extraction below confidence threshold",
			zap.String("intent", result.Intent),
			zap.Float64("confidence", result.Confidence),
			zap.Float64("min_confidence", c.minConfidence))
		return models.UnknownExtraction()
	}

	c.logger.Debug("Extracted intent",
		zap.String("intent", result.Intent),
		zap.Int("entities", len(result.Entities)),
		zap.Float64("confidence", result.Confidence))

	return result
}

func parseExtraction(raw string) (models.ExtractionResult, error) {
	var resp extractionResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &resp); err != nil {
		return models.ExtractionResult{}, err
	}

	if resp.Intent == nil || strings.TrimSpace(*resp.Intent) == "" {
		return models.ExtractionResult{}, errors.New("missing intent")
	}

	intent := strings.ToUpper(strings.TrimSpace(*resp.Intent))
	if !models.IsActionable(intent) {
		intent = models.IntentUnknown
	}

	entities := make([]models.ExtractedEntity, 0, len(resp.Entities))
	for i, e := range resp.Entities {
		if e.Type == nil || e.Value == nil {
			return models.ExtractionResult{}, fmt.Errorf("entity %d: type and value are required", i)
		}
		entity := models.ExtractedEntity{Type: *e.Type, Value: *e.Value}
		if e.Confidence != nil {
			entity.Confidence = *e.Confidence
		}
		entities = append(entities, entity)
	}

	return models.ExtractionResult{
		Intent:     intent,
		Entities:   entities,
		Confidence: resp.Confidence,
	}, nil
}
