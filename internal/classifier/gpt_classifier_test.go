package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/taskmate/internal/models"
)

type stubOracle struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubOracle) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func TestExtractIntent_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"plain", `{"intent":"CREATE_TASK","entities":[{"type":"TITLE","value":"buy groceries","confidence":0.9},{"type":"DATE","value":"tomorrow","confidence":0.8}],"confidence":0.95}`},
		{"json fence", "```json\n{\"intent\":\"CREATE_TASK\",\"entities\":[{\"type\":\"TITLE\",\"value\":\"buy groceries\",\"confidence\":0.9},{\"type\":\"DATE\",\"value\":\"tomorrow\",\"confidence\":0.8}],\"confidence\":0.95}\n```"},
		{"bare fence", "```\n{\"intent\":\"CREATE_TASK\",\"entities\":[{\"type\":\"TITLE\",\"value\":\"buy groceries\",\"confidence\":0.9},{\"type\":\"DATE\",\"value\":\"tomorrow\",\"confidence\":0.8}],\"confidence\":0.95}\n```"},
	}

	want := models.ExtractionResult{
		Intent: models.IntentCreateTask,
		Entities: []models.ExtractedEntity{
			{Type: "TITLE", Value: "buy groceries", Confidence: 0.9},
			{Type: "DATE", Value: "tomorrow", Confidence: 0.8},
		},
		Confidence: 0.95,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &stubOracle{reply: tt.reply}
			c := NewGPTClassifier(o, 0, zaptest.NewLogger(t))

			got := c.ExtractIntent(context.Background(), "Create a task to buy groceries tomorrow")
			assert.Equal(t, want, got)

			require.Len(t, o.prompts, 1)
			assert.Contains(t, o.prompts[0], "Create a task to buy groceries tomorrow")
			assert.Contains(t, o.prompts[0], "CREATE_TASK, UPDATE_TASK, DELETE_TASK, LIST_TASKS")
		})
	}
}

func TestExtractIntent_FailsOpen(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "oracle error", err: errors.New("connection refused")},
		{name: "timeout", err: context.DeadlineExceeded},
		{name: "not json", reply: "Sure! You want to create a task."},
		{name: "truncated json", reply: `{"intent":"CREATE_TASK","entities":[`},
		{name: "missing intent", reply: `{"entities":[],"confidence":0.5}`},
		{name: "entity without type", reply: `{"intent":"DELETE_TASK","entities":[{"value":"x"}],"confidence":0.5}`},
		{name: "entity value not a string", reply: `{"intent":"DELETE_TASK","entities":[{"type":"TASK_ID","value":42}],"confidence":0.5}`},
		{name: "empty", reply: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewGPTClassifier(&stubOracle{reply: tt.reply, err: tt.err}, 0, zaptest.NewLogger(t))

			got := c.ExtractIntent(context.Background(), "whatever")
			assert.Equal(t, models.IntentUnknown, got.Intent)
			assert.Empty(t, got.Entities)
			assert.NotNil(t, got.Entities)
			assert.Zero(t, got.Confidence)
		})
	}
}

func TestExtractIntent_NormalisesIntent(t *testing.T) {
	c := NewGPTClassifier(&stubOracle{reply: `{"intent":"list_tasks","entities":[],"confidence":0.7}`}, 0, zaptest.NewLogger(t))
	assert.Equal(t, models.IntentListTasks, c.ExtractIntent(context.Background(), "show tasks").Intent)

	c = NewGPTClassifier(&stubOracle{reply: `{"intent":"GREETING","entities":[],"confidence":0.7}`}, 0, zaptest.NewLogger(t))
	got := c.ExtractIntent(context.Background(), "hello")
	assert.Equal(t, models.IntentUnknown, got.Intent)
	assert.InDelta(t, 0.7, got.Confidence, 1e-9)
}

func TestExtractIntent_MinConfidence(t *testing.T) {
	reply := `{"intent":"DELETE_TASK","entities":[{"type":"TASK_ID","value":"7","confidence":0.9}],"confidence":0.3}`

	gated := NewGPTClassifier(&stubOracle{reply: reply}, 0.5, zaptest.NewLogger(t))
	assert.Equal(t, models.UnknownExtraction(), gated.ExtractIntent(context.Background(), "delete 7"))

	open := NewGPTClassifier(&stubOracle{reply: reply}, 0, zaptest.NewLogger(t))
	assert.Equal(t, models.IntentDeleteTask, open.ExtractIntent(context.Background(), "delete 7").Intent)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1}  "))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```{\"a\":1}```"))
}
