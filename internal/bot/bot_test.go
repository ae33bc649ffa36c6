package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/taskmate/internal/chat"
	"github.com/xaenox/taskmate/internal/models"
	"github.com/xaenox/taskmate/internal/storage"
	"github.com/xaenox/taskmate/internal/tools"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type greetingClassifier struct{}

func (greetingClassifier) ExtractIntent(context.Context, string) models.ExtractionResult {
	return models.UnknownExtraction()
}

type cannedOracle struct{}

func (cannedOracle) Complete(context.Context, string) (string, error) {
	return "Hi! How can I help with your tasks?", nil
}

func newTestBot(t *testing.T) (*Bot, *fakeSender, *chat.Service) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store := storage.NewMemoryStorage()
	require.NoError(t, store.SeedToolDefinitions(context.Background(), tools.Definitions()))
	executor := tools.NewExecutor(store, tools.NewTaskAPI("http://127.0.0.1:0/api", time.Second, nil), logger)
	svc := chat.NewService(store, greetingClassifier{}, executor, store,
		chat.NewResponder(cannedOracle{}, chat.DefaultHistoryLimit, logger), chat.Options{}, logger)

	sender := &fakeSender{}
	return newBot(sender, svc, logger), sender, svc
}

func textMessage(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: 42},
		Chat:      &tgbotapi.Chat{ID: 4242},
		Text:      text,
	}
	if len(text) > 0 && text[0] == '/' {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return msg
}

func TestHandleMessage_FreeText(t *testing.T) {
	b, sender, svc := newTestBot(t)

	b.handleMessage(context.Background(), textMessage("hello"))

	reply := sender.last(t)
	assert.Equal(t, int64(4242), reply.ChatID)
	assert.Equal(t, "Hi! How can I help with your tasks?", reply.Text)
	assert.Equal(t, 10, reply.ReplyToMessageID)

	sessions, err := svc.ListSessions(context.Background(), "tg:42")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestHandleMessage_Commands(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, textMessage("/start"))
	assert.Contains(t, sender.last(t).Text, "Welcome to TaskMate")

	b.handleMessage(ctx, textMessage("/help"))
	assert.Contains(t, sender.last(t).Text, "/history")

	b.handleMessage(ctx, textMessage("/nope"))
	assert.Contains(t, sender.last(t).Text, "Unknown command")

	b.handleMessage(ctx, textMessage("/tools"))
	tools := sender.last(t)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, tools.ParseMode)
	assert.Contains(t, tools.Text, "create\\_task")
	assert.Contains(t, tools.Text, "list\\_tasks")
}

func TestHandleMessage_History(t *testing.T) {
	b, sender, _ := newTestBot(t)
	ctx := context.Background()

	b.handleMessage(ctx, textMessage("/history"))
	assert.Equal(t, "You don't have any messages yet.", sender.last(t).Text)

	b.handleMessage(ctx, textMessage("hello"))
	b.handleMessage(ctx, textMessage("/history"))

	history := sender.last(t)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, history.ParseMode)
	assert.Contains(t, history.Text, "_hello_")
	assert.Contains(t, history.Text, "*TaskMate*")
	assert.Contains(t, history.Text, "How can I help with your tasks?")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `buy milk \(2\)\.`, escapeMarkdown("buy milk (2)."))
	assert.Equal(t, `a\\b`, escapeMarkdown(`a\b`))
	assert.Equal(t, `\#tag\_one`, escapeMarkdown("#tag_one"))
}

type gatedOracle struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedOracle) Complete(ctx context.Context, _ string) (string, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return "Finished.", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestServe_WaitsForInFlightMessages(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage()
	require.NoError(t, store.SeedToolDefinitions(context.Background(), tools.Definitions()))
	o := &gatedOracle{entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := chat.NewService(store, greetingClassifier{}, nil, store,
		chat.NewResponder(o, chat.DefaultHistoryLimit, logger), chat.Options{}, logger)
	sender := &fakeSender{}
	b := newBot(sender, svc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan tgbotapi.Update, 1)
	done := make(chan struct{})
	go func() {
		b.serve(ctx, tgbotapi.UpdatesChannel(updates))
		close(done)
	}()

	updates <- tgbotapi.Update{Message: textMessage("hello")}
	<-o.entered
	cancel()

	select {
	case <-done:
		t.Fatal("serve returned while a message was still being handled")
	case <-time.After(50 * time.Millisecond):
	}

	close(o.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not return after the message was handled")
	}

	assert.Equal(t, "Finished.", sender.last(t).Text)
	recent, err := svc.RecentMessages(context.Background(), "tg:42", 5)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
