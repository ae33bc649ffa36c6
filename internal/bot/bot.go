package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/taskmate/internal/chat"
	"github.com/xaenox/taskmate/internal/models"
)

const historySize = 5

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	sender   Sender
	chat     *chat.Service
	logger   *zap.Logger
	inflight sync.WaitGroup
}

func New(token string, svc *chat.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, svc, logger)
	b.api = api
	return b, nil
}

func newBot(sender Sender, svc *chat.Service, logger *zap.Logger) *Bot {
	return &Bot{
		sender: sender,
		chat:   svc,
		logger: logger.Named("bot"),
	}
}

// Start polls for updates until ctx is cancelled. It returns only after
// every message already being handled has been answered.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot is not connected")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	b.serve(ctx, updates)
	b.api.StopReceivingUpdates()
	return nil
}

func (b *Bot) serve(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	// In-flight turns finish even after shutdown starts; the oracle and
	// task API timeouts bound them.
	handleCtx := context.WithoutCancel(ctx)
	defer b.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.inflight.Add(1)
			go func(message *tgbotapi.Message) {
				defer b.inflight.Done()
				b.handleMessage(handleCtx, message)
			}(update.Message)
		}
	}
}

func userID(message *tgbotapi.Message) string {
	return fmt.Sprintf("tg:%d", message.From.ID)
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.sendMessage(message.Chat.ID, "I can only read text messages for now.")
		return
	}

	res, err := b.chat.ProcessMessage(ctx, chat.ProcessRequest{
		UserID:  userID(message),
		Message: content,
	})
	if err != nil {
		b.logger.Error("Failed to process message",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't process your message. Please try again.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, res.Response)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send response",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "history":
		b.handleHistory(ctx, message)
	case "tools":
		b.handleTools(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to TaskMate! ✅
I can manage your tasks from plain sentences.

Try "Create a task to buy groceries tomorrow" or "Show my pending tasks".
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/history - Show the last messages of your conversation
/tools - Show what I can do with your tasks

You can ask me to:
- Create a task
- Update a task by its id
- Delete a task by its id
- List your tasks`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	messages, err := b.chat.RecentMessages(ctx, userID(message), historySize)
	if err != nil {
		b.logger.Error("Failed to get recent messages",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your message history.")
		return
	}

	if len(messages) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any messages yet.")
		return
	}

	response := "*Your recent messages:*\n\n"
	for _, msg := range messages {
		who := "You"
		if msg.Sender == models.SenderAI {
			who = "TaskMate"
		}
		response += fmt.Sprintf("*%s*\n", escapeMarkdown(who))
		response += fmt.Sprintf("_%s_\n", escapeMarkdown(msg.Content))
		if msg.Metadata != nil && msg.Metadata.ToolUsed != "" {
			response += fmt.Sprintf("Tool: %s\n", escapeMarkdown(msg.Metadata.ToolUsed))
		}
		response += "\n"
	}

	b.sendMarkdown(message.Chat.ID, response)
}

func (b *Bot) handleTools(ctx context.Context, message *tgbotapi.Message) {
	defs, err := b.chat.ListTools(ctx)
	if err != nil {
		b.logger.Error("Failed to list tools", zap.Error(err))
		b.sendErrorMessage(message.Chat.ID, "Sorry, failed to retrieve the tool list. Please try again later.")
		return
	}

	response := "*Available tools:*\n"
	for _, def := range defs {
		response += fmt.Sprintf("%s \\- %s\n", escapeMarkdown(def.Name), escapeMarkdown(def.Description))
	}
	b.sendMarkdown(message.Chat.ID, response)
}

// escapeMarkdown escapes the characters MarkdownV2 treats as markup.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send markdown message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
