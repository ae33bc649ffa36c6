// Package chat runs one conversational turn: resolve the session, extract
// the intent, run the matching tool, phrase a reply and record the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xaenox/taskmate/internal/classifier"
	"github.com/xaenox/taskmate/internal/models"
	"github.com/xaenox/taskmate/internal/storage"
	"github.com/xaenox/taskmate/internal/tools"
)

const (
	DefaultHistoryLimit = 5
	DefaultTitle        = "New Chat"

	sessionResolveTimeout = 10 * time.Second
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// ToolExecutor runs a named tool. Failures are reported in the outcome.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]string, authToken string) models.ToolOutcome
}

type Options struct {
	HistoryLimit int
	DefaultTitle string
}

type Service struct {
	store      storage.Storage
	classifier classifier.Classifier
	executor   ToolExecutor
	catalog    tools.Catalog
	responder  *Responder
	logger     *zap.Logger
	now        func() time.Time

	historyLimit int
	defaultTitle string

	// sessions collapses concurrent get-or-create calls for the same user.
	sessions singleflight.Group
}

func NewService(
	store storage.Storage,
	clf classifier.Classifier,
	executor ToolExecutor,
	catalog tools.Catalog,
	responder *Responder,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = DefaultTitle
	}

	return &Service{
		store:        store,
		classifier:   clf,
		executor:     executor,
		catalog:      catalog,
		responder:    responder,
		logger:       logger.Named("chat"),
		now:          time.Now,
		historyLimit: opts.HistoryLimit,
		defaultTitle: opts.DefaultTitle,
	}
}

type ProcessRequest struct {
	UserID    string
	SessionID string // optional; empty selects the user's active session
	Message   string
	AuthToken string // forwarded to the task API when set
}

type ProcessResult struct {
	Response      string
	SessionID     string
	Intent        string
	Entities      []models.ExtractedEntity
	ToolUsed      string
	ToolResult    *models.ToolOutcome
	UserMessageID string
	AIMessageID   string
}

// ProcessMessage handles one user message end to end. Oracle and tool
// failures are answered in-band; only session lookup and storage failures
// are returned as errors.
func (s *Service) ProcessMessage(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	log := s.logger.With(zap.String("user_id", req.UserID))
	log.Debug("Message received", zap.String("state", "RECEIVED"))

	session, err := s.resolveSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("session_id", session.ID))
	log.Debug("Session resolved", zap.String("state", "SESSION_RESOLVED"))

	extraction := s.classifier.ExtractIntent(ctx, req.Message)
	log.Debug("Intent extracted",
		zap.String("state", "EXTRACTED"),
		zap.String("intent", extraction.Intent),
		zap.Int("entities", len(extraction.Entities)),
		zap.Float64("confidence", extraction.Confidence))

	var (
		toolUsed string
		outcome  *models.ToolOutcome
	)
	if inv, ok := tools.MapToTool(extraction.Intent, extraction.Entities); ok {
		result := s.executor.Execute(ctx, string(inv.Name), inv.Args, req.AuthToken)
		toolUsed = string(inv.Name)
		outcome = &result
		log.Debug("Tool dispatched",
			zap.String("state", "TOOL_DISPATCHED"),
			zap.String("tool", toolUsed),
			zap.Bool("success", result.Success))
	} else {
		log.Debug("No tool for intent", zap.String("state", "SKIPPED"))
	}

	var history []*models.Message
	if outcome == nil || !outcome.Success {
		history, err = s.store.ListMessages(ctx, session.ID, s.historyLimit, 0)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}

	reply := s.responder.Synthesize(ctx, extraction, outcome, req.Message, history)
	log.Debug("Response synthesized", zap.String("state", "RESPONSE_SYNTHESIZED"))

	userMsg, aiMsg, err := s.persistTurn(ctx, session.ID, req.Message, extraction, toolUsed, outcome, reply)
	if err != nil {
		log.Error("Failed to persist turn", zap.Error(err))
		return nil, err
	}
	log.Debug("Turn persisted", zap.String("state", "PERSISTED"))

	return &ProcessResult{
		Response:      reply,
		SessionID:     session.ID,
		Intent:        extraction.Intent,
		Entities:      extraction.Entities,
		ToolUsed:      toolUsed,
		ToolResult:    outcome,
		UserMessageID: userMsg.ID,
		AIMessageID:   aiMsg.ID,
	}, nil
}

func (s *Service) persistTurn(
	ctx context.Context,
	sessionID, text string,
	extraction models.ExtractionResult,
	toolUsed string,
	outcome *models.ToolOutcome,
	reply string,
) (*models.Message, *models.Message, error) {
	userMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    models.SenderUser,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("save user message: %w", err)
	}

	if toolUsed != "" && len(extraction.Entities) > 0 {
		now := s.now()
		rows := make([]*models.Entity, 0, len(extraction.Entities))
		for _, e := range extraction.Entities {
			rows = append(rows, &models.Entity{
				ID:         uuid.New().String(),
				MessageID:  userMsg.ID,
				Type:       e.Type,
				Value:      e.Value,
				Confidence: e.Confidence,
				CreatedAt:  now,
			})
		}
		if err := s.store.AppendEntities(ctx, rows); err != nil {
			return nil, nil, fmt.Errorf("save entities: %w", err)
		}
	}

	aiMsg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Sender:    models.SenderAI,
		Content:   reply,
		CreatedAt: s.now(),
	}
	if toolUsed != "" {
		aiMsg.Metadata = &models.MessageMetadata{ToolUsed: toolUsed, ToolResult: outcome}
	}
	if err := s.store.AppendMessage(ctx, aiMsg); err != nil {
		return nil, nil, fmt.Errorf("save ai message: %w", err)
	}

	// The turn is already recorded; a stale updated_at only affects ordering.
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to touch session",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return userMsg, aiMsg, nil
}

func (s *Service) resolveSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	if sessionID != "" {
		return s.ownedSession(ctx, userID, sessionID)
	}
	return s.GetOrCreateSession(ctx, userID)
}

// ownedSession hides sessions of other users behind ErrSessionNotFound.
func (s *Service) ownedSession(ctx context.Context, userID, sessionID string) (*models.ChatSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.UserID != userID {
		s.logger.Warn("Session requested by another user",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID))
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetOrCreateSession returns the user's single active session, creating one
// when there is none. Concurrent calls for the same user share one store
// call, which runs detached from any single caller's cancellation; each
// caller still stops waiting when its own ctx is done.
func (s *Service) GetOrCreateSession(ctx context.Context, userID string) (*models.ChatSession, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.sessions.DoChan(userID, func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, sessionResolveTimeout)
		defer cancel()
		return s.store.GetOrCreateActiveSession(callCtx, userID, s.defaultTitle)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get or create session: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("get or create session: %w", res.Err)
		}
		session := *res.Val.(*models.ChatSession)
		return &session, nil
	}
}

// ListSessions returns the user's sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	sessions, err := s.store.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionMessages returns one page of a session's messages in
// chronological order. The newest page is offset 0.
func (s *Service) GetSessionMessages(ctx context.Context, userID, sessionID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// RecentMessages returns the last limit messages of the user's active
// session without creating one.
func (s *Service) RecentMessages(ctx context.Context, userID string, limit int) ([]*models.Message, error) {
	sessions, err := s.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.Status != models.SessionActive {
			continue
		}
		msgs, err := s.store.ListMessages(ctx, session.ID, limit, 0)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		return msgs, nil
	}
	return []*models.Message{}, nil
}

func (s *Service) ListTools(ctx context.Context) ([]*models.ToolDefinition, error) {
	defs, err := s.catalog.ListToolDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return defs, nil
}
