package storage

import (
	"context"
	"errors"

	"github.com/xaenox/taskmate/internal/models"
)

var ErrNotFound = errors.New("not found")

type Storage interface {
	SessionStorage
	MessageStorage
	ToolStorage
	Close() error
}

type SessionStorage interface {
	// GetOrCreateActiveSession returns the user's ACTIVE session, creating one
	// titled title when none exists. Concurrent callers get the same session.
	GetOrCreateActiveSession(ctx context.Context, userID, title string) (*models.ChatSession, error)
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	// ListSessionsByUser returns sessions ordered by most recently updated first.
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.ChatSession, error)
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error
	TouchSession(ctx context.Context, id string) error
}

type MessageStorage interface {
	AppendMessage(ctx context.Context, msg *models.Message) error
	// ListMessages pages from the newest message backwards and returns the
	// page in chronological order.
	ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error)
	AppendEntities(ctx context.Context, entities []*models.Entity) error
	ListEntitiesByMessage(ctx context.Context, messageID string) ([]*models.Entity, error)
}

type ToolStorage interface {
	// SeedToolDefinitions inserts definitions whose name is not yet present.
	SeedToolDefinitions(ctx context.Context, defs []*models.ToolDefinition) error
	GetToolDefinition(ctx context.Context, name string) (*models.ToolDefinition, error)
	ListToolDefinitions(ctx context.Context) ([]*models.ToolDefinition, error)
}
