package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/taskmate/internal/models"
)

// MemoryStorage keeps everything in process memory. It is meant for local
// runs and tests; nothing survives a restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
	messages map[string][]*models.Message
	entities map[string][]*models.Entity
	tools    map[string]*models.ToolDefinition
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*models.ChatSession),
		messages: make(map[string][]*models.Message),
		entities: make(map[string][]*models.Entity),
		tools:    make(map[string]*models.ToolDefinition),
		now:      time.Now,
	}
}

// Session methods
func (s *MemoryStorage) GetOrCreateActiveSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active *models.ChatSession
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.Status != models.SessionActive {
			continue
		}
		if active == nil || sess.CreatedAt.Before(active.CreatedAt) {
			active = sess
		}
	}
	if active != nil {
		return copySession(active), nil
	}

	now := s.now()
	session := &models.ChatSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session
	return copySession(session), nil
}

func (s *MemoryStorage) CreateSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if session.Status == "" {
		session.Status = models.SessionActive
	}
	if session.Status == models.SessionActive {
		for _, other := range s.sessions {
			if other.UserID == session.UserID && other.Status == models.SessionActive {
				return fmt.Errorf("user %s already has an active session", session.UserID)
			}
		}
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *MemoryStorage) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, exists := s.sessions[id]; exists {
		return copySession(sess), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListSessionsByUser(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*models.ChatSession{}
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			result = append(result, copySession(sess))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *MemoryStorage) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return ErrNotFound
	}
	if status == models.SessionActive && sess.Status != models.SessionActive {
		for _, other := range s.sessions {
			if other.UserID == sess.UserID && other.Status == models.SessionActive {
				return fmt.Errorf("user %s already has an active session", sess.UserID)
			}
		}
	}
	sess.Status = status
	sess.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStorage) TouchSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return ErrNotFound
	}
	sess.UpdatedAt = s.now()
	return nil
}

// Message methods
func (s *MemoryStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[msg.SessionID]; !exists {
		return fmt.Errorf("append message to session %s: %w", msg.SessionID, ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	stored := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &stored)
	return nil
}

func (s *MemoryStorage) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.Message, len(s.messages[sessionID]))
	copy(all, s.messages[sessionID])
	// Stable so messages sharing a timestamp keep their append order.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	end := len(all) - offset
	if end <= 0 {
		return []*models.Message{}, nil
	}
	start := 0
	if limit > 0 && end-limit > start {
		start = end - limit
	}

	page := make([]*models.Message, 0, end-start)
	for _, m := range all[start:end] {
		msg := *m
		page = append(page, &msg)
	}
	return page, nil
}

func (s *MemoryStorage) AppendEntities(ctx context.Context, entities []*models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		stored := *e
		s.entities[e.MessageID] = append(s.entities[e.MessageID], &stored)
	}
	return nil
}

func (s *MemoryStorage) ListEntitiesByMessage(ctx context.Context, messageID string) ([]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Entity, 0, len(s.entities[messageID]))
	for _, e := range s.entities[messageID] {
		entity := *e
		result = append(result, &entity)
	}
	return result, nil
}

// Tool catalog methods
func (s *MemoryStorage) SeedToolDefinitions(ctx context.Context, defs []*models.ToolDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range defs {
		if _, exists := s.tools[def.Name]; exists {
			continue
		}
		stored := *def
		s.tools[def.Name] = &stored
	}
	return nil
}

func (s *MemoryStorage) GetToolDefinition(ctx context.Context, name string) (*models.ToolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if def, exists := s.tools[name]; exists {
		d := *def
		return &d, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListToolDefinitions(ctx context.Context) ([]*models.ToolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.ToolDefinition, 0, len(s.tools))
	for _, def := range s.tools {
		d := *def
		result = append(result, &d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

func copySession(s *models.ChatSession) *models.ChatSession {
	c := *s
	return &c
}
