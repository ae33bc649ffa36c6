package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/xaenox/taskmate/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPostgres connects using a lib/pq connection string or URL and applies
// the embedded schema.
func OpenPostgres(ctx context.Context, connStr string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger.Named("postgres")}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

const sessionColumns = `id, user_id, COALESCE(title, ''), status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ChatSession, error) {
	sess := &models.ChatSession{}
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStorage) GetOrCreateActiveSession(ctx context.Context, userID, title string) (*models.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id = $1 AND status = 'ACTIVE'`

	// The partial unique index makes the insert a no-op when another caller
	// won the race; the second select then sees the winner's row.
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := scanSession(s.db.QueryRowContext(ctx, query, userID))
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error querying active session: %w", err)
		}

		insert := `
			INSERT INTO chat_sessions (id, user_id, title, status)
			VALUES ($1, $2, $3, 'ACTIVE')
			ON CONFLICT (user_id) WHERE status = 'ACTIVE' DO NOTHING
			RETURNING ` + sessionColumns

		sess, err = scanSession(s.db.QueryRowContext(ctx, insert, uuid.New().String(), userID, title))
		if err == nil {
			s.logger.Info("Created chat session",
				zap.String("session_id", sess.ID),
				zap.String("user_id", userID))
			return sess, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error creating session: %w", err)
		}
	}

	return nil, fmt.Errorf("could not resolve active session for user %s", userID)
}

func (s *PostgresStorage) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = models.SessionActive
	}

	query := `
		INSERT INTO chat_sessions (id, user_id, title, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, session.ID, session.UserID, session.Title, session.Status).
		Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`
	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStorage) ListSessionsByUser(ctx context.Context, userID string) ([]*models.ChatSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE user_id = $1 ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.ChatSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStorage) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	return s.execOne(ctx, `UPDATE chat_sessions SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (s *PostgresStorage) TouchSession(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, id)
}

func (s *PostgresStorage) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error updating session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var metadata any
	if !msg.Metadata.Empty() {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("error encoding message metadata: %w", err)
		}
		metadata = string(data)
	}

	query := `
		INSERT INTO chat_messages (id, session_id, sender_type, content, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.SessionID, msg.Sender, msg.Content, metadata, msg.CreatedAt); err != nil {
		return fmt.Errorf("error appending message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListMessages(ctx context.Context, sessionID string, limit, offset int) ([]*models.Message, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return []*models.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, session_id, sender_type, content, metadata, timestamp
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY timestamp DESC, seq DESC
		OFFSET $2`
	args := []any{sessionID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg := &models.Message{}
		var metadata []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		if len(metadata) > 0 {
			msg.Metadata = &models.MessageMetadata{}
			if err := json.Unmarshal(metadata, msg.Metadata); err != nil {
				return nil, fmt.Errorf("error decoding message metadata: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first page back to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *PostgresStorage) AppendEntities(ctx context.Context, entities []*models.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, entity_type, value, confidence_score, chat_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`)
	if err != nil {
		return fmt.Errorf("error preparing entity insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if err := stmt.QueryRowContext(ctx, e.ID, e.Type, e.Value, e.Confidence, e.MessageID).Scan(&e.CreatedAt); err != nil {
			return fmt.Errorf("error inserting entity: %w", err)
		}
	}

	return tx.Commit()
}

func (s *PostgresStorage) ListEntitiesByMessage(ctx context.Context, messageID string) ([]*models.Entity, error) {
	query := `
		SELECT id, chat_message_id, entity_type, value, COALESCE(confidence_score, 0), created_at
		FROM entities
		WHERE chat_message_id = $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("error querying entities: %w", err)
	}
	defer rows.Close()

	entities := []*models.Entity{}
	for rows.Next() {
		e := &models.Entity{}
		if err := rows.Scan(&e.ID, &e.MessageID, &e.Type, &e.Value, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *PostgresStorage) SeedToolDefinitions(ctx context.Context, defs []*models.ToolDefinition) error {
	query := `
		INSERT INTO tool_definitions (name, description, input_schema, output_schema, endpoint_mapping)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING`

	for _, def := range defs {
		result, err := s.db.ExecContext(ctx, query, def.Name, def.Description,
			string(def.InputSchema), string(def.OutputSchema), def.EndpointMapping)
		if err != nil {
			return fmt.Errorf("error seeding tool %s: %w", def.Name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			s.logger.Info("Seeded tool definition", zap.String("tool", def.Name))
		}
	}
	return nil
}

const toolColumns = `name, COALESCE(description, ''), input_schema, output_schema, endpoint_mapping`

func scanTool(row rowScanner) (*models.ToolDefinition, error) {
	def := &models.ToolDefinition{}
	var input, output []byte
	if err := row.Scan(&def.Name, &def.Description, &input, &output, &def.EndpointMapping); err != nil {
		return nil, err
	}
	def.InputSchema = json.RawMessage(input)
	def.OutputSchema = json.RawMessage(output)
	return def, nil
}

func (s *PostgresStorage) GetToolDefinition(ctx context.Context, name string) (*models.ToolDefinition, error) {
	def, err := scanTool(s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tool_definitions WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying tool definition: %w", err)
	}
	return def, nil
}

func (s *PostgresStorage) ListToolDefinitions(ctx context.Context) ([]*models.ToolDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+toolColumns+` FROM tool_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("error querying tool definitions: %w", err)
	}
	defer rows.Close()

	defs := []*models.ToolDefinition{}
	for rows.Next() {
		def, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning tool definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
