package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/taskmate/internal/models"
)

// runStorageContract exercises behaviour every Storage implementation shares.
func runStorageContract(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("GetOrCreateActiveSession reuses the active session", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := "user-" + uuid.NewString()

		first, err := store.GetOrCreateActiveSession(ctx, user, "New Chat")
		require.NoError(t, err)
		assert.Equal(t, models.SessionActive, first.Status)
		assert.Equal(t, "New Chat", first.Title)
		assert.Equal(t, user, first.UserID)

		second, err := store.GetOrCreateActiveSession(ctx, user, "New Chat")
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("GetOrCreateActiveSession is race free", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := "user-" + uuid.NewString()

		const workers = 16
		ids := make([]string, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sess, err := store.GetOrCreateActiveSession(ctx, user, "New Chat")
				if assert.NoError(t, err) {
					ids[i] = sess.ID
				}
			}(i)
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}

		sessions, err := store.ListSessionsByUser(ctx, user)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("archived sessions are not reused", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		user := "user-" + uuid.NewString()

		first, err := store.GetOrCreateActiveSession(ctx, user, "New Chat")
		require.NoError(t, err)
		require.NoError(t, store.UpdateSessionStatus(ctx, first.ID, models.SessionArchived))

		second, err := store.GetOrCreateActiveSession(ctx, user, "New Chat")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		got, err := store.GetSession(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SessionArchived, got.Status)
	})

	t.Run("GetSession unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetSession(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = store.GetSession(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, store.TouchSession(context.Background(), uuid.NewString()), ErrNotFound)
	})

	t.Run("messages come back chronologically", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.GetOrCreateActiveSession(ctx, "user-"+uuid.NewString(), "New Chat")
		require.NoError(t, err)

		base := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 8; i++ {
			sender := models.SenderUser
			if i%2 == 1 {
				sender = models.SenderAI
			}
			require.NoError(t, store.AppendMessage(ctx, &models.Message{
				ID:        uuid.NewString(),
				SessionID: sess.ID,
				Sender:    sender,
				Content:   string(rune('a' + i)),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		all, err := store.ListMessages(ctx, sess.ID, 50, 0)
		require.NoError(t, err)
		require.Len(t, all, 8)
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].CreatedAt.Before(all[i].CreatedAt), "messages must be strictly ascending")
		}

		recent, err := store.ListMessages(ctx, sess.ID, 3, 0)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, []string{"f", "g", "h"}, contents(recent))

		older, err := store.ListMessages(ctx, sess.ID, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d", "e"}, contents(older))

		none, err := store.ListMessages(ctx, sess.ID, 3, 20)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("message metadata survives", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.GetOrCreateActiveSession(ctx, "user-"+uuid.NewString(), "New Chat")
		require.NoError(t, err)

		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Sender:    models.SenderAI,
			Content:   "Done!",
			Metadata: &models.MessageMetadata{
				ToolUsed:   "create_task",
				ToolResult: &models.ToolOutcome{Success: true, TaskID: "abc", Message: "Task created successfully"},
			},
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.AppendMessage(ctx, msg))

		msgs, err := store.ListMessages(ctx, sess.ID, 10, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].Metadata)
		assert.Equal(t, "create_task", msgs[0].Metadata.ToolUsed)
		assert.Equal(t, "abc", msgs[0].Metadata.ToolResult.TaskID)

		zero := 0
		listed := &models.Message{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Sender:    models.SenderAI,
			Content:   "Nothing to do.",
			Metadata: &models.MessageMetadata{
				ToolUsed: "list_tasks",
				ToolResult: &models.ToolOutcome{
					Success:    true,
					Tasks:      json.RawMessage(`[]`),
					TotalCount: &zero,
					Message:    "Tasks retrieved successfully",
				},
			},
			CreatedAt: msg.CreatedAt.Add(time.Second),
		}
		require.NoError(t, store.AppendMessage(ctx, listed))

		msgs, err = store.ListMessages(ctx, sess.ID, 1, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		data, err := json.Marshal(msgs[0].Metadata.ToolResult)
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"message":"Tasks retrieved successfully","tasks":[],"total_count":0}`, string(data))
	})

	t.Run("entities", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sess, err := store.GetOrCreateActiveSession(ctx, "user-"+uuid.NewString(), "New Chat")
		require.NoError(t, err)
		msg := &models.Message{ID: uuid.NewString(), SessionID: sess.ID, Sender: models.SenderUser, Content: "hi", CreatedAt: time.Now()}
		require.NoError(t, store.AppendMessage(ctx, msg))

		require.NoError(t, store.AppendEntities(ctx, []*models.Entity{
			{MessageID: msg.ID, Type: "TITLE", Value: "buy milk", Confidence: 0.9},
			{MessageID: msg.ID, Type: "DATE", Value: "tomorrow", Confidence: 0.8},
		}))

		entities, err := store.ListEntitiesByMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.Len(t, entities, 2)
		types := []string{entities[0].Type, entities[1].Type}
		assert.ElementsMatch(t, []string{"TITLE", "DATE"}, types)
		for _, e := range entities {
			assert.NotEmpty(t, e.ID)
		}
	})

	t.Run("tool definitions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		defs := []*models.ToolDefinition{
			{Name: "create_task", Description: "Create", InputSchema: json.RawMessage(`{"type":"object"}`), OutputSchema: json.RawMessage(`{"type":"object"}`), EndpointMapping: "/api/tasks"},
			{Name: "list_tasks", Description: "List", InputSchema: json.RawMessage(`{"type":"object"}`), OutputSchema: json.RawMessage(`{"type":"object"}`), EndpointMapping: "/api/tasks"},
		}
		require.NoError(t, store.SeedToolDefinitions(ctx, defs))
		// Seeding twice keeps the original rows.
		require.NoError(t, store.SeedToolDefinitions(ctx, []*models.ToolDefinition{
			{Name: "create_task", Description: "changed", InputSchema: json.RawMessage(`{}`), OutputSchema: json.RawMessage(`{}`), EndpointMapping: "/x"},
		}))

		def, err := store.GetToolDefinition(ctx, "create_task")
		require.NoError(t, err)
		assert.Equal(t, "Create", def.Description)
		assert.Equal(t, "/api/tasks", def.EndpointMapping)
		assert.JSONEq(t, `{"type":"object"}`, string(def.InputSchema))

		_, err = store.GetToolDefinition(ctx, "launch_rocket")
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := store.ListToolDefinitions(ctx)
		require.NoError(t, err)
		names := make([]string, 0, len(all))
		for _, d := range all {
			names = append(names, d.Name)
		}
		assert.Subset(t, names, []string{"create_task", "list_tasks"})
	})
}

func contents(msgs []*models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
