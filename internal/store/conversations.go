package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lhihi/internal/logging"
	"lhihi/internal/types"
)

// DefaultTitle names a conversation before its first user message.
const DefaultTitle = "New Chat"

// CreateConversation inserts a conversation. An empty title becomes DefaultTitle.
func (s *Store) CreateConversation(ctx context.Context, title string) (*types.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	ts := s.timestamp()
	c := &types.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: fromMillis(ts),
		UpdatedAt: fromMillis(ts),
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`),
		c.ID, c.Title, ts, ts,
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create conversation: %v", err)
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	logging.StoreDebug("Conversation created: id=%s", c.ID)
	return c, nil
}

// GetConversation returns one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var (
		c                types.Conversation
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`), id,
	).Scan(&c.ID, &c.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &c, nil
}

// ListConversations returns conversations, most recently updated first.
// limit <= 0 means 100.
func (s *Store) ListConversations(ctx context.Context, limit int) ([]types.Conversation, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListConversations")
	defer timer.Stop()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id LIMIT ?`), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []types.Conversation
	for rows.Next() {
		var (
			c                types.Conversation
			created, updated int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RenameConversation sets the title of a conversation.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`),
		title, s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return expectRow(res, "conversation", id)
}

// DeleteConversation removes a conversation and all of its turns.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM turns WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := expectRow(res, "conversation", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	logging.Store("Conversation deleted: id=%s", id)
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
