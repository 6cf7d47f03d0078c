package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lhihi/internal/logging"
	"lhihi/internal/types"
)

const turnColumns = `id, conversation_id, seq, role, content, attachments, related_queries, sources, thinking, created_at`

// AppendTurn adds a turn at the end of a conversation. ID, Seq and CreatedAt
// are assigned by the store and written back to t.
func (s *Store) AppendTurn(ctx context.Context, t *types.ConversationTurn) error {
	if !t.Role.Valid() {
		return fmt.Errorf("invalid role %q", t.Role)
	}
	attachments, err := encodeList(t.Attachments)
	if err != nil {
		return err
	}
	related, err := encodeList(t.RelatedQueries)
	if err != nil {
		return err
	}
	sources, err := encodeList(t.Sources)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT COALESCE(MAX(t.seq), 0) FROM conversations c LEFT JOIN turns t ON t.conversation_id = c.id WHERE c.id = ? GROUP BY c.id`),
		t.ConversationID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", t.ConversationID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	ts := s.timestamp()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Seq = seq + 1
	t.CreatedAt = fromMillis(ts)

	_, err = tx.ExecContext(ctx,
		s.rebind(`INSERT INTO turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.ConversationID, t.Seq, string(t.Role), t.Text, attachments, related, sources, t.Thinking, ts,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), ts, t.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	logging.StoreDebug("Turn appended: conversation=%s seq=%d role=%s len=%d", t.ConversationID, t.Seq, t.Role, len(t.Text))
	return nil
}

// ListTurns returns the turns of a conversation in order.
func (s *Store) ListTurns(ctx context.Context, conversationID string) ([]types.ConversationTurn, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? ORDER BY seq`), conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var out []types.ConversationTurn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTurn returns one turn of a conversation.
func (s *Store) GetTurn(ctx context.Context, conversationID, turnID string) (*types.ConversationTurn, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+turnColumns+` FROM turns WHERE conversation_id = ? AND id = ?`), conversationID, turnID,
	)
	t, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
	}
	return t, err
}

// TruncateFrom deletes the given turn and every later turn of the
// conversation. It returns the number of turns removed.
func (s *Store) TruncateFrom(ctx context.Context, conversationID, turnID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		s.rebind(`SELECT seq FROM turns WHERE conversation_id = ? AND id = ?`), conversationID, turnID,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("turn %s: %w", turnID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		s.rebind(`DELETE FROM turns WHERE conversation_id = ? AND seq >= ?`), conversationID, seq,
	)
	if err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("truncate: %w", err)
	}
	logging.StoreDebug("Truncated conversation %s from seq %d (%d turns)", conversationID, seq, n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTurn(row scanner) (*types.ConversationTurn, error) {
	var (
		t                             types.ConversationTurn
		role                          string
		attachments, related, sources string
		created                       int64
	)
	if err := row.Scan(&t.ID, &t.ConversationID, &t.Seq, &role, &t.Text, &attachments, &related, &sources, &t.Thinking, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan turn: %w", err)
	}
	t.Role = types.Role(role)
	t.CreatedAt = fromMillis(created)
	if err := decodeList(attachments, &t.Attachments); err != nil {
		return nil, err
	}
	if err := decodeList(related, &t.RelatedQueries); err != nil {
		return nil, err
	}
	if err := decodeList(sources, &t.Sources); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeList[T any](items []T) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func decodeList[T any](raw string, dst *[]T) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	return nil
}
