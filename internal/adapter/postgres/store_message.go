package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
)

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, parts, input_tokens, output_tokens, reasoning_tokens, cost_usd, created_at
		 FROM messages WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessage inserts a finished message. Re-appending the same message id
// replaces the stored content: completed frames can be redelivered after a
// stream reconnect, and the latest assembly wins.
func (s *Store) AppendMessage(ctx context.Context, msg conversation.Message) error {
	if msg.Parts == nil {
		msg.Parts = []conversation.Part{}
	}
	partsJSON, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal parts: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO messages (id, session_id, role, content, parts, input_tokens, output_tokens, reasoning_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     parts = EXCLUDED.parts,
		     input_tokens = EXCLUDED.input_tokens,
		     output_tokens = EXCLUDED.output_tokens,
		     reasoning_tokens = EXCLUDED.reasoning_tokens,
		     cost_usd = EXCLUDED.cost_usd`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, partsJSON,
		msg.Usage.InputTokens, msg.Usage.OutputTokens, msg.Usage.ReasoningTokens, msg.Usage.CostUSD,
		msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func scanMessage(row scannable) (conversation.Message, error) {
	var m conversation.Message
	var partsJSON []byte
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &partsJSON,
		&m.Usage.InputTokens, &m.Usage.OutputTokens, &m.Usage.ReasoningTokens, &m.Usage.CostUSD,
		&m.CreatedAt)
	if err != nil {
		return m, fmt.Errorf("scan message: %w", err)
	}
	if partsJSON != nil {
		if err := json.Unmarshal(partsJSON, &m.Parts); err != nil {
			return m, fmt.Errorf("unmarshal parts: %w", err)
		}
	}
	return m, nil
}
