package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"sealchat/internal/domain"
)

func (s *Store) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, is_group, created_at)
		VALUES ($1, $2, $3)`,
		conv.ID, conv.Group, conv.CreatedAt); err != nil {
		return err
	}
	for _, p := range conv.Participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (conversation_id, user_id) DO NOTHING`,
			conv.ID, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	conv := domain.Conversation{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT is_group, created_at FROM conversations
		WHERE id = $1`, id).Scan(&conv.Group, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.Participants, err = s.participants(ctx, id)
	if err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) participants(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1 ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var u domain.UserID
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) FindDirectConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, bool, error) {
	var id domain.ConversationID
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id FROM conversations c
		WHERE c.is_group = FALSE
		AND EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = c.id AND user_id = $1)
		AND EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = c.id AND user_id = $2)
		AND (SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = c.id) = 2
		LIMIT 1`, a, b).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	conv, err := s.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

func (s *Store) UserConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id FROM conversation_participants
		WHERE user_id = $1 ORDER BY conversation_id`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.ConversationID
	for rows.Next() {
		var id domain.ConversationID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}
