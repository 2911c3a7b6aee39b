package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"sealchat/internal/domain"
)

// CreateGroup writes the conversation, its participants and the group
// membership in one transaction; a rejected create commits nothing.
func (s *Store) CreateGroup(ctx context.Context, conv domain.Conversation, capacity int) error {
	if len(conv.Participants) > capacity {
		return &domain.CapacityExceededError{ConversationID: conv.ID, Capacity: capacity}
	}
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
		VALUES ($1, TRUE, $2)`,
		conv.ID, conv.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO groups (conversation_id, capacity)
		VALUES ($1, $2)`,
		conv.ID, capacity); err != nil {
		return err
	}
	for _, m := range conv.Participants {
		if err := insertMember(ctx, tx, conv.ID, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertMember(ctx context.Context, tx *sql.Tx, conv domain.ConversationID, user domain.UserID) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO group_members (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv, user); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_participants (conversation_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv, user)
	return err
}

func (s *Store) Membership(ctx context.Context, conv domain.ConversationID) (domain.GroupMembership, error) {
	g := domain.GroupMembership{ConversationID: conv}
	err := s.db.QueryRowContext(ctx, `
		SELECT capacity FROM groups WHERE conversation_id = $1`, conv).Scan(&g.Capacity)
	if err == sql.ErrNoRows {
		return domain.GroupMembership{}, fmt.Errorf("group %s: %w", conv, domain.ErrNotFound)
	}
	if err != nil {
		return domain.GroupMembership{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM group_members
		WHERE conversation_id = $1 ORDER BY joined_at, user_id`, conv)
	if err != nil {
		return domain.GroupMembership{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.UserID
		if err := rows.Scan(&u); err != nil {
			return domain.GroupMembership{}, err
		}
		g.MemberIDs = append(g.MemberIDs, u)
	}
	return g, rows.Err()
}

// AddMember locks the group row, re-counts members and inserts inside
// one transaction. An add that would overflow commits nothing.
func (s *Store) AddMember(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var capacity int
	err = tx.QueryRowContext(ctx, `
		SELECT capacity FROM groups
		WHERE conversation_id = $1 FOR UPDATE`, conv).Scan(&capacity)
	if err == sql.ErrNoRows {
		return fmt.Errorf("group %s: %w", conv, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	var member bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_members
		WHERE conversation_id = $1 AND user_id = $2)`, conv, user).Scan(&member)
	if err != nil {
		return err
	}
	if member {
		return nil
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_members
		WHERE conversation_id = $1`, conv).Scan(&count)
	if err != nil {
		return err
	}
	if count+1 > capacity {
		return &domain.CapacityExceededError{ConversationID: conv, Capacity: capacity}
	}

	if err := insertMember(ctx, tx, conv, user); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RemoveMember(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM group_members
		WHERE conversation_id = $1 AND user_id = $2`, conv, user); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2`, conv, user); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Connections(ctx context.Context, user domain.UserID) ([]domain.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT peer_id, username, display_name FROM connections
		WHERE user_id = $1 ORDER BY username`, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(&c.UserID, &c.Username, &c.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
