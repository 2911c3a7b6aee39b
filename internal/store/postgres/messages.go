package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sealchat/internal/domain"
	"sealchat/internal/validate"
)

// AppendMessage assigns the next sequence number for the conversation
// and stores the row. The conversation row is locked first so two
// concurrent appends cannot read the same maximum.
func (s *Store) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT TRUE FROM conversations WHERE id = $1 FOR UPDATE`,
		msg.ConversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages
		WHERE conversation_id = $1`, msg.ConversationID).Scan(&msg.SequenceNumber)
	if err != nil {
		return domain.Message{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, ciphertext, sequence_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Ciphertext,
		msg.SequenceNumber, msg.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	if err := insertKeys(ctx, tx, msg.ID, msg.Keys); err != nil {
		return domain.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func insertKeys(ctx context.Context, tx *sql.Tx, id domain.MessageID, keys map[domain.UserID][]byte) error {
	for user, sealed := range keys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_keys (message_id, user_id, sealed_key)
			VALUES ($1, $2, $3)`, id, user, sealed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	msg, err := s.scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, ciphertext, sequence_number,
		       created_at, edited, edited_at, deleted, delivered_at, read_at
		FROM messages WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Message{}, err
	}
	msg.Keys, err = s.messageKeys(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Store) Messages(ctx context.Context, conv domain.ConversationID, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, ciphertext, sequence_number,
		       created_at, edited, edited_at, deleted, delivered_at, read_at
		FROM messages WHERE conversation_id = $1
		ORDER BY sequence_number`
	args := []any{conv}
	if limit > 0 {
		// Newest rows win the cap, still returned ascending.
		query = `SELECT * FROM (` + query + ` DESC LIMIT $2) latest ORDER BY sequence_number`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Keys, err = s.messageKeys(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanMessage(row rowScanner) (domain.Message, error) {
	var msg domain.Message
	var editedAt, deliveredAt, readAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Ciphertext,
		&msg.SequenceNumber, &msg.CreatedAt, &msg.Edited, &editedAt,
		&msg.Deleted, &deliveredAt, &readAt)
	if err != nil {
		return domain.Message{}, err
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		msg.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	return msg, nil
}

func (s *Store) messageKeys(ctx context.Context, id domain.MessageID) (map[domain.UserID][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, sealed_key FROM message_keys
		WHERE message_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys map[domain.UserID][]byte
	for rows.Next() {
		var user domain.UserID
		var sealed []byte
		if err := rows.Scan(&user, &sealed); err != nil {
			return nil, err
		}
		if keys == nil {
			keys = make(map[domain.UserID][]byte)
		}
		keys[user] = sealed
	}
	return keys, rows.Err()
}

// UpdateCiphertext applies an edit. The window is re-validated against
// the stored created_at under a row lock; the client-side check is a
// UI hint, this one is authoritative.
func (s *Store) UpdateCiphertext(ctx context.Context, id domain.MessageID, ciphertext []byte, keys map[domain.UserID][]byte, editedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var createdAt time.Time
	var deleted bool
	var deliveredAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT created_at, deleted, delivered_at FROM messages
		WHERE id = $1 FOR UPDATE`, id).Scan(&createdAt, &deleted, &deliveredAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if deleted {
		return fmt.Errorf("message %s is deleted: %w", id, domain.ErrWindowExpired)
	}
	if !deliveredAt.Valid {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotDelivered)
	}
	if !validate.WithinEditWindow(createdAt, s.now()) {
		return domain.ErrWindowExpired
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET ciphertext = $2, edited = TRUE, edited_at = $3
		WHERE id = $1`, id, ciphertext, editedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM message_keys WHERE message_id = $1`, id); err != nil {
		return err
	}
	if err := insertKeys(ctx, tx, id, keys); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkDeleted is one-way and scrubs the stored ciphertext and sealed
// keys.
func (s *Store) MarkDeleted(ctx context.Context, id domain.MessageID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var createdAt time.Time
	var deleted bool
	err = tx.QueryRowContext(ctx, `
		SELECT created_at, deleted FROM messages
		WHERE id = $1 FOR UPDATE`, id).Scan(&createdAt, &deleted)
	if err == sql.ErrNoRows {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}
	if !validate.WithinDeleteWindow(createdAt, s.now()) {
		return domain.ErrWindowExpired
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET deleted = TRUE, ciphertext = NULL
		WHERE id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM message_keys WHERE message_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) MarkDelivered(ctx context.Context, id domain.MessageID, at time.Time) error {
	return s.stamp(ctx, id, `
		UPDATE messages SET delivered_at = COALESCE(delivered_at, $2)
		WHERE id = $1`, at)
}

func (s *Store) MarkRead(ctx context.Context, id domain.MessageID, at time.Time) error {
	return s.stamp(ctx, id, `
		UPDATE messages SET read_at = COALESCE(read_at, $2),
		       delivered_at = COALESCE(delivered_at, $2)
		WHERE id = $1`, at)
}

// stamp runs a receipt update; the COALESCE keeps the first timestamp.
func (s *Store) stamp(ctx context.Context, id domain.MessageID, query string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
