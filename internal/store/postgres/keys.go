package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"sealchat/internal/domain"

	"github.com/lib/pq"
)

// uniqueViolation is the postgres error code raised when the partial
// unique index on non-revoked key records rejects a second live row.
const uniqueViolation = "23505"

func (s *Store) PublishKey(ctx context.Context, rec domain.KeyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO key_records (user_id, public_jwk, scheme, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.UserID, rec.PublicJWK, rec.Scheme, rec.Revoked, rec.CreatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return fmt.Errorf("user %s: %w", rec.UserID, domain.ErrKeyRecordExists)
	}
	return err
}

func (s *Store) ActiveKey(ctx context.Context, user domain.UserID) (domain.KeyRecord, bool, error) {
	rec := domain.KeyRecord{UserID: user}
	err := s.db.QueryRowContext(ctx, `
		SELECT public_jwk, scheme, revoked, created_at FROM key_records
		WHERE user_id = $1 AND revoked = FALSE`, user).Scan(
		&rec.PublicJWK, &rec.Scheme, &rec.Revoked, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.KeyRecord{}, false, nil
	}
	if err != nil {
		return domain.KeyRecord{}, false, err
	}
	return rec, true, nil
}

// ReplaceKey revokes any live record and inserts rec in one
// transaction. Readers see the old record or the new one, never both
// and never neither.
func (s *Store) ReplaceKey(ctx context.Context, rec domain.KeyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE key_records SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE`, rec.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO key_records (user_id, public_jwk, scheme, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.UserID, rec.PublicJWK, rec.Scheme, rec.Revoked, rec.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}
