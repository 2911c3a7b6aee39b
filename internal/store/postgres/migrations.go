package postgres

// Migrate creates the schema. Every statement is idempotent so the
// list can run on every boot.
func (s *Store) Migrate() error {
	migrations := []string{
		// Key directory. The partial unique index is what makes "at most
		// one non-revoked record per user" a database invariant rather
		// than an application promise.
		`CREATE TABLE IF NOT EXISTS key_records (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			public_jwk TEXT NOT NULL DEFAULT '',
			scheme INTEGER NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_active_key_per_user
		ON key_records(user_id)
		WHERE revoked = FALSE`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(64) PRIMARY KEY,
			is_group BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_user_conversations
		ON conversation_participants(user_id)`,

		// Messages hold ciphertext only. sequence_number is assigned in
		// AppendMessage under a lock on the conversation row; the unique
		// constraint backstops that assignment.
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			conversation_id VARCHAR(64) NOT NULL,
			sender_id VARCHAR(64) NOT NULL,
			ciphertext BYTEA,
			sequence_number BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			edited_at TIMESTAMPTZ,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			delivered_at TIMESTAMPTZ,
			read_at TIMESTAMPTZ,
			UNIQUE (conversation_id, sequence_number),
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_conversation_messages
		ON messages(conversation_id, sequence_number)`,

		// Per-recipient sealed message keys for group envelopes.
		`CREATE TABLE IF NOT EXISTS message_keys (
			message_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			sealed_key BYTEA NOT NULL,
			PRIMARY KEY (message_id, user_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS groups (
			conversation_id VARCHAR(64) PRIMARY KEY,
			capacity INTEGER NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS group_members (
			conversation_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (conversation_id, user_id),
			FOREIGN KEY (conversation_id) REFERENCES groups(conversation_id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS connections (
			user_id VARCHAR(64) NOT NULL,
			peer_id VARCHAR(64) NOT NULL,
			username VARCHAR(64) NOT NULL,
			display_name VARCHAR(128) NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, peer_id)
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}
