// Package postgres is the production datastore adapter. It implements
// the same contracts as the memory store on lib/pq, with sequence
// assignment and window re-validation done transactionally so
// concurrent writers cannot race past them.
package postgres

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"sealchat/internal/domain"
)

// Store wraps a postgres handle. One Store serves every contract; the
// tables it owns are created by Migrate.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock substitutes the time source used for created_at defaults
// and window re-validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open database handle. The caller owns the handle's
// lifecycle; call Migrate before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with the given DSN and verifies the connection.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, opts...), nil
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

var (
	_ domain.KeyDirectory        = (*Store)(nil)
	_ domain.ConversationStore   = (*Store)(nil)
	_ domain.MessageStore        = (*Store)(nil)
	_ domain.GroupStore          = (*Store)(nil)
	_ domain.ConnectionDirectory = (*Store)(nil)
)
