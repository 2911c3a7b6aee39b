// Package memory implements the datastore contract in process memory.
// It backs tests and the dev relay; the postgres package is the
// production-shaped adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sealchat/internal/domain"
	"sealchat/internal/validate"
)

// Store holds every table behind one mutex. Sequence numbers are assigned
// here, per conversation, monotonically; clients never pick them.
type Store struct {
	now func() time.Time

	mu            sync.RWMutex
	keys          map[domain.UserID][]domain.KeyRecord
	conversations map[domain.ConversationID]domain.Conversation
	messages      map[domain.MessageID]domain.Message
	sequences     map[domain.ConversationID]int64
	groups        map[domain.ConversationID]domain.GroupMembership
	connections   map[domain.UserID][]domain.Connection
}

// Option configures the store.
type Option func(*Store)

// WithClock substitutes the time source for created_at defaults and
// window re-validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		keys:          make(map[domain.UserID][]domain.KeyRecord),
		conversations: make(map[domain.ConversationID]domain.Conversation),
		messages:      make(map[domain.MessageID]domain.Message),
		sequences:     make(map[domain.ConversationID]int64),
		groups:        make(map[domain.ConversationID]domain.GroupMembership),
		connections:   make(map[domain.UserID][]domain.Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------- KeyDirectory ----------

func (s *Store) PublishKey(_ context.Context, rec domain.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keys[rec.UserID] {
		if !existing.Revoked {
			return fmt.Errorf("user %s: %w", rec.UserID, domain.ErrKeyRecordExists)
		}
	}
	s.keys[rec.UserID] = append(s.keys[rec.UserID], rec)
	return nil
}

func (s *Store) ActiveKey(_ context.Context, user domain.UserID) (domain.KeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.keys[user] {
		if !rec.Revoked {
			return rec, true, nil
		}
	}
	return domain.KeyRecord{}, false, nil
}

// ReplaceKey revokes any live record and publishes rec under one lock, so
// no reader observes two live records or none mid-rotation.
func (s *Store) ReplaceKey(_ context.Context, rec domain.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.keys[rec.UserID]
	for i := range records {
		records[i].Revoked = true
	}
	s.keys[rec.UserID] = append(records, rec)
	return nil
}

// ---------- ConversationStore ----------

func (s *Store) CreateConversation(_ context.Context, conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}
	s.conversations[conv.ID] = conv
	return nil
}

func (s *Store) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return conv, nil
}

func (s *Store) FindDirectConversation(_ context.Context, a, b domain.UserID) (domain.Conversation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.conversations {
		if conv.Group || len(conv.Participants) != 2 {
			continue
		}
		p := conv.Participants
		if (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a) {
			return conv, true, nil
		}
	}
	return domain.Conversation{}, false, nil
}

func (s *Store) UserConversations(_ context.Context, user domain.UserID) ([]domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Conversation
	for _, conv := range s.conversations {
		for _, p := range conv.Participants {
			if p == user {
				out = append(out, conv)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- MessageStore ----------

func (s *Store) AppendMessage(_ context.Context, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[msg.ID]; exists {
		return domain.Message{}, fmt.Errorf("message %s already exists", msg.ID)
	}
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return domain.Message{}, fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
	}
	s.sequences[msg.ConversationID]++
	msg.SequenceNumber = s.sequences[msg.ConversationID]
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *Store) GetMessage(_ context.Context, id domain.MessageID) (domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return msg, nil
}

func (s *Store) Messages(_ context.Context, conv domain.ConversationID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conv {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// UpdateCiphertext applies an edit. The window is re-validated here
// against the stored created_at; the client-side check is a UI hint, this
// one is authoritative.
func (s *Store) UpdateCiphertext(_ context.Context, id domain.MessageID, ciphertext []byte, keys map[domain.UserID][]byte, editedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if msg.Deleted {
		return fmt.Errorf("message %s is deleted: %w", id, domain.ErrWindowExpired)
	}
	if msg.DeliveredAt == nil {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotDelivered)
	}
	if !validate.WithinEditWindow(msg.CreatedAt, s.now()) {
		return domain.ErrWindowExpired
	}
	msg.Ciphertext = append([]byte(nil), ciphertext...)
	msg.Keys = keys
	msg.Edited = true
	at := editedAt
	msg.EditedAt = &at
	s.messages[id] = msg
	return nil
}

// MarkDeleted is one-way and scrubs the ciphertext.
func (s *Store) MarkDeleted(_ context.Context, id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	if msg.Deleted {
		return nil
	}
	if !validate.WithinDeleteWindow(msg.CreatedAt, s.now()) {
		return domain.ErrWindowExpired
	}
	msg.Deleted = true
	msg.Ciphertext = nil
	msg.Keys = nil
	s.messages[id] = msg
	return nil
}

func (s *Store) MarkDelivered(_ context.Context, id domain.MessageID, at time.Time) error {
	return s.stamp(id, func(m *domain.Message) {
		if m.DeliveredAt == nil {
			t := at
			m.DeliveredAt = &t
		}
	})
}

func (s *Store) MarkRead(_ context.Context, id domain.MessageID, at time.Time) error {
	return s.stamp(id, func(m *domain.Message) {
		if m.ReadAt == nil {
			t := at
			m.ReadAt = &t
		}
		if m.DeliveredAt == nil {
			t := at
			m.DeliveredAt = &t
		}
	})
}

func (s *Store) stamp(id domain.MessageID, apply func(*domain.Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	apply(&msg)
	s.messages[id] = msg
	return nil
}

// ---------- GroupStore ----------

// CreateGroup writes the conversation and its membership under one
// lock; a rejected create leaves neither behind.
func (s *Store) CreateGroup(_ context.Context, conv domain.Conversation, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(conv.Participants) > capacity {
		return &domain.CapacityExceededError{ConversationID: conv.ID, Capacity: capacity}
	}
	if _, exists := s.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation %s already exists", conv.ID)
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = s.now()
	}
	s.conversations[conv.ID] = conv
	s.groups[conv.ID] = domain.GroupMembership{
		ConversationID: conv.ID,
		MemberIDs:      append([]domain.UserID(nil), conv.Participants...),
		Capacity:       capacity,
	}
	return nil
}

func (s *Store) Membership(_ context.Context, conv domain.ConversationID) (domain.GroupMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[conv]
	if !ok {
		return domain.GroupMembership{}, fmt.Errorf("group %s: %w", conv, domain.ErrNotFound)
	}
	return g, nil
}

// AddMember checks capacity and appends under one lock; an add that would
// overflow leaves the membership untouched.
func (s *Store) AddMember(_ context.Context, conv domain.ConversationID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[conv]
	if !ok {
		return fmt.Errorf("group %s: %w", conv, domain.ErrNotFound)
	}
	for _, m := range g.MemberIDs {
		if m == user {
			return nil
		}
	}
	if len(g.MemberIDs)+1 > g.Capacity {
		return &domain.CapacityExceededError{ConversationID: conv, Capacity: g.Capacity}
	}
	g.MemberIDs = append(g.MemberIDs, user)
	s.groups[conv] = g

	if c, ok := s.conversations[conv]; ok {
		c.Participants = append([]domain.UserID(nil), g.MemberIDs...)
		s.conversations[conv] = c
	}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, conv domain.ConversationID, user domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[conv]
	if !ok {
		return fmt.Errorf("group %s: %w", conv, domain.ErrNotFound)
	}
	kept := g.MemberIDs[:0]
	for _, m := range g.MemberIDs {
		if m != user {
			kept = append(kept, m)
		}
	}
	g.MemberIDs = kept
	s.groups[conv] = g

	if c, ok := s.conversations[conv]; ok {
		c.Participants = append([]domain.UserID(nil), g.MemberIDs...)
		s.conversations[conv] = c
	}
	return nil
}

// ---------- ConnectionDirectory ----------

func (s *Store) Connections(_ context.Context, user domain.UserID) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Connection(nil), s.connections[user]...), nil
}

// SetConnections seeds a user's connection graph. Test and dev helper.
func (s *Store) SetConnections(user domain.UserID, conns []domain.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[user] = append([]domain.Connection(nil), conns...)
}

var (
	_ domain.KeyDirectory        = (*Store)(nil)
	_ domain.ConversationStore   = (*Store)(nil)
	_ domain.MessageStore        = (*Store)(nil)
	_ domain.GroupStore          = (*Store)(nil)
	_ domain.ConnectionDirectory = (*Store)(nil)
)
