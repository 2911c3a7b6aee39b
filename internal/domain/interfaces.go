package domain

import (
	"context"
	"time"
)

// KeyDirectory is the server-side registry of published public keys.
// Implementations must guarantee at most one non-revoked record per user.
type KeyDirectory interface {
	PublishKey(ctx context.Context, rec KeyRecord) error
	ActiveKey(ctx context.Context, user UserID) (KeyRecord, bool, error)

	// ReplaceKey revokes the user's current record and publishes rec in one
	// atomic operation. No instant may observe two live records.
	ReplaceKey(ctx context.Context, rec KeyRecord) error
}

// ConversationStore persists conversations and resolves direct threads.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id ConversationID) (Conversation, error)
	FindDirectConversation(ctx context.Context, a, b UserID) (Conversation, bool, error)
	UserConversations(ctx context.Context, user UserID) ([]Conversation, error)
}

// MessageStore persists ciphertext and owns sequence-number assignment.
type MessageStore interface {
	// AppendMessage stores msg, assigns the next sequence number for its
	// conversation and returns the stored row.
	AppendMessage(ctx context.Context, msg Message) (Message, error)

	GetMessage(ctx context.Context, id MessageID) (Message, error)

	// Messages returns rows ordered by sequence number ascending.
	Messages(ctx context.Context, conv ConversationID, limit int) ([]Message, error)

	// UpdateCiphertext applies the edit protocol. The store re-validates the
	// edit window against its own created_at and returns ErrWindowExpired
	// when it has closed.
	UpdateCiphertext(ctx context.Context, id MessageID, ciphertext []byte, keys map[UserID][]byte, editedAt time.Time) error

	// MarkDeleted is one-way and scrubs the stored ciphertext.
	MarkDeleted(ctx context.Context, id MessageID) error

	MarkDelivered(ctx context.Context, id MessageID, at time.Time) error
	MarkRead(ctx context.Context, id MessageID, at time.Time) error
}

// GroupStore persists group membership. Capacity is enforced inside
// AddMember: the add and the cap check are one atomic operation.
type GroupStore interface {
	// CreateGroup persists the group conversation and its membership in
	// one atomic operation: a failure leaves neither behind.
	CreateGroup(ctx context.Context, conv Conversation, capacity int) error
	Membership(ctx context.Context, conv ConversationID) (GroupMembership, error)
	AddMember(ctx context.Context, conv ConversationID, user UserID) error
	RemoveMember(ctx context.Context, conv ConversationID, user UserID) error
}

// ConnectionDirectory resolves a user's connection graph.
type ConnectionDirectory interface {
	Connections(ctx context.Context, user UserID) ([]Connection, error)
}

// ChangeFeed delivers insert/update events for messages in the given
// user's conversations. Delivery is at-least-once and out of order.
// Cancelling ctx is the unconditional unsubscribe.
type ChangeFeed interface {
	Subscribe(ctx context.Context, user UserID) (<-chan MessageEvent, error)
}

// FeedPublisher is the producing side of the change feed, used by the
// collaborator that owns the datastore.
type FeedPublisher interface {
	Publish(ctx context.Context, event MessageEvent) error
}

// PeerKeyResolver turns a user ID into that user's current public key,
// typically through a short-lived cache over the KeyDirectory.
type PeerKeyResolver interface {
	PeerPublicKey(ctx context.Context, peer UserID) (X25519Public, error)
}

// KeyService is the key-lifecycle capability. The concrete implementation
// lives in services/keys; tests substitute a double.
type KeyService interface {
	HasKeys() bool
	GetKeys() *KeyPair
	DeriveKeys(ctx context.Context, user UserID, secret string) (KeyPair, string, error)
	InitializeKeys(ctx context.Context, user UserID, secret string) (KeyPair, string, error)
	NeedsMigration(ctx context.Context, user UserID) (bool, error)
	RotateKeys(ctx context.Context, user UserID, secret string) (KeyPair, string, error)
	ClearKeys()
}
