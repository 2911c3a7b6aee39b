package domain

import "time"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

func (k X25519Private) Slice() []byte { return k[:] }

// SharedSecret is the expanded pairwise secret produced by ECDH + HKDF.
// Deriving with (A.priv, B.pub) and (B.priv, A.pub) yields the same value.
type SharedSecret [32]byte

func (s SharedSecret) Slice() []byte { return s[:] }

// UserID identifies an account. Canonical UUID form.
type UserID string

// ConversationID identifies a direct or group conversation.
type ConversationID string

// MessageID identifies a message.
type MessageID string

// Fingerprint is a short hex digest of a public key, shown for verification.
type Fingerprint string

// KeyPair holds a user's long-term keys. The private half lives only in
// client memory and is wiped on lock, sign-out or session expiry.
type KeyPair struct {
	Public  X25519Public
	Private X25519Private
}

// Key schemes recorded in the directory.
const (
	// KeySchemeLegacy marks records created before public keys were
	// published server-side. They cannot support ECDH and force a re-key.
	KeySchemeLegacy = 1

	// KeySchemeX25519 is the current scheme: Argon2id-derived X25519 pair
	// with the public half published as a JWK.
	KeySchemeX25519 = 2
)

// KeyRecord is the server-visible half of a user's key material.
// At steady state exactly one non-revoked record exists per user.
type KeyRecord struct {
	UserID    UserID
	PublicJWK string // OKP/X25519 JWK; empty on legacy records
	Scheme    int
	Revoked   bool
	CreatedAt time.Time
}

// Conversation is a direct (two participant) or group (capped) thread.
type Conversation struct {
	ID           ConversationID
	Participants []UserID
	Group        bool
	CreatedAt    time.Time
}

// Message is the persisted, encrypted form. SequenceNumber is assigned by
// the datastore and is the only ordering authority; arrival order is not.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID

	Ciphertext []byte

	// Keys holds per-recipient sealed copies of the message key for group
	// envelopes. Nil for direct messages, which are sealed pairwise.
	Keys map[UserID][]byte

	SequenceNumber int64
	CreatedAt      time.Time
	Edited         bool
	EditedAt       *time.Time
	Deleted        bool
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}

// DecryptedMessage is the client-local view of a Message. Never persisted.
// DecryptionError is set when the shared secret could not reproduce valid
// plaintext; such a message renders as a placeholder instead of breaking
// the whole conversation.
type DecryptedMessage struct {
	Message
	Content         string
	IsOwn           bool
	SenderName      string
	DecryptionError bool
}

// GroupMembership tracks members of a group conversation against its cap.
type GroupMembership struct {
	ConversationID ConversationID
	MemberIDs      []UserID
	Capacity       int
}

// RemainingSlots reports how many members can still join.
func (g GroupMembership) RemainingSlots() int {
	return g.Capacity - len(g.MemberIDs)
}

// EventType distinguishes change-feed events on the messages table.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// MessageEvent is one change-feed delivery. Delivery is at-least-once and
// may arrive out of order; consumers dedup by Message.ID and order by
// Message.SequenceNumber.
type MessageEvent struct {
	Type    EventType
	Message Message
}

// Connection is an edge in a user's connection graph; group member search
// is restricted to it.
type Connection struct {
	UserID      UserID
	Username    string
	DisplayName string
}
