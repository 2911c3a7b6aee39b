package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sealchat/internal/domain"
	"sealchat/internal/services/convo"
	"sealchat/internal/validate"
)

// ErrNotSender rejects edit/delete on a message the caller did not send.
var ErrNotSender = errors.New("only the sender may amend a message")

// Service drives the message lifecycle: compose, validate, encrypt,
// persist, then edit or delete within their windows, plus read and
// delivery receipts and decrypted history.
//
// Window checks here gate the attempt early; the store re-validates
// against its authoritative created_at.
type Service struct {
	self          domain.UserID
	engine        *convo.Engine
	resolver      domain.PeerKeyResolver
	conversations domain.ConversationStore
	messages      domain.MessageStore
	now           func() time.Time
	nameOf        func(domain.UserID) string
}

// Option configures the service.
type Option func(*Service)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNameResolver supplies display names for decrypted history.
func WithNameResolver(nameOf func(domain.UserID) string) Option {
	return func(s *Service) { s.nameOf = nameOf }
}

// New builds a message service acting as self.
func New(
	self domain.UserID,
	engine *convo.Engine,
	resolver domain.PeerKeyResolver,
	conversations domain.ConversationStore,
	messages domain.MessageStore,
	opts ...Option,
) *Service {
	s := &Service{
		self:          self,
		engine:        engine,
		resolver:      resolver,
		conversations: conversations,
		messages:      messages,
		now:           time.Now,
		nameOf:        func(u domain.UserID) string { return string(u) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates, sanitizes and encrypts content for the peer, creating
// the direct conversation on first contact, and persists the result. The
// store assigns the sequence number.
func (s *Service) Send(ctx context.Context, to domain.UserID, content string) (domain.Message, error) {
	if err := validate.UUID(string(to), "recipient_id"); err != nil {
		return domain.Message{}, err
	}
	content = validate.Sanitize(content, validate.SanitizeOptions{})
	if err := validate.MessageContent(content); err != nil {
		return domain.Message{}, err
	}

	conv, found, err := s.conversations.FindDirectConversation(ctx, s.self, to)
	if err != nil {
		return domain.Message{}, fmt.Errorf("find conversation: %w", err)
	}
	if !found {
		conv = domain.Conversation{
			ID:           domain.ConversationID(uuid.NewString()),
			Participants: []domain.UserID{s.self, to},
			CreatedAt:    s.now(),
		}
		if err := s.conversations.CreateConversation(ctx, conv); err != nil {
			return domain.Message{}, fmt.Errorf("create conversation: %w", err)
		}
	}

	peerPub, err := s.resolver.PeerPublicKey(ctx, to)
	if err != nil {
		return domain.Message{}, err
	}
	ciphertext, err := s.engine.Encrypt(peerPub, []byte(content))
	if err != nil {
		return domain.Message{}, err
	}

	return s.messages.AppendMessage(ctx, domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		SenderID:       s.self,
		Ciphertext:     ciphertext,
		CreatedAt:      s.now(),
	})
}

// SendGroup encrypts content once per member (envelope fan-out, sender
// included so own history stays readable) and persists it.
func (s *Service) SendGroup(ctx context.Context, convID domain.ConversationID, content string) (domain.Message, error) {
	content = validate.Sanitize(content, validate.SanitizeOptions{})
	if err := validate.MessageContent(content); err != nil {
		return domain.Message{}, err
	}

	conv, err := s.conversations.GetConversation(ctx, convID)
	if err != nil {
		return domain.Message{}, err
	}
	if !conv.Group {
		return domain.Message{}, fmt.Errorf("conversation %s is not a group", convID)
	}
	if !participant(conv, s.self) {
		return domain.Message{}, domain.ErrNotParticipant
	}
	env, err := s.sealForGroup(ctx, conv, content)
	if err != nil {
		return domain.Message{}, err
	}

	return s.messages.AppendMessage(ctx, domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		SenderID:       s.self,
		Ciphertext:     env.Ciphertext,
		Keys:           env.Keys,
		CreatedAt:      s.now(),
	})
}

// Edit re-encrypts content over an existing message. Only the sender may
// edit, only from the delivered state's window: once the window closes
// the transition is permanently unavailable.
func (s *Service) Edit(ctx context.Context, id domain.MessageID, content string) error {
	content = validate.Sanitize(content, validate.SanitizeOptions{})
	if err := validate.MessageContent(content); err != nil {
		return err
	}

	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != s.self {
		return ErrNotSender
	}
	if msg.Deleted {
		return domain.ErrWindowExpired
	}
	if msg.DeliveredAt == nil {
		return domain.ErrNotDelivered
	}
	if !validate.WithinEditWindow(msg.CreatedAt, s.now()) {
		return domain.ErrWindowExpired
	}

	conv, err := s.conversations.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return err
	}

	var ciphertext []byte
	var sealedKeys map[domain.UserID][]byte
	if conv.Group {
		env, err := s.sealForGroup(ctx, conv, content)
		if err != nil {
			return err
		}
		ciphertext, sealedKeys = env.Ciphertext, env.Keys
	} else {
		peerPub, err := s.resolver.PeerPublicKey(ctx, otherParticipant(conv, s.self))
		if err != nil {
			return err
		}
		ciphertext, err = s.engine.Encrypt(peerPub, []byte(content))
		if err != nil {
			return err
		}
	}
	return s.messages.UpdateCiphertext(ctx, id, ciphertext, sealedKeys, s.now())
}

// Delete flags the message deleted and scrubs its ciphertext. One-way,
// sender-only, window-gated.
func (s *Service) Delete(ctx context.Context, id domain.MessageID) error {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != s.self {
		return ErrNotSender
	}
	if !validate.WithinDeleteWindow(msg.CreatedAt, s.now()) {
		return domain.ErrWindowExpired
	}
	return s.messages.MarkDeleted(ctx, id)
}

// MarkRead records a read receipt. Receipts are idempotent in the store.
func (s *Service) MarkRead(ctx context.Context, id domain.MessageID) error {
	return s.messages.MarkRead(ctx, id, s.now())
}

// MarkDelivered records a delivery receipt.
func (s *Service) MarkDelivered(ctx context.Context, id domain.MessageID) error {
	return s.messages.MarkDelivered(ctx, id, s.now())
}

// History fetches a conversation ordered by sequence number and decrypts
// each message. A message that fails to decrypt comes back flagged, not
// as an error: one bad ciphertext never blanks the conversation.
func (s *Service) History(ctx context.Context, convID domain.ConversationID, limit int) ([]domain.DecryptedMessage, error) {
	conv, err := s.conversations.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !participant(conv, s.self) {
		return nil, domain.ErrNotParticipant
	}
	msgs, err := s.messages.Messages(ctx, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	out := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, s.DecryptOne(ctx, conv, msg))
	}
	return out, nil
}

// DecryptOne produces the client-local view of a single stored message.
// Shared with the realtime coordinator so feed events and history renders
// agree byte for byte.
func (s *Service) DecryptOne(ctx context.Context, conv domain.Conversation, msg domain.Message) domain.DecryptedMessage {
	dm := domain.DecryptedMessage{
		Message:    msg,
		IsOwn:      msg.SenderID == s.self,
		SenderName: s.nameOf(msg.SenderID),
	}
	if msg.Deleted {
		return dm
	}

	senderPub, err := s.senderPublic(ctx, conv, msg)
	if err != nil {
		dm.DecryptionError = true
		return dm
	}

	var plaintext []byte
	if conv.Group {
		plaintext, err = s.engine.OpenEnvelope(senderPub, s.self, convo.Envelope{
			Ciphertext: msg.Ciphertext,
			Keys:       msg.Keys,
		})
	} else {
		plaintext, err = s.engine.Decrypt(senderPub, msg.Ciphertext)
	}
	if err != nil {
		dm.DecryptionError = true
		return dm
	}
	dm.Content = string(plaintext)
	return dm
}

// senderPublic picks the key the pairwise secret must be derived against:
// for direct messages always the other participant (the secret is
// symmetric, so own messages open with the same secret); for groups the
// sender, falling back to our own key for own messages.
func (s *Service) senderPublic(ctx context.Context, conv domain.Conversation, msg domain.Message) (domain.X25519Public, error) {
	peer := msg.SenderID
	if !conv.Group {
		peer = otherParticipant(conv, s.self)
	} else if msg.SenderID == s.self {
		peer = s.self
	}
	return s.resolver.PeerPublicKey(ctx, peer)
}

func (s *Service) sealForGroup(ctx context.Context, conv domain.Conversation, content string) (convo.Envelope, error) {
	recipients := make(map[domain.UserID]domain.X25519Public, len(conv.Participants))
	for _, member := range conv.Participants {
		pub, err := s.resolver.PeerPublicKey(ctx, member)
		if err != nil {
			return convo.Envelope{}, fmt.Errorf("member %s: %w", member, err)
		}
		recipients[member] = pub
	}
	return s.engine.EncryptEnvelope(recipients, []byte(content))
}

func otherParticipant(conv domain.Conversation, self domain.UserID) domain.UserID {
	for _, p := range conv.Participants {
		if p != self {
			return p
		}
	}
	return self
}

func participant(conv domain.Conversation, user domain.UserID) bool {
	for _, p := range conv.Participants {
		if p == user {
			return true
		}
	}
	return false
}
