package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sealchat/internal/domain"
	"sealchat/internal/services/message"
)

// Backoff bounds for re-establishing a dropped feed subscription.
const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Coordinator consumes the change feed for one user's conversations,
// decrypts events, merges them into local state ordered by sequence
// number and tracks unread counts.
//
// The feed is at-least-once and unordered: merges dedup by message ID and
// never trust arrival order. All merges run on one goroutine, so no two
// subscribers interleave mid-merge. While the subscription is down the
// coordinator retries with capped backoff and reports itself degraded
// ("may be out of date") instead of failing.
type Coordinator struct {
	self          domain.UserID
	feed          domain.ChangeFeed
	conversations domain.ConversationStore
	messages      domain.MessageStore
	decryptor     *message.Service
	log           zerolog.Logger

	mu       sync.RWMutex
	state    map[domain.ConversationID]map[domain.MessageID]domain.DecryptedMessage
	convs    map[domain.ConversationID]domain.Conversation
	unread   map[domain.ConversationID]int
	degraded bool

	cancel  context.CancelFunc
	done    chan struct{}
	refresh chan struct{}
}

// New builds a coordinator for self. Start must be called before any
// snapshot accessor returns live data.
func New(
	self domain.UserID,
	feed domain.ChangeFeed,
	conversations domain.ConversationStore,
	messages domain.MessageStore,
	decryptor *message.Service,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		self:          self,
		feed:          feed,
		conversations: conversations,
		messages:      messages,
		decryptor:     decryptor,
		log:           log.With().Str("component", "sync").Str("user", string(self)).Logger(),
		state:         make(map[domain.ConversationID]map[domain.MessageID]domain.DecryptedMessage),
		convs:         make(map[domain.ConversationID]domain.Conversation),
		unread:        make(map[domain.ConversationID]int),
		refresh:       make(chan struct{}, 1),
	}
}

// Start subscribes, loads the initial snapshot and begins consuming the
// feed. When the first subscription fails the coordinator still starts,
// degraded, and keeps retrying. Feed consumption continues until Close or
// ctx cancellation, which is the unconditional unsubscribe.
func (c *Coordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	events, err := c.feed.Subscribe(runCtx, c.self)
	if err != nil {
		c.log.Warn().Err(err).Msg("initial feed subscribe failed")
		c.setDegraded(true)
		events = nil
	}
	if err := c.reload(runCtx); err != nil {
		cancel()
		close(c.done)
		return err
	}
	go c.run(runCtx, events)
	return nil
}

// Close tears the subscription down. Unconditional: a decrypt in flight
// finishes but its result is discarded with the context gone.
func (c *Coordinator) Close() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

// NotifyVisible signals that the client regained focus. Accumulated
// deltas are not trusted after backgrounding; the coordinator refetches
// everything instead.
func (c *Coordinator) NotifyVisible() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Conversation returns the decrypted view of one conversation, ordered by
// sequence number.
func (c *Coordinator) Conversation(id domain.ConversationID) []domain.DecryptedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.state[id]
	out := make([]domain.DecryptedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out
}

// UnreadCount reports unread messages in one conversation: read_at unset
// and sent by someone else.
func (c *Coordinator) UnreadCount(id domain.ConversationID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread[id]
}

// TotalUnread sums unread counts across tracked conversations.
func (c *Coordinator) TotalUnread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, n := range c.unread {
		total += n
	}
	return total
}

// Degraded reports whether the feed subscription is currently down and
// local state may be stale.
func (c *Coordinator) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded
}

// run owns the subscription lifecycle and serializes every state
// mutation. events may already be live from Start; afterwards each
// iteration resubscribes with capped backoff.
func (c *Coordinator) run(ctx context.Context, events <-chan domain.MessageEvent) {
	defer close(c.done)

	backoff := initialBackoff
	for {
		if events == nil {
			var err error
			events, err = c.feed.Subscribe(ctx, c.self)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.setDegraded(true)
				c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("feed subscribe failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff *= 2; backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			// A gap may have opened while unsubscribed; refetch, then
			// trust deltas again.
			if err := c.reload(ctx); err != nil {
				c.log.Warn().Err(err).Msg("snapshot reload failed")
			} else {
				c.setDegraded(false)
				backoff = initialBackoff
			}
		}

		if stopped := c.consume(ctx, events); stopped {
			return
		}
		// Feed dropped without cancellation; loop and resubscribe.
		c.setDegraded(true)
		events = nil
	}
}

// consume drains events until the channel closes (false) or ctx ends
// (true means "stop for good").
func (c *Coordinator) consume(ctx context.Context, events <-chan domain.MessageEvent) (stopped bool) {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-c.refresh:
			if err := c.reload(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("visibility refetch failed")
				c.setDegraded(true)
			} else {
				c.setDegraded(false)
			}
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() != nil
			}
			// Decrypt may suspend; if cancellation lands meanwhile the
			// result is discarded below, not merged.
			dm, conv, ok := c.decrypt(ctx, ev)
			if ctx.Err() != nil {
				return true
			}
			if ok {
				c.merge(conv, dm)
			}
		}
	}
}

func (c *Coordinator) decrypt(ctx context.Context, ev domain.MessageEvent) (domain.DecryptedMessage, domain.Conversation, bool) {
	conv, err := c.conversation(ctx, ev.Message.ConversationID)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("conversation", string(ev.Message.ConversationID)).Msg("event for unknown conversation")
		}
		return domain.DecryptedMessage{}, domain.Conversation{}, false
	}
	return c.decryptor.DecryptOne(ctx, conv, ev.Message), conv, true
}

// merge upserts one decrypted message and recomputes the conversation's
// unread count. Recomputed, not incremented: an update event (edit, read
// receipt from another device) changes the count without an insert.
func (c *Coordinator) merge(conv domain.Conversation, dm domain.DecryptedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.convs[conv.ID] = conv
	msgs, ok := c.state[conv.ID]
	if !ok {
		msgs = make(map[domain.MessageID]domain.DecryptedMessage)
		c.state[conv.ID] = msgs
	}
	msgs[dm.ID] = dm
	c.unread[conv.ID] = unreadOf(msgs, c.self)
}

// reload rebuilds the complete local state from the store.
func (c *Coordinator) reload(ctx context.Context) error {
	convs, err := c.conversations.UserConversations(ctx, c.self)
	if err != nil {
		return err
	}

	state := make(map[domain.ConversationID]map[domain.MessageID]domain.DecryptedMessage, len(convs))
	unread := make(map[domain.ConversationID]int, len(convs))
	byID := make(map[domain.ConversationID]domain.Conversation, len(convs))

	for _, conv := range convs {
		msgs, err := c.messages.Messages(ctx, conv.ID, 0)
		if err != nil {
			return err
		}
		decrypted := make(map[domain.MessageID]domain.DecryptedMessage, len(msgs))
		for _, m := range msgs {
			decrypted[m.ID] = c.decryptor.DecryptOne(ctx, conv, m)
		}
		state[conv.ID] = decrypted
		unread[conv.ID] = unreadOf(decrypted, c.self)
		byID[conv.ID] = conv
	}

	c.mu.Lock()
	c.state = state
	c.unread = unread
	c.convs = byID
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) conversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	c.mu.RLock()
	conv, ok := c.convs[id]
	c.mu.RUnlock()
	if ok {
		return conv, nil
	}
	return c.conversations.GetConversation(ctx, id)
}

func (c *Coordinator) setDegraded(v bool) {
	c.mu.Lock()
	c.degraded = v
	c.mu.Unlock()
}

func unreadOf(msgs map[domain.MessageID]domain.DecryptedMessage, self domain.UserID) int {
	n := 0
	for _, m := range msgs {
		if m.ReadAt == nil && m.SenderID != self && !m.Deleted {
			n++
		}
	}
	return n
}
