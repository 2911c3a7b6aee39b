// Package redisfeed carries message change events over Redis pub/sub.
// It is the production change feed; the memory feed backs tests and
// the single-process dev relay.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sealchat/internal/domain"
)

// Per-user channel carrying that user's conversation events.
const feedChannelPrefix = "feed:user:"

// Feed publishes to and subscribes from per-user Redis channels.
// Delivery is at-least-once from the consumer's point of view: a
// publisher retry after a timeout can duplicate an event, which the
// sync coordinator absorbs by message ID.
type Feed struct {
	rdb           *redis.Client
	conversations domain.ConversationStore
	log           zerolog.Logger
}

func New(rdb *redis.Client, conversations domain.ConversationStore, log zerolog.Logger) *Feed {
	return &Feed{
		rdb:           rdb,
		conversations: conversations,
		log:           log.With().Str("component", "redisfeed").Logger(),
	}
}

func channelFor(user domain.UserID) string {
	return feedChannelPrefix + string(user)
}

// Publish fans the event out to every participant of its conversation.
func (f *Feed) Publish(ctx context.Context, event domain.MessageEvent) error {
	conv, err := f.conversations.GetConversation(ctx, event.Message.ConversationID)
	if err != nil {
		return fmt.Errorf("resolve participants: %w", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, p := range conv.Participants {
		if err := f.rdb.Publish(ctx, channelFor(p), payload).Err(); err != nil {
			return fmt.Errorf("publish to %s: %w", p, err)
		}
	}
	return nil
}

// Subscribe opens the user's channel. Cancelling ctx is the
// unconditional unsubscribe; the returned channel closes after it.
func (f *Feed) Subscribe(ctx context.Context, user domain.UserID) (<-chan domain.MessageEvent, error) {
	sub := f.rdb.Subscribe(ctx, channelFor(user))

	// Confirm the subscription before returning so no event published
	// after Subscribe can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", user, err)
	}

	out := make(chan domain.MessageEvent, 64)
	go f.pump(ctx, sub, out, user)
	return out, nil
}

func (f *Feed) pump(ctx context.Context, sub *redis.PubSub, out chan<- domain.MessageEvent, user domain.UserID) {
	defer close(out)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.MessageEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.log.Warn().Err(err).Str("user", string(user)).Msg("malformed feed payload dropped")
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

var (
	_ domain.ChangeFeed    = (*Feed)(nil)
	_ domain.FeedPublisher = (*Feed)(nil)
)
