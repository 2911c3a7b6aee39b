package memory

import (
	"context"
	"sync"

	"sealchat/internal/domain"
)

// Feed is an in-process change feed. Events publish to every subscriber
// whose user participates in the event's conversation. Delivery is
// best-effort and unordered, matching the production feed's contract.
type Feed struct {
	store *Store

	mu   sync.Mutex
	subs map[domain.UserID][]chan domain.MessageEvent
}

// NewFeed builds a feed routing through the given store's conversations.
func NewFeed(store *Store) *Feed {
	return &Feed{
		store: store,
		subs:  make(map[domain.UserID][]chan domain.MessageEvent),
	}
}

// Subscribe registers a channel for the user's events. Cancelling ctx is
// the unsubscribe; the channel closes afterwards.
func (f *Feed) Subscribe(ctx context.Context, user domain.UserID) (<-chan domain.MessageEvent, error) {
	ch := make(chan domain.MessageEvent, 64)

	f.mu.Lock()
	f.subs[user] = append(f.subs[user], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		channels := f.subs[user]
		for i, c := range channels {
			if c == ch {
				f.subs[user] = append(channels[:i], channels[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Publish fans the event out to participants of its conversation. A slow
// subscriber drops the event rather than blocking the publisher; missed
// events are recovered by the consumer's visibility refetch.
func (f *Feed) Publish(ctx context.Context, event domain.MessageEvent) error {
	conv, err := f.store.GetConversation(ctx, event.Message.ConversationID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, participant := range conv.Participants {
		for _, ch := range f.subs[participant] {
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

var (
	_ domain.ChangeFeed    = (*Feed)(nil)
	_ domain.FeedPublisher = (*Feed)(nil)
)
