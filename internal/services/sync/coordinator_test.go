package sync_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sealchat/internal/domain"
	"sealchat/internal/services/convo"
	"sealchat/internal/services/keys"
	"sealchat/internal/services/message"
	syncsvc "sealchat/internal/services/sync"
	"sealchat/internal/store/memory"
)

const (
	alice = domain.UserID("a1a1a1a1-1111-4111-8111-111111111111")
	bob   = domain.UserID("b2b2b2b2-2222-4222-8222-222222222222")

	secret = "Plenty-Strong-Secret-42!"
)

type world struct {
	store *memory.Store
	feed  *memory.Feed

	aliceMsgs *message.Service
	bobMsgs   *message.Service
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := memory.New()
	feed := memory.NewFeed(store)

	makeClient := func(self domain.UserID) *message.Service {
		ks := keys.New(store)
		if _, _, err := ks.InitializeKeys(context.Background(), self, secret); err != nil {
			t.Fatalf("InitializeKeys(%s): %v", self, err)
		}
		return message.New(self, convo.New(ks), ks, store, store)
	}
	return &world{
		store:     store,
		feed:      feed,
		aliceMsgs: makeClient(alice),
		bobMsgs:   makeClient(bob),
	}
}

func (w *world) coordinatorFor(t *testing.T, self domain.UserID, svc *message.Service) *syncsvc.Coordinator {
	t.Helper()
	coord := syncsvc.New(self, w.feed, w.store, w.store, svc, zerolog.Nop())
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(coord.Close)
	return coord
}

// publish mirrors what the datastore collaborator does after a write.
func (w *world) publish(t *testing.T, typ domain.EventType, id domain.MessageID) {
	t.Helper()
	msg, err := w.store.GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if err := w.feed.Publish(context.Background(), domain.MessageEvent{Type: typ, Message: msg}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

// flakyFeed fails its first failures Subscribe calls, then delegates.
type flakyFeed struct {
	inner    domain.ChangeFeed
	failures int

	mu    sync.Mutex
	calls int
}

func (f *flakyFeed) Subscribe(ctx context.Context, user domain.UserID) (<-chan domain.MessageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: connection refused", domain.ErrTransport)
	}
	return f.inner.Subscribe(ctx, user)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInsertEventUpdatesStateAndUnread(t *testing.T) {
	w := newWorld(t)
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	sent, err := w.aliceMsgs.Send(context.Background(), bob, "new lead at acme")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	w.publish(t, domain.EventInsert, sent.ID)

	waitFor(t, "insert merge", func() bool {
		return coord.UnreadCount(sent.ConversationID) == 1
	})
	msgs := coord.Conversation(sent.ConversationID)
	if len(msgs) != 1 || msgs[0].Content != "new lead at acme" || msgs[0].DecryptionError {
		t.Fatalf("merged view = %+v", msgs)
	}
	if msgs[0].IsOwn {
		t.Fatal("peer message marked own")
	}
	if coord.TotalUnread() != 1 {
		t.Fatalf("TotalUnread = %d", coord.TotalUnread())
	}
}

func TestDuplicateDeliveryMergesOnce(t *testing.T) {
	w := newWorld(t)
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	sent, err := w.aliceMsgs.Send(context.Background(), bob, "ping")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for i := 0; i < 3; i++ {
		w.publish(t, domain.EventInsert, sent.ID)
	}

	waitFor(t, "merge", func() bool {
		return len(coord.Conversation(sent.ConversationID)) > 0
	})
	// Give the duplicates time to land; state must still hold one entry.
	time.Sleep(50 * time.Millisecond)
	if got := len(coord.Conversation(sent.ConversationID)); got != 1 {
		t.Fatalf("duplicate delivery produced %d entries", got)
	}
	if coord.UnreadCount(sent.ConversationID) != 1 {
		t.Fatalf("unread = %d, want 1", coord.UnreadCount(sent.ConversationID))
	}
}

func TestOrderingFollowsSequenceNotArrival(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	first, err := w.aliceMsgs.Send(ctx, bob, "first")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	second, err := w.aliceMsgs.Send(ctx, bob, "second")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Deliver out of order; rendering must follow sequence numbers.
	w.publish(t, domain.EventInsert, second.ID)
	w.publish(t, domain.EventInsert, first.ID)

	waitFor(t, "both merges", func() bool {
		return len(coord.Conversation(first.ConversationID)) == 2
	})
	msgs := coord.Conversation(first.ConversationID)
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Fatalf("order = %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[0].SequenceNumber >= msgs[1].SequenceNumber {
		t.Fatalf("sequence order broken: %d >= %d", msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}
}

func TestReadReceiptUpdateRecomputesUnread(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	sent, err := w.aliceMsgs.Send(ctx, bob, "unread until read")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	w.publish(t, domain.EventInsert, sent.ID)
	waitFor(t, "unread", func() bool { return coord.UnreadCount(sent.ConversationID) == 1 })

	// Another device marks it read; the update event must drop the count
	// without any insert.
	if err := w.bobMsgs.MarkRead(ctx, sent.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	w.publish(t, domain.EventUpdate, sent.ID)

	waitFor(t, "unread recompute", func() bool {
		return coord.UnreadCount(sent.ConversationID) == 0
	})
	if got := len(coord.Conversation(sent.ConversationID)); got != 1 {
		t.Fatalf("update event duplicated the message: %d entries", got)
	}
}

func TestVisibilityRefetchRecoversMissedEvents(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	// Written while "backgrounded": no feed event published at all.
	sent, err := w.aliceMsgs.Send(ctx, bob, "missed while away")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(coord.Conversation(sent.ConversationID)) != 0 {
		t.Fatal("message visible before any event or refetch")
	}

	coord.NotifyVisible()
	waitFor(t, "visibility refetch", func() bool {
		msgs := coord.Conversation(sent.ConversationID)
		return len(msgs) == 1 && msgs[0].Content == "missed while away"
	})
}

func TestEditEventReplacesContent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	sent, err := w.aliceMsgs.Send(ctx, bob, "original")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	w.publish(t, domain.EventInsert, sent.ID)
	waitFor(t, "insert", func() bool { return len(coord.Conversation(sent.ConversationID)) == 1 })

	if err := w.bobMsgs.MarkDelivered(ctx, sent.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if err := w.aliceMsgs.Edit(ctx, sent.ID, "amended"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	w.publish(t, domain.EventUpdate, sent.ID)

	waitFor(t, "edit merge", func() bool {
		msgs := coord.Conversation(sent.ConversationID)
		return len(msgs) == 1 && msgs[0].Content == "amended" && msgs[0].Edited
	})
}

func TestSubscribeFailureDegradesThenRecovers(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	first, err := w.aliceMsgs.Send(ctx, bob, "before the outage")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Start's subscribe and the run loop's first retry both fail; the
	// attempt after one backoff gets through.
	feed := &flakyFeed{inner: w.feed, failures: 2}
	coord := syncsvc.New(bob, feed, w.store, w.store, w.bobMsgs, zerolog.Nop())
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(coord.Close)

	// The coordinator starts anyway: degraded, but with the snapshot
	// loaded.
	if !coord.Degraded() {
		t.Fatal("coordinator not degraded after failed subscribe")
	}
	if len(coord.Conversation(first.ConversationID)) != 1 {
		t.Fatal("initial snapshot missing despite dead subscription")
	}

	// Written while the subscription is down; no event is ever published
	// for it, so only the recovery reload can surface it.
	if _, err := w.aliceMsgs.Send(ctx, bob, "during the outage"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "resubscribe recovery", func() bool { return !coord.Degraded() })
	waitFor(t, "gap reload", func() bool {
		return len(coord.Conversation(first.ConversationID)) == 2
	})

	// Live events flow again on the recovered subscription.
	third, err := w.aliceMsgs.Send(ctx, bob, "after recovery")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	w.publish(t, domain.EventInsert, third.ID)
	waitFor(t, "live event after recovery", func() bool {
		return len(coord.Conversation(first.ConversationID)) == 3
	})
}

func TestCloseStopsConsumption(t *testing.T) {
	w := newWorld(t)
	coord := w.coordinatorFor(t, bob, w.bobMsgs)

	sent, err := w.aliceMsgs.Send(context.Background(), bob, "before close")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	coord.Close()

	// Events after Close are discarded; the accessor keeps returning the
	// last snapshot without racing the closed loop.
	w.publish(t, domain.EventInsert, sent.ID)
	time.Sleep(20 * time.Millisecond)
	if coord.UnreadCount(sent.ConversationID) != 0 {
		t.Fatal("event merged after Close")
	}
}
