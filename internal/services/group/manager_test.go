package group_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sealchat/internal/domain"
	"sealchat/internal/services/group"
	"sealchat/internal/store/memory"
)

const owner = domain.UserID("aaaaaaaa-bbbb-4ccc-8ddd-eeeeffff0001")

func newManager() (*group.Manager, *memory.Store) {
	store := memory.New()
	return group.New(store, store), store
}

func member(i int) domain.UserID {
	return domain.UserID(fmt.Sprintf("00000000-0000-4000-8000-%012d", i))
}

func TestAddMemberRejectedAtCapacity(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager()

	conv, err := mgr.CreateGroup(ctx, owner, nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	// Fill to capacity (owner occupies one slot).
	for i := 1; i < group.DefaultCapacity; i++ {
		if err := mgr.AddMember(ctx, conv.ID, member(i)); err != nil {
			t.Fatalf("AddMember %d: %v", i, err)
		}
	}
	slots, err := mgr.RemainingSlots(ctx, conv.ID)
	if err != nil || slots != 0 {
		t.Fatalf("RemainingSlots = %d, %v; want 0", slots, err)
	}

	// The 201st member is rejected atomically.
	var capErr *domain.CapacityExceededError
	err = mgr.AddMember(ctx, conv.ID, member(group.DefaultCapacity))
	if !errors.As(err, &capErr) {
		t.Fatalf("want CapacityExceededError, got %v", err)
	}
	g, err := store.Membership(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Membership: %v", err)
	}
	if len(g.MemberIDs) != group.DefaultCapacity {
		t.Fatalf("membership count changed on rejected add: %d", len(g.MemberIDs))
	}
}

func TestCreateGroupLeavesNothingOnRejection(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager()

	// One over capacity with the owner counted in.
	members := make([]domain.UserID, group.DefaultCapacity)
	for i := range members {
		members[i] = member(i + 1)
	}
	var capErr *domain.CapacityExceededError
	if _, err := mgr.CreateGroup(ctx, owner, members); !errors.As(err, &capErr) {
		t.Fatalf("want CapacityExceededError, got %v", err)
	}
	convs, err := store.UserConversations(ctx, owner)
	if err != nil {
		t.Fatalf("UserConversations: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("rejected create left %d conversations behind", len(convs))
	}

	// The store write itself is all-or-nothing: a rejected create leaves
	// neither the conversation nor the membership.
	conv := domain.Conversation{
		ID:           domain.ConversationID("dddddddd-0000-4000-8000-000000000001"),
		Participants: []domain.UserID{owner, member(1), member(2)},
		Group:        true,
	}
	if err := store.CreateGroup(ctx, conv, 2); !errors.As(err, &capErr) {
		t.Fatalf("want CapacityExceededError, got %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("conversation persisted on rejected create: %v", err)
	}
	if _, err := store.Membership(ctx, conv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("membership persisted on rejected create: %v", err)
	}
}

func TestAddMemberIdempotentForExistingMember(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager()

	conv, err := mgr.CreateGroup(ctx, owner, []domain.UserID{member(1)})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := mgr.AddMember(ctx, conv.ID, member(1)); err != nil {
		t.Fatalf("re-add existing member: %v", err)
	}
	g, _ := store.Membership(ctx, conv.ID)
	if len(g.MemberIDs) != 2 {
		t.Fatalf("member list = %d entries, want 2", len(g.MemberIDs))
	}
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager()

	conv, err := mgr.CreateGroup(ctx, owner, []domain.UserID{member(1), member(2)})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := mgr.RemoveMember(ctx, conv.ID, member(1)); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	g, _ := store.Membership(ctx, conv.ID)
	for _, m := range g.MemberIDs {
		if m == member(1) {
			t.Fatal("removed member still present")
		}
	}
	slots, _ := mgr.RemainingSlots(ctx, conv.ID)
	if want := group.DefaultCapacity - 2; slots != want {
		t.Fatalf("RemainingSlots = %d, want %d", slots, want)
	}
}

func TestSearchConnectionsScopedToCaller(t *testing.T) {
	ctx := context.Background()
	mgr, store := newManager()

	store.SetConnections(owner, []domain.Connection{
		{UserID: member(1), Username: "ada_l", DisplayName: "Ada Lovelace"},
		{UserID: member(2), Username: "chuck", DisplayName: "Charles Babbage"},
	})

	found, err := mgr.SearchConnections(ctx, owner, "ada")
	if err != nil {
		t.Fatalf("SearchConnections: %v", err)
	}
	if len(found) != 1 || found[0].UserID != member(1) {
		t.Fatalf("search result = %+v", found)
	}

	all, err := mgr.SearchConnections(ctx, owner, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("empty query: %d results, %v", len(all), err)
	}

	// A caller with no connections sees nothing, whatever the query.
	stranger := domain.UserID("ffffffff-0000-4000-8000-000000000000")
	none, err := mgr.SearchConnections(ctx, stranger, "ada")
	if err != nil || len(none) != 0 {
		t.Fatalf("stranger search: %d results, %v", len(none), err)
	}
}
