// Package group enforces bounded group membership and connection-scoped
// member search.
package group

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sealchat/internal/domain"
)

// DefaultCapacity caps a group conversation's membership.
const DefaultCapacity = 200

// Manager mutates group membership through the store, which re-checks
// capacity atomically. Slot counts exposed here are UI hints only; the
// store remains the enforcement point.
type Manager struct {
	groups      domain.GroupStore
	connections domain.ConnectionDirectory
}

// New returns a manager over the given stores.
func New(groups domain.GroupStore, connections domain.ConnectionDirectory) *Manager {
	return &Manager{groups: groups, connections: connections}
}

// CreateGroup starts a group conversation containing creator and the
// given members. The store writes the conversation and its membership
// in one atomic operation, so a rejected create persists nothing.
func (m *Manager) CreateGroup(ctx context.Context, creator domain.UserID, members []domain.UserID) (domain.Conversation, error) {
	all := make([]domain.UserID, 0, len(members)+1)
	all = append(all, creator)
	for _, member := range members {
		if member != creator {
			all = append(all, member)
		}
	}
	if len(all) > DefaultCapacity {
		return domain.Conversation{}, &domain.CapacityExceededError{Capacity: DefaultCapacity}
	}

	conv := domain.Conversation{
		ID:           domain.ConversationID(uuid.NewString()),
		Participants: all,
		Group:        true,
		CreatedAt:    time.Now(),
	}
	if err := m.groups.CreateGroup(ctx, conv, DefaultCapacity); err != nil {
		return domain.Conversation{}, fmt.Errorf("create group: %w", err)
	}
	return conv, nil
}

// AddMember adds user to the group. The store applies the capacity check
// and the append in one atomic operation; a full group rejects the add
// outright with CapacityExceededError and an unchanged member list.
func (m *Manager) AddMember(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	return m.groups.AddMember(ctx, conv, user)
}

// RemoveMember drops user from the group.
func (m *Manager) RemoveMember(ctx context.Context, conv domain.ConversationID, user domain.UserID) error {
	return m.groups.RemoveMember(ctx, conv, user)
}

// Membership returns the current member list and capacity.
func (m *Manager) Membership(ctx context.Context, conv domain.ConversationID) (domain.GroupMembership, error) {
	return m.groups.Membership(ctx, conv)
}

// RemainingSlots reports how many members can still join, for proactive
// UI gating ahead of an AddMember attempt.
func (m *Manager) RemainingSlots(ctx context.Context, conv domain.ConversationID) (int, error) {
	g, err := m.groups.Membership(ctx, conv)
	if err != nil {
		return 0, err
	}
	return g.RemainingSlots(), nil
}

// SearchConnections finds candidate members by name or username within
// the caller's existing connection graph. Arbitrary users cannot be
// added; an empty query returns every connection.
func (m *Manager) SearchConnections(ctx context.Context, caller domain.UserID, query string) ([]domain.Connection, error) {
	conns, err := m.connections.Connections(ctx, caller)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return conns, nil
	}
	var out []domain.Connection
	for _, c := range conns {
		if strings.Contains(strings.ToLower(c.Username), query) ||
			strings.Contains(strings.ToLower(c.DisplayName), query) {
			out = append(out, c)
		}
	}
	return out, nil
}
