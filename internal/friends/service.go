// Package friends manages the contact graph: requests, acceptance,
// rejection and removal. Friendship is symmetric and feeds the guard's
// first-contact gate.
package friends

import (
	"time"

	"github.com/google/uuid"

	"lanchat/internal/guard"
	"lanchat/internal/identity"
	"lanchat/internal/models"
	"lanchat/internal/protocol"
	"lanchat/internal/session"
	"lanchat/internal/store"
)

// Service owns friendship state transitions.
type Service struct {
	store      *store.Store
	sessions   *session.Registry
	identities *identity.Service
}

func NewService(st *store.Store, sessions *session.Registry, identities *identity.Service) *Service {
	return &Service{store: st, sessions: sessions, identities: identities}
}

// Request files a friend request toward targetID. At most one pending
// request may exist per ordered pair; an opposite pending request is
// accepted instead of duplicated.
func (s *Service) Request(fromID, targetID string) error {
	if fromID == targetID {
		return &guard.Rejection{Kind: protocol.ErrKindValidation, Message: "cannot befriend yourself"}
	}
	target, ok := s.store.Users[targetID]
	if !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown identity"}
	}
	if s.areFriends(fromID, targetID) {
		return &guard.Rejection{Kind: protocol.ErrKindConflict, Message: "already friends"}
	}
	for _, r := range s.store.FriendRequests[targetID] {
		if r.FromID == fromID && r.Status == models.RequestPending {
			return &guard.Rejection{Kind: protocol.ErrKindConflict, Message: "request already pending"}
		}
	}
	// A pending request in the opposite direction means both sides want the
	// friendship; accept it instead of stacking a second request.
	for _, r := range s.store.FriendRequests[fromID] {
		if r.FromID == targetID && r.Status == models.RequestPending {
			return s.Accept(fromID, r.ID)
		}
	}

	req := &models.FriendRequest{
		ID:        uuid.NewString(),
		FromID:    fromID,
		ToID:      targetID,
		Status:    models.RequestPending,
		CreatedAt: time.Now(),
	}
	s.store.FriendRequests[targetID] = append(s.store.FriendRequests[targetID], req)
	s.store.SaveFriendRequests()

	sender := s.store.Users[fromID]
	s.sessions.Send(targetID, protocol.TypeFriendRequestReceived, protocol.FriendRequestReceivedMsg{
		PendingRequest: protocol.PendingRequest{
			FriendRequest: *req,
			Sender:        s.identities.PublicView(sender),
		},
	})
	s.sessions.Send(fromID, protocol.TypeFriendRequestSent, protocol.FriendRequestSentMsg{TargetID: target.ID})
	return nil
}

// Accept resolves a pending request addressed to actingID and establishes
// the symmetric friendship.
func (s *Service) Accept(actingID, requestID string) error {
	req := s.findPending(actingID, requestID)
	if req == nil {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown friend request"}
	}
	s.store.FriendRequests[actingID] = withoutRequest(s.store.FriendRequests[actingID], requestID)
	s.store.SaveFriendRequests()

	s.store.Friends[actingID] = appendUnique(s.store.Friends[actingID], req.FromID)
	s.store.Friends[req.FromID] = appendUnique(s.store.Friends[req.FromID], actingID)
	s.store.SaveFriends()

	if from, ok := s.store.Users[req.FromID]; ok {
		s.sessions.Send(actingID, protocol.TypeFriendshipEstablished, protocol.FriendshipEstablishedMsg{Friend: s.identities.PublicView(from)})
	}
	if to, ok := s.store.Users[actingID]; ok {
		s.sessions.Send(req.FromID, protocol.TypeFriendshipEstablished, protocol.FriendshipEstablishedMsg{Friend: s.identities.PublicView(to)})
	}
	return nil
}

// Reject resolves a pending request addressed to actingID without creating
// a friendship. The requester is told.
func (s *Service) Reject(actingID, requestID string) error {
	req := s.findPending(actingID, requestID)
	if req == nil {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown friend request"}
	}
	s.store.FriendRequests[actingID] = withoutRequest(s.store.FriendRequests[actingID], requestID)
	s.store.SaveFriendRequests()

	s.sessions.Send(req.FromID, protocol.TypeFriendRequestRejected, protocol.FriendRequestRejectedMsg{RequestID: req.ID})
	return nil
}

// Remove dissolves an existing friendship from both sides.
func (s *Service) Remove(actingID, targetID string) error {
	if !s.areFriends(actingID, targetID) {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "not friends"}
	}
	s.store.Friends[actingID] = withoutID(s.store.Friends[actingID], targetID)
	s.store.Friends[targetID] = withoutID(s.store.Friends[targetID], actingID)
	s.store.SaveFriends()

	s.sessions.Send(actingID, protocol.TypeFriendRemoved, protocol.FriendRemovedMsg{IdentityID: targetID})
	s.sessions.Send(targetID, protocol.TypeFriendRemoved, protocol.FriendRemovedMsg{IdentityID: actingID})
	return nil
}

// PendingFor returns the pending requests addressed to id, with sender
// projections, for the post-auth snapshot.
func (s *Service) PendingFor(id string) []protocol.PendingRequest {
	out := []protocol.PendingRequest{}
	for _, r := range s.store.FriendRequests[id] {
		if r.Status != models.RequestPending {
			continue
		}
		sender, ok := s.store.Users[r.FromID]
		if !ok {
			continue
		}
		out = append(out, protocol.PendingRequest{
			FriendRequest: *r,
			Sender:        s.identities.PublicView(sender),
		})
	}
	return out
}

// ListFor returns id's friends with their online state.
func (s *Service) ListFor(id string) []protocol.FriendEntry {
	out := []protocol.FriendEntry{}
	for _, fid := range s.store.Friends[id] {
		u, ok := s.store.Users[fid]
		if !ok {
			continue
		}
		out = append(out, protocol.FriendEntry{
			PublicIdentity: s.identities.PublicView(u),
			Online:         s.sessions.Online(fid),
		})
	}
	return out
}

func (s *Service) areFriends(a, b string) bool {
	for _, id := range s.store.Friends[a] {
		if id == b {
			return true
		}
	}
	return false
}

func (s *Service) findPending(ownerID, requestID string) *models.FriendRequest {
	for _, r := range s.store.FriendRequests[ownerID] {
		if r.ID == requestID && r.Status == models.RequestPending {
			return r
		}
	}
	return nil
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func withoutID(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func withoutRequest(list []*models.FriendRequest, id string) []*models.FriendRequest {
	out := list[:0]
	for _, r := range list {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
