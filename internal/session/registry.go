// Package session tracks which identity is bound to which live connection,
// enforces the single-session rule and owns the room fan-out sets.
package session

import (
	"log"

	"lanchat/internal/models"
	"lanchat/internal/protocol"
	"lanchat/internal/store"
)

// Conn is one live client connection. Implemented by the websocket
// transport; tests substitute an in-memory fake.
type Conn interface {
	Send(msgType string, payload any) error
	Close()
}

// Registry maps connections to identities and back. The two maps are mutual
// inverses for every bound pair. Like the store, it does no locking of its
// own: all calls run under the gateway mutex.
type Registry struct {
	store  *store.Store
	byConn map[Conn]string
	byID   map[string]Conn
	rooms  map[string]map[string]struct{}
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{
		store:  st,
		byConn: map[Conn]string{},
		byID:   map[string]Conn{},
		rooms:  map[string]map[string]struct{}{},
	}
}

// Bind installs conn as the canonical connection for id. If the identity
// already has a live session, that connection is notified and closed before
// the new binding exists, so a duplicate is never observable; if the
// connection is already bound to another identity, that binding is released
// first so byConn and byID stay mutual inverses. The identity is
// re-subscribed to all its room fan-out groups before Bind returns.
func (r *Registry) Bind(conn Conn, id string) {
	if prevID, bound := r.byConn[conn]; bound {
		if prevID == id {
			return
		}
		r.Unbind(conn)
	}

	wasOnline := false
	if prev, ok := r.byID[id]; ok {
		wasOnline = true
		_ = prev.Send(protocol.TypeForcedLogout, protocol.ForcedLogoutMsg{Reason: "signed in from another connection"})
		prev.Close()
		delete(r.byConn, prev)
		delete(r.byID, id)
		log.Printf("session: takeover for %s", id)
	}

	r.byConn[conn] = id
	r.byID[id] = conn

	for roomID, room := range r.store.Rooms {
		if room.HasMember(id) {
			r.JoinRoom(id, roomID)
		}
	}

	if !wasOnline {
		r.broadcastPresence(id, "online")
	}
}

// Unbind removes the binding for conn, if any, and broadcasts the offline
// transition. Idempotent: a second call for the same connection is a no-op.
func (r *Registry) Unbind(conn Conn) {
	id, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)
	delete(r.byID, id)
	for _, members := range r.rooms {
		delete(members, id)
	}
	r.broadcastPresence(id, "offline")
}

// IdentityFor resolves the identity bound to conn.
func (r *Registry) IdentityFor(conn Conn) (string, bool) {
	id, ok := r.byConn[conn]
	return id, ok
}

// Online reports whether id has a bound connection.
func (r *Registry) Online(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// OnlineIDs returns the identities with a bound connection.
func (r *Registry) OnlineIDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Send delivers one event to id's bound connection. Returns false when the
// identity is offline or the write fails.
func (r *Registry) Send(id, msgType string, payload any) bool {
	conn, ok := r.byID[id]
	if !ok {
		return false
	}
	if err := conn.Send(msgType, payload); err != nil {
		log.Printf("session: send %s to %s: %v", msgType, id, err)
		return false
	}
	return true
}

// Drop force-closes id's session with a reason, then broadcasts offline.
func (r *Registry) Drop(id, reason string) {
	conn, ok := r.byID[id]
	if !ok {
		return
	}
	_ = conn.Send(protocol.TypeForcedLogout, protocol.ForcedLogoutMsg{Reason: reason})
	conn.Close()
	r.Unbind(conn)
}

// Broadcast sends one event to every bound connection except exceptID.
func (r *Registry) Broadcast(msgType string, payload any, exceptID string) {
	for id := range r.byID {
		if id == exceptID {
			continue
		}
		r.Send(id, msgType, payload)
	}
}

// JoinRoom adds id to the room's fan-out set.
func (r *Registry) JoinRoom(id, roomID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		members = map[string]struct{}{}
		r.rooms[roomID] = members
	}
	members[id] = struct{}{}
}

// LeaveRoom removes id from the room's fan-out set.
func (r *Registry) LeaveRoom(id, roomID string) {
	delete(r.rooms[roomID], id)
}

// DropRoom discards the room's entire fan-out set (disband, delete-on-empty).
func (r *Registry) DropRoom(roomID string) {
	delete(r.rooms, roomID)
}

// SendRoom fans one event out to every subscribed member of the room except
// exceptID. Returns the number of sessions reached.
func (r *Registry) SendRoom(roomID, msgType string, payload any, exceptID string) int {
	sent := 0
	for id := range r.rooms[roomID] {
		if id == exceptID {
			continue
		}
		if r.Send(id, msgType, payload) {
			sent++
		}
	}
	return sent
}

func (r *Registry) broadcastPresence(id, state string) {
	u, ok := r.store.Users[id]
	if !ok {
		return
	}
	r.Broadcast(protocol.TypePresenceChanged, protocol.PresenceChangedMsg{
		Identity: publicView(r.store, u),
		State:    state,
	}, id)
}

func publicView(st *store.Store, u *models.Identity) models.PublicIdentity {
	return models.PublicIdentity{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		AvatarRef:   u.AvatarRef,
		Bio:         u.Bio,
		Role:        u.Role,
		RoleInfo:    st.RoleInfo(u.Role),
	}
}
