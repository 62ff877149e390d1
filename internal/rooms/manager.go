// Package rooms manages group conversation membership: creation, invites,
// kicks, leaves, disband and the owner/admin-gated room mutations.
package rooms

import (
	"log"
	"time"

	"github.com/google/uuid"

	"lanchat/internal/chat"
	"lanchat/internal/guard"
	"lanchat/internal/models"
	"lanchat/internal/observability"
	"lanchat/internal/protocol"
	"lanchat/internal/session"
	"lanchat/internal/store"
)

// Manager owns room lifecycle and membership transitions.
type Manager struct {
	store    *store.Store
	sessions *session.Registry
	guard    *guard.Guard
	router   *chat.Router
}

func NewManager(st *store.Store, sessions *session.Registry, g *guard.Guard, router *chat.Router) *Manager {
	return &Manager{store: st, sessions: sessions, guard: g, router: router}
}

// Create builds a room owned by ownerID. The owner is always a member even
// if absent from the initial member list; profane names are rejected
// outright. Every connected initial member joins the fan-out set at once.
func (m *Manager) Create(ownerID string, msg protocol.RoomCreateMsg) (*models.Room, error) {
	if msg.Name == "" {
		return nil, &guard.Rejection{Kind: protocol.ErrKindValidation, Message: "room name must not be empty"}
	}
	if guard.ContainsProfanity(msg.Name) {
		observability.IncRejection(protocol.ErrKindValidation)
		return nil, &guard.Rejection{Kind: protocol.ErrKindValidation, Message: "room name contains blocked words"}
	}

	members := []string{ownerID}
	seen := map[string]struct{}{ownerID: {}}
	for _, id := range msg.MemberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		if _, exists := m.store.Users[id]; !exists {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      msg.Name,
		OwnerID:   ownerID,
		AdminIDs:  []string{},
		MemberIDs: members,
		Settings:  models.RoomSettings{AllowMemberInvite: true},
		CreatedAt: time.Now(),
	}
	m.store.Rooms[room.ID] = room
	m.store.SaveRooms()

	for _, id := range members {
		if m.sessions.Online(id) {
			m.sessions.JoinRoom(id, room.ID)
			m.sessions.Send(id, protocol.TypeRoomCreated, protocol.RoomEventMsg{Room: room})
		}
	}
	log.Printf("rooms: created %q (%s) by %s with %d members", room.Name, room.ID, ownerID, len(members))
	return room, nil
}

// Invite adds targets to the room, skipping unknown and already-present
// identities, and returns the number actually added. Member invites are
// gated on the room's allowMemberInvite setting.
func (m *Manager) Invite(actingID string, msg protocol.RoomInviteMsg) (int, error) {
	room, ok := m.store.Rooms[msg.RoomID]
	if !ok {
		return 0, &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if !room.HasMember(actingID) {
		return 0, &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "not a room member"}
	}
	if !room.Settings.AllowMemberInvite && !m.canManage(actingID, room) {
		return 0, &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "only the owner or admins may invite"}
	}

	names := []string{}
	added := []string{}
	for _, id := range msg.TargetIDs {
		if room.HasMember(id) {
			continue
		}
		u, exists := m.store.Users[id]
		if !exists {
			continue
		}
		room.MemberIDs = append(room.MemberIDs, id)
		names = append(names, u.DisplayName)
		added = append(added, id)
	}
	if len(added) == 0 {
		return 0, nil
	}
	m.store.SaveRooms()

	for _, id := range added {
		if m.sessions.Online(id) {
			m.sessions.JoinRoom(id, room.ID)
		}
		m.sessions.Send(id, protocol.TypeRoomJoined, protocol.RoomEventMsg{Room: room})
	}
	m.broadcastRoom(room)
	m.router.AppendRoomSystem(room.ID, joinLine(names))
	return len(added), nil
}

// Kick removes targetID from the room. Requires owner, room-admin, or the
// room-management permission; the owner is never a valid target.
func (m *Manager) Kick(actingID string, msg protocol.RoomKickMsg) error {
	room, ok := m.store.Rooms[msg.RoomID]
	if !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if !m.canManage(actingID, room) {
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "no permission to kick"}
	}
	if msg.TargetID == room.OwnerID {
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "the room owner cannot be kicked"}
	}
	if !room.HasMember(msg.TargetID) {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "not a room member"}
	}

	room.RemoveMember(msg.TargetID)
	m.store.SaveRooms()
	m.sessions.LeaveRoom(msg.TargetID, room.ID)
	m.sessions.Send(msg.TargetID, protocol.TypeRoomKicked, protocol.RoomKickedMsg{RoomID: room.ID, RoomName: room.Name})
	m.sessions.SendRoom(room.ID, protocol.TypeRoomMemberRemoved, protocol.RoomMemberRemovedMsg{RoomID: room.ID, IdentityID: msg.TargetID}, "")
	m.router.AppendRoomSystem(room.ID, m.displayName(msg.TargetID)+" was removed from the room")
	return nil
}

// Leave removes the acting identity from the room. The owner may not leave
// and must disband instead.
func (m *Manager) Leave(actingID string, roomID string) error {
	room, ok := m.store.Rooms[roomID]
	if !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if !room.HasMember(actingID) {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "not a room member"}
	}
	if actingID == room.OwnerID {
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "the owner must disband the room instead of leaving"}
	}

	room.RemoveMember(actingID)
	m.store.SaveRooms()
	m.sessions.LeaveRoom(actingID, room.ID)
	m.sessions.Send(actingID, protocol.TypeRoomLeft, protocol.RoomLeftMsg{RoomID: room.ID})
	m.sessions.SendRoom(room.ID, protocol.TypeRoomMemberRemoved, protocol.RoomMemberRemovedMsg{RoomID: room.ID, IdentityID: actingID}, "")
	m.router.AppendRoomSystem(room.ID, m.displayName(actingID)+" left the room")
	return nil
}

// Disband deletes the room and its message log entirely. Owner-only and
// unrecoverable; members are notified first.
func (m *Manager) Disband(actingID string, roomID string) error {
	room, ok := m.store.Rooms[roomID]
	if !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if actingID != room.OwnerID {
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "only the owner may disband a room"}
	}

	m.sessions.SendRoom(room.ID, protocol.TypeRoomDisbanded, protocol.RoomDisbandedMsg{RoomID: room.ID, RoomName: room.Name}, "")
	m.deleteRoom(room)
	log.Printf("rooms: disbanded %q (%s)", room.Name, room.ID)
	return nil
}

// SetAdmin grants or revokes room-admin status. Owner-only.
func (m *Manager) SetAdmin(actingID string, msg protocol.RoomSetAdminMsg) error {
	room, ok := m.store.Rooms[msg.RoomID]
	if !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if actingID != room.OwnerID {
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "only the owner may manage admins"}
	}
	if !room.HasMember(msg.TargetID) || msg.TargetID == room.OwnerID {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "not an eligible member"}
	}

	if msg.Admin {
		if !room.HasAdmin(msg.TargetID) {
			room.AdminIDs = append(room.AdminIDs, msg.TargetID)
		}
	} else {
		kept := room.AdminIDs[:0]
		for _, id := range room.AdminIDs {
			if id != msg.TargetID {
				kept = append(kept, id)
			}
		}
		room.AdminIDs = kept
	}
	m.store.SaveRooms()
	m.broadcastRoom(room)
	return nil
}

// UpdateSettings applies a rename and/or settings change. Owner/admin-gated;
// profane names are rejected like at creation.
func (m *Manager) UpdateSettings(actingID string, msg protocol.RoomUpdateSettingsMsg) error {
	room, err := m.managedRoom(actingID, msg.RoomID)
	if err != nil {
		return err
	}
	if msg.Name != "" {
		if guard.ContainsProfanity(msg.Name) {
			return &guard.Rejection{Kind: protocol.ErrKindValidation, Message: "room name contains blocked words"}
		}
		room.Name = msg.Name
	}
	if msg.Settings != nil {
		room.Settings = *msg.Settings
	}
	m.store.SaveRooms()
	m.broadcastRoom(room)
	return nil
}

// UpdateAnnouncement replaces the room announcement. Owner/admin-gated.
func (m *Manager) UpdateAnnouncement(actingID string, msg protocol.RoomUpdateAnnouncementMsg) error {
	room, err := m.managedRoom(actingID, msg.RoomID)
	if err != nil {
		return err
	}
	room.Announcement = msg.Announcement
	m.store.SaveRooms()
	m.broadcastRoom(room)
	m.router.AppendRoomSystem(room.ID, "announcement updated")
	return nil
}

// UpdateAvatar replaces the room avatar reference. Owner/admin-gated.
func (m *Manager) UpdateAvatar(actingID string, msg protocol.RoomUpdateAvatarMsg) error {
	room, err := m.managedRoom(actingID, msg.RoomID)
	if err != nil {
		return err
	}
	room.AvatarRef = msg.AvatarRef
	m.store.SaveRooms()
	m.broadcastRoom(room)
	return nil
}

// RoomsFor returns every room the identity belongs to, for the post-auth
// snapshot.
func (m *Manager) RoomsFor(id string) []*models.Room {
	out := []*models.Room{}
	for _, room := range m.store.Rooms {
		if room.HasMember(id) {
			out = append(out, room)
		}
	}
	return out
}

// PurgeIdentity removes a deleted identity from every room. An owned room
// passes to its first remaining member, or is deleted outright when empty.
func (m *Manager) PurgeIdentity(id string) {
	for _, room := range m.store.Rooms {
		if !room.HasMember(id) {
			continue
		}
		room.RemoveMember(id)
		m.sessions.LeaveRoom(id, room.ID)
		if room.OwnerID == id {
			if len(room.MemberIDs) == 0 {
				m.deleteRoom(room)
				continue
			}
			room.OwnerID = room.MemberIDs[0]
			log.Printf("rooms: ownership of %s passed to %s", room.ID, room.OwnerID)
		}
		m.store.SaveRooms()
		m.sessions.SendRoom(room.ID, protocol.TypeRoomMemberRemoved, protocol.RoomMemberRemovedMsg{RoomID: room.ID, IdentityID: id}, "")
		m.broadcastRoom(room)
	}
}

func (m *Manager) deleteRoom(room *models.Room) {
	delete(m.store.Rooms, room.ID)
	m.store.SaveRooms()
	delete(m.store.Messages, models.RoomKey(room.ID))
	m.store.SaveMessages()
	m.sessions.DropRoom(room.ID)
}

func (m *Manager) managedRoom(actingID, roomID string) (*models.Room, error) {
	room, ok := m.store.Rooms[roomID]
	if !ok {
		return nil, &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if !m.canManage(actingID, room) {
		return nil, &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "owner or admin required"}
	}
	return room, nil
}

func (m *Manager) canManage(id string, room *models.Room) bool {
	return id == room.OwnerID || room.HasAdmin(id) || m.guard.HasPermission(id, models.PermManageRooms)
}

func (m *Manager) broadcastRoom(room *models.Room) {
	m.sessions.SendRoom(room.ID, protocol.TypeRoomUpdated, protocol.RoomEventMsg{Room: room}, "")
}

func (m *Manager) displayName(id string) string {
	if u, ok := m.store.Users[id]; ok {
		return u.DisplayName
	}
	return "someone"
}

func joinLine(names []string) string {
	line := names[0]
	for _, n := range names[1:] {
		line += ", " + n
	}
	return line + " joined the room"
}
