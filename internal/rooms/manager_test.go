package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lanchat/internal/chat"
	"lanchat/internal/guard"
	"lanchat/internal/models"
	"lanchat/internal/protocol"
	"lanchat/internal/session"
	"lanchat/internal/store"
	"lanchat/internal/telemetry"
)

type sentEvent struct {
	msgType string
	payload any
}

type fakeConn struct {
	events []sentEvent
}

func (c *fakeConn) Send(msgType string, payload any) error {
	c.events = append(c.events, sentEvent{msgType, payload})
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) has(msgType string) bool {
	for _, e := range c.events {
		if e.msgType == msgType {
			return true
		}
	}
	return false
}

type fixture struct {
	store    *store.Store
	sessions *session.Registry
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewRegistry(st)
	g := guard.New(st, sessions, telemetry.NewAuditEmitter(nil, "", "", ""))
	router := chat.NewRouter(st, sessions, g)
	return &fixture{
		store:    st,
		sessions: sessions,
		manager:  NewManager(st, sessions, g, router),
	}
}

func (f *fixture) addUser(id, role string) {
	f.store.Users[id] = &models.Identity{ID: id, Handle: id, DisplayName: id, Role: role}
}

func (f *fixture) connect(t *testing.T, id string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	f.sessions.Bind(conn, id)
	conn.events = nil
	return conn
}

func TestCreateIncludesOwner(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("b", models.RoleUser)
	ownerConn := f.connect(t, "owner")
	bobConn := f.connect(t, "b")

	room, err := f.manager.Create("owner", protocol.RoomCreateMsg{Name: "general", MemberIDs: []string{"b", "ghost", "b"}})
	require.NoError(t, err)
	require.Equal(t, "owner", room.OwnerID)
	require.ElementsMatch(t, []string{"owner", "b"}, room.MemberIDs, "owner always included, unknowns and duplicates dropped")
	require.True(t, ownerConn.has(protocol.TypeRoomCreated))
	require.True(t, bobConn.has(protocol.TypeRoomCreated))

	// Connected members are in the fan-out set immediately.
	require.Equal(t, 2, f.sessions.SendRoom(room.ID, protocol.TypePong, protocol.PongMsg{}, ""))
}

func TestCreateRejectsProfaneName(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)

	_, err := f.manager.Create("owner", protocol.RoomCreateMsg{Name: "shit posting"})

	var rej *guard.Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, protocol.ErrKindValidation, rej.Kind)
	require.Empty(t, f.store.Rooms)
}

func TestInviteMemberGating(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.addUser("new", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
		Settings:  models.RoomSettings{AllowMemberInvite: false},
	}

	_, err := f.manager.Invite("member", protocol.RoomInviteMsg{RoomID: "r1", TargetIDs: []string{"new"}})
	var rej *guard.Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, protocol.ErrKindPermission, rej.Kind)

	count, err := f.manager.Invite("owner", protocol.RoomInviteMsg{RoomID: "r1", TargetIDs: []string{"new"}})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.True(t, f.store.Rooms["r1"].HasMember("new"))
}

func TestInviteSkipsExistingMembers(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
		Settings:  models.RoomSettings{AllowMemberInvite: true},
	}

	count, err := f.manager.Invite("owner", protocol.RoomInviteMsg{RoomID: "r1", TargetIDs: []string{"member", "ghost"}})
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestInviteAppendsSystemMessage(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("new", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner"},
		Settings:  models.RoomSettings{AllowMemberInvite: true},
	}

	_, err := f.manager.Invite("owner", protocol.RoomInviteMsg{RoomID: "r1", TargetIDs: []string{"new"}})
	require.NoError(t, err)

	log := f.store.Messages[models.RoomKey("r1")]
	require.Len(t, log, 1)
	require.Equal(t, models.KindSystem, log[0].Kind)
	require.Contains(t, log[0].Payload, "new")
}

func TestInviteNotifiesConnectedTarget(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("new", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner"},
		Settings:  models.RoomSettings{AllowMemberInvite: true},
	}
	newConn := f.connect(t, "new")

	count, err := f.manager.Invite("owner", protocol.RoomInviteMsg{RoomID: "r1", TargetIDs: []string{"new"}})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.True(t, newConn.has(protocol.TypeRoomJoined))
	for _, e := range newConn.events {
		if e.msgType == protocol.TypeRoomJoined {
			event := e.payload.(protocol.RoomEventMsg)
			require.True(t, event.Room.HasMember("new"), "membership is committed before the notification")
		}
	}

	// The invitee is in the fan-out set immediately.
	require.Equal(t, 1, f.sessions.SendRoom("r1", protocol.TypePong, protocol.PongMsg{}, "owner"))
}

func TestKickRules(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.addUser("victim", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member", "victim"},
	}
	victimConn := f.connect(t, "victim")

	var rej *guard.Rejection
	require.ErrorAs(t, f.manager.Kick("member", protocol.RoomKickMsg{RoomID: "r1", TargetID: "victim"}), &rej)
	require.Equal(t, protocol.ErrKindPermission, rej.Kind)

	require.ErrorAs(t, f.manager.Kick("owner", protocol.RoomKickMsg{RoomID: "r1", TargetID: "owner"}), &rej)
	require.Equal(t, protocol.ErrKindPermission, rej.Kind, "the owner is never a kick target")

	require.NoError(t, f.manager.Kick("owner", protocol.RoomKickMsg{RoomID: "r1", TargetID: "victim"}))
	require.False(t, f.store.Rooms["r1"].HasMember("victim"))
	require.True(t, victimConn.has(protocol.TypeRoomKicked))
}

func TestKickByGlobalRoomManager(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("mod", models.RoleModerator)
	f.addUser("victim", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "victim"},
	}

	require.NoError(t, f.manager.Kick("mod", protocol.RoomKickMsg{RoomID: "r1", TargetID: "victim"}))
}

func TestLeaveOwnerRefused(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
	}

	var rej *guard.Rejection
	require.ErrorAs(t, f.manager.Leave("owner", "r1"), &rej)
	require.Equal(t, protocol.ErrKindPermission, rej.Kind)

	require.NoError(t, f.manager.Leave("member", "r1"))
	require.False(t, f.store.Rooms["r1"].HasMember("member"))
}

func TestDisbandDeletesRoomAndLog(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
	}
	f.store.Messages[models.RoomKey("r1")] = []*models.Message{{ID: "m1"}}
	memberConn := f.connect(t, "member")

	var rej *guard.Rejection
	require.ErrorAs(t, f.manager.Disband("member", "r1"), &rej)
	require.Equal(t, protocol.ErrKindPermission, rej.Kind)

	require.NoError(t, f.manager.Disband("owner", "r1"))
	require.NotContains(t, f.store.Rooms, "r1")
	require.NotContains(t, f.store.Messages, models.RoomKey("r1"), "room log is hard-deleted")
	require.True(t, memberConn.has(protocol.TypeRoomDisbanded))
}

func TestSetAdminAndManagedUpdates(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
	}
	memberConn := f.connect(t, "member")

	var rej *guard.Rejection
	require.ErrorAs(t, f.manager.SetAdmin("member", protocol.RoomSetAdminMsg{RoomID: "r1", TargetID: "member", Admin: true}), &rej)

	require.NoError(t, f.manager.SetAdmin("owner", protocol.RoomSetAdminMsg{RoomID: "r1", TargetID: "member", Admin: true}))
	require.True(t, f.store.Rooms["r1"].HasAdmin("member"))
	require.True(t, memberConn.has(protocol.TypeRoomUpdated))

	// Fresh admins may mutate the room.
	require.NoError(t, f.manager.UpdateAnnouncement("member", protocol.RoomUpdateAnnouncementMsg{RoomID: "r1", Announcement: "welcome"}))
	require.Equal(t, "welcome", f.store.Rooms["r1"].Announcement)

	require.NoError(t, f.manager.SetAdmin("owner", protocol.RoomSetAdminMsg{RoomID: "r1", TargetID: "member", Admin: false}))
	require.False(t, f.store.Rooms["r1"].HasAdmin("member"))
}

func TestUpdateSettingsRenameValidation(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{ID: "r1", Name: "general", OwnerID: "owner", MemberIDs: []string{"owner"}}

	var rej *guard.Rejection
	require.ErrorAs(t, f.manager.UpdateSettings("owner", protocol.RoomUpdateSettingsMsg{RoomID: "r1", Name: "shitshow"}), &rej)
	require.Equal(t, protocol.ErrKindValidation, rej.Kind)

	settings := &models.RoomSettings{AllowMemberInvite: false}
	require.NoError(t, f.manager.UpdateSettings("owner", protocol.RoomUpdateSettingsMsg{RoomID: "r1", Name: "lounge", Settings: settings}))
	require.Equal(t, "lounge", f.store.Rooms["r1"].Name)
	require.False(t, f.store.Rooms["r1"].Settings.AllowMemberInvite)
}

func TestPurgeIdentityOwnerHandoff(t *testing.T) {
	f := newFixture(t)
	f.addUser("owner", models.RoleUser)
	f.addUser("member", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{
		ID: "r1", Name: "general", OwnerID: "owner",
		MemberIDs: []string{"owner", "member"},
	}
	f.store.Rooms["r2"] = &models.Room{
		ID: "r2", Name: "solo", OwnerID: "owner",
		MemberIDs: []string{"owner"},
	}
	f.store.Messages[models.RoomKey("r2")] = []*models.Message{{ID: "m1"}}

	f.manager.PurgeIdentity("owner")

	require.Equal(t, "member", f.store.Rooms["r1"].OwnerID, "ownership passes to the first remaining member")
	require.NotContains(t, f.store.Rooms, "r2", "an emptied room is deleted")
	require.NotContains(t, f.store.Messages, models.RoomKey("r2"))
}

func TestRoomsFor(t *testing.T) {
	f := newFixture(t)
	f.addUser("a", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{ID: "r1", OwnerID: "a", MemberIDs: []string{"a"}}
	f.store.Rooms["r2"] = &models.Room{ID: "r2", OwnerID: "b", MemberIDs: []string{"b"}}

	list := f.manager.RoomsFor("a")
	require.Len(t, list, 1)
	require.Equal(t, "r1", list[0].ID)
}
