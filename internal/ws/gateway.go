// Package ws is the event surface: it upgrades client connections, decodes
// inbound events and dispatches them to the domain services. Every mutating
// event runs under one shared mutex, so store, registry and room state see
// strictly serialized operations.
package ws

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"lanchat/internal/chat"
	"lanchat/internal/friends"
	"lanchat/internal/guard"
	"lanchat/internal/identity"
	"lanchat/internal/models"
	"lanchat/internal/observability"
	"lanchat/internal/protocol"
	"lanchat/internal/rooms"
	"lanchat/internal/session"
	"lanchat/internal/store"

	"github.com/google/uuid"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway owns the websocket endpoint and the event dispatch table.
type Gateway struct {
	// stateMu serializes every mutating operation across the gateway and
	// the admin surface. Do not hold it across a blocking read.
	stateMu *sync.Mutex

	store      *store.Store
	sessions   *session.Registry
	identities *identity.Service
	friends    *friends.Service
	guard      *guard.Guard
	router     *chat.Router
	rooms      *rooms.Manager
}

func NewGateway(stateMu *sync.Mutex, st *store.Store, sessions *session.Registry, identities *identity.Service, fr *friends.Service, g *guard.Guard, router *chat.Router, rm *rooms.Manager) *Gateway {
	return &Gateway{
		stateMu:    stateMu,
		store:      st,
		sessions:   sessions,
		identities: identities,
		friends:    fr,
		guard:      g,
		router:     router,
		rooms:      rm,
	}
}

// Handle upgrades the connection and runs its read loop until the peer
// disconnects.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("lanchat/ws").Start(c.Request.Context(), "ws.handshake")
	c.Request = c.Request.WithContext(ctx)

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	span.End()
	if err != nil {
		return
	}

	conn := newConn(sock, observability.IsLoopback(c.Request))
	ip := observability.ClientIPFromRequest(c.Request)
	observability.IncWSActive()
	log.Printf("ws: connected ip=%s", ip)

	defer func() {
		g.stateMu.Lock()
		g.sessions.Unbind(conn)
		g.stateMu.Unlock()
		conn.Close()
		observability.DecWSActive()
		log.Printf("ws: disconnected ip=%s", ip)
	}()

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		g.dispatch(conn, data)
	}
}

func (g *Gateway) dispatch(conn *Conn, data []byte) {
	msgType, payload, err := protocol.ParseClientMessage(data)
	if err != nil {
		g.sendError(conn, &guard.Rejection{Kind: protocol.ErrKindValidation, Message: err.Error()})
		return
	}
	observability.IncWSEvent(msgType)

	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	switch m := payload.(type) {
	case protocol.RegisterMsg:
		g.handleRegister(conn, m)
	case protocol.AuthenticateMsg:
		g.handleAuthenticate(conn, m)
	case protocol.SessionRestoreMsg:
		g.handleSessionRestore(conn, m)
	case protocol.PingMsg:
		_ = conn.Send(protocol.TypePong, protocol.PongMsg{})
	default:
		id, bound := g.sessions.IdentityFor(conn)
		if !bound {
			g.sendError(conn, &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "authenticate first"})
			return
		}
		g.dispatchAuthed(conn, id, payload)
	}
}

func (g *Gateway) dispatchAuthed(conn *Conn, id string, payload interface{}) {
	var err error
	switch m := payload.(type) {
	case protocol.PresenceListMsg:
		_ = conn.Send(protocol.TypePresenceSnapshot, g.presenceSnapshot(id))
	case protocol.FriendsGetMsg:
		_ = conn.Send(protocol.TypeFriendsList, protocol.FriendsListMsg{Friends: g.friends.ListFor(id)})
	case protocol.SendDirectMsg:
		err = g.router.SendDirect(id, m)
	case protocol.SendRoomMsg:
		err = g.router.SendRoom(id, m)
	case protocol.FetchHistoryMsg:
		_ = conn.Send(protocol.TypeHistory, g.router.History(id, m.Conversation))
	case protocol.ReactMsg:
		err = g.router.React(id, m)
	case protocol.TypingMsg:
		g.router.Typing(id, m.RecipientID)
	case protocol.FriendRequestMsg:
		err = g.friends.Request(id, m.TargetID)
	case protocol.FriendAcceptMsg:
		err = g.friends.Accept(id, m.RequestID)
	case protocol.FriendRejectMsg:
		err = g.friends.Reject(id, m.RequestID)
	case protocol.FriendRemoveMsg:
		err = g.friends.Remove(id, m.TargetID)
	case protocol.RoomCreateMsg:
		_, err = g.rooms.Create(id, m)
	case protocol.RoomInviteMsg:
		var count int
		count, err = g.rooms.Invite(id, m)
		if err == nil {
			_ = conn.Send(protocol.TypeRoomInviteResult, protocol.RoomInviteResultMsg{Count: count})
		}
	case protocol.RoomKickMsg:
		err = g.rooms.Kick(id, m)
	case protocol.RoomLeaveMsg:
		err = g.rooms.Leave(id, m.RoomID)
	case protocol.RoomDisbandMsg:
		err = g.rooms.Disband(id, m.RoomID)
	case protocol.RoomSetAdminMsg:
		err = g.rooms.SetAdmin(id, m)
	case protocol.RoomUpdateSettingsMsg:
		err = g.rooms.UpdateSettings(id, m)
	case protocol.RoomUpdateAnnouncementMsg:
		err = g.rooms.UpdateAnnouncement(id, m)
	case protocol.RoomUpdateAvatarMsg:
		err = g.rooms.UpdateAvatar(id, m)
	case protocol.UpdateProfileMsg:
		g.handleUpdateProfile(conn, id, m)
	case protocol.ChangePasswordMsg:
		if err = g.identities.ChangePassword(id, m.OldPassword, m.NewPassword); err == nil {
			_ = conn.Send(protocol.TypePasswordChanged, protocol.PasswordChangedMsg{})
		}
	case protocol.ReportMsg:
		err = g.handleReport(conn, id, m)
	default:
		err = &guard.Rejection{Kind: protocol.ErrKindValidation, Message: "unsupported event"}
	}
	if err != nil {
		g.sendError(conn, err)
	}
}

func (g *Gateway) handleRegister(conn *Conn, m protocol.RegisterMsg) {
	u, err := g.identities.Register(m.Handle, m.Password, m.DisplayName, m.Bio, m.AvatarRef)
	if err != nil {
		_ = conn.Send(protocol.TypeRegisterFail, protocol.AuthFailMsg{Reason: err.Error()})
		return
	}
	g.sessions.Bind(conn, u.ID)
	_ = conn.Send(protocol.TypeRegisterOK, protocol.AuthOKMsg{Identity: g.identities.PrivateView(u)})
	g.sendSnapshots(conn, u.ID)
}

func (g *Gateway) handleAuthenticate(conn *Conn, m protocol.AuthenticateMsg) {
	u, err := g.identities.Authenticate(m.Handle, m.Password)
	if err != nil {
		_ = conn.Send(protocol.TypeAuthFail, protocol.AuthFailMsg{Reason: err.Error()})
		return
	}
	if ban := g.guard.CheckBan(u.ID); ban != nil {
		_ = conn.Send(protocol.TypeAuthFail, protocol.AuthFailMsg{Reason: "banned: " + ban.Reason})
		return
	}
	if u.Role == models.RoleSuperAdmin && !conn.loopback {
		_ = conn.Send(protocol.TypeAuthFail, protocol.AuthFailMsg{Reason: "this account can only sign in locally"})
		return
	}
	g.sessions.Bind(conn, u.ID)
	_ = conn.Send(protocol.TypeAuthOK, protocol.AuthOKMsg{Identity: g.identities.PrivateView(u)})
	g.sendSnapshots(conn, u.ID)
}

// handleSessionRestore re-binds a known identity after a reconnect. Fails
// closed on an unknown identity, a handle mismatch or an active ban; the
// client must then re-authenticate.
func (g *Gateway) handleSessionRestore(conn *Conn, m protocol.SessionRestoreMsg) {
	u, ok := g.store.Users[m.IdentityID]
	if !ok || u.Handle != m.Handle {
		_ = conn.Send(protocol.TypeSessionRestoreFailed, protocol.AuthFailMsg{Reason: "unknown session"})
		return
	}
	if ban := g.guard.CheckBan(u.ID); ban != nil {
		_ = conn.Send(protocol.TypeSessionRestoreFailed, protocol.AuthFailMsg{Reason: "banned: " + ban.Reason})
		return
	}
	if u.Role == models.RoleSuperAdmin && !conn.loopback {
		_ = conn.Send(protocol.TypeSessionRestoreFailed, protocol.AuthFailMsg{Reason: "this account can only sign in locally"})
		return
	}
	g.sessions.Bind(conn, u.ID)
	_ = conn.Send(protocol.TypeSessionRestored, protocol.SessionRestoredMsg{Identity: g.identities.PrivateView(u)})
	g.sendSnapshots(conn, u.ID)
}

func (g *Gateway) handleUpdateProfile(conn *Conn, id string, m protocol.UpdateProfileMsg) {
	u, err := g.identities.UpdateProfile(id, m.DisplayName, m.Bio, m.AvatarRef)
	if err != nil {
		g.sendError(conn, err)
		return
	}
	_ = conn.Send(protocol.TypeProfileUpdated, protocol.ProfileUpdatedMsg{Identity: g.identities.PrivateView(u)})
	g.sessions.Broadcast(protocol.TypeIdentityUpdated, protocol.IdentityUpdatedMsg{Identity: g.identities.PublicView(u)}, id)
}

func (g *Gateway) handleReport(conn *Conn, reporterID string, m protocol.ReportMsg) error {
	if _, ok := g.store.Users[m.TargetID]; !ok {
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown identity"}
	}
	report := &models.Report{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		TargetID:   m.TargetID,
		Reason:     m.Reason,
		MessageID:  m.MessageID,
		Status:     models.ReportPending,
		CreatedAt:  time.Now(),
	}
	g.store.Reports = append(g.store.Reports, report)
	g.store.SaveReports()

	_ = conn.Send(protocol.TypeReportOK, protocol.ReportOKMsg{})
	for _, id := range g.sessions.OnlineIDs() {
		if id != reporterID && g.guard.HasPermission(id, models.PermViewReports) {
			g.sessions.Send(id, protocol.TypeReportReceived, protocol.ReportReceivedMsg{Report: report})
		}
	}
	return nil
}

// sendSnapshots pushes the post-bind state: who is online, the caller's
// rooms and any pending friend requests. Room fan-out subscriptions are
// already installed by Bind, so nothing sent after this point is missed.
func (g *Gateway) sendSnapshots(conn *Conn, id string) {
	_ = conn.Send(protocol.TypePresenceSnapshot, g.presenceSnapshot(id))
	_ = conn.Send(protocol.TypeRoomsSnapshot, protocol.RoomsSnapshotMsg{Rooms: g.rooms.RoomsFor(id)})
	_ = conn.Send(protocol.TypeFriendRequestsSnapshot, protocol.FriendRequestsSnapshotMsg{Requests: g.friends.PendingFor(id)})
}

func (g *Gateway) presenceSnapshot(forID string) protocol.PresenceSnapshotMsg {
	entries := []protocol.PresenceEntry{}
	for _, id := range g.sessions.OnlineIDs() {
		if id == forID {
			continue
		}
		u, ok := g.store.Users[id]
		if !ok {
			continue
		}
		entries = append(entries, protocol.PresenceEntry{
			PublicIdentity: g.identities.PublicView(u),
			State:          "online",
			IsFriend:       g.isFriend(forID, id),
		})
	}
	return protocol.PresenceSnapshotMsg{Identities: entries}
}

func (g *Gateway) isFriend(a, b string) bool {
	for _, id := range g.store.Friends[a] {
		if id == b {
			return true
		}
	}
	return false
}

func (g *Gateway) sendError(conn *Conn, err error) {
	var rej *guard.Rejection
	if errors.As(err, &rej) {
		_ = conn.Send(protocol.TypeMessageError, protocol.MessageErrorMsg{
			Kind:    rej.Kind,
			Message: rej.Message,
			Detail:  rej.Mute,
		})
		return
	}
	_ = conn.Send(protocol.TypeMessageError, protocol.MessageErrorMsg{
		Kind:    protocol.ErrKindValidation,
		Message: err.Error(),
	})
}
