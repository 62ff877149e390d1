// Package protocol defines the WebSocket event types and payload structures
// exchanged between the server and browser clients. Every event is a JSON
// object with a "type" discriminator; inbound payloads are decoded into one
// concrete struct per type so handlers never touch raw maps.
package protocol

import (
	"encoding/json"
	"fmt"

	"lanchat/internal/models"
)

// Client -> Server event types.
const (
	TypeRegister               = "register"
	TypeAuthenticate           = "authenticate"
	TypeSessionRestore         = "session_restore"
	TypePresenceList           = "presence_list"
	TypeFriendsGet             = "friends_get"
	TypeSendDirect             = "send_direct"
	TypeSendRoom               = "send_room"
	TypeFetchHistory           = "fetch_history"
	TypeReact                  = "react"
	TypeTyping                 = "typing"
	TypeFriendRequest          = "friend_request"
	TypeFriendAccept           = "friend_accept"
	TypeFriendReject           = "friend_reject"
	TypeFriendRemove           = "friend_remove"
	TypeRoomCreate             = "room_create"
	TypeRoomInvite             = "room_invite"
	TypeRoomKick               = "room_kick"
	TypeRoomLeave              = "room_leave"
	TypeRoomDisband            = "room_disband"
	TypeRoomSetAdmin           = "room_set_admin"
	TypeRoomUpdateSettings     = "room_update_settings"
	TypeRoomUpdateAnnouncement = "room_update_announcement"
	TypeRoomUpdateAvatar       = "room_update_avatar"
	TypeUpdateProfile          = "update_profile"
	TypeChangePassword         = "change_password"
	TypeReport                 = "report"
	TypePing                   = "ping"
)

// Server -> Client event types.
const (
	TypeRegisterOK             = "register_ok"
	TypeRegisterFail           = "register_fail"
	TypeAuthOK                 = "auth_ok"
	TypeAuthFail               = "auth_fail"
	TypeSessionRestored        = "session_restored"
	TypeSessionRestoreFailed   = "session_restore_failed"
	TypeForcedLogout           = "forced_logout"
	TypePresenceSnapshot       = "presence_snapshot"
	TypePresenceChanged        = "presence_changed"
	TypeRoomsSnapshot          = "rooms_snapshot"
	TypeFriendRequestsSnapshot = "friend_requests_snapshot"
	TypeFriendsList            = "friends_list"
	TypeMessageAccepted        = "message_accepted"
	TypeMessageDelivered       = "message_delivered"
	TypeHistory                = "history"
	TypeReactionsChanged       = "reactions_changed"
	TypeTypingRelay            = "typing"
	TypeFriendRequestReceived  = "friend_request_received"
	TypeFriendRequestSent      = "friend_request_sent"
	TypeFriendshipEstablished  = "friendship_established"
	TypeFriendRequestRejected  = "friend_request_rejected"
	TypeFriendRemoved          = "friend_removed"
	TypeRoomCreated            = "room_created"
	TypeRoomJoined             = "room_joined"
	TypeRoomUpdated            = "room_updated"
	TypeRoomMemberRemoved      = "room_member_removed"
	TypeRoomKicked             = "room_kicked"
	TypeRoomLeft               = "room_left"
	TypeRoomDisbanded          = "room_disbanded"
	TypeRoomInviteResult       = "room_invite_result"
	TypeIdentityUpdated        = "identity_updated"
	TypeProfileUpdated         = "profile_updated"
	TypePasswordChanged        = "password_changed"
	TypeWarned                 = "warned"
	TypeMuted                  = "muted"
	TypeUnmuted                = "unmuted"
	TypeRoleChanged            = "role_changed"
	TypeReportOK               = "report_ok"
	TypeReportReceived         = "report_received"
	TypeMessageError           = "message_error"
	TypePong                   = "pong"
)

// Rejection kinds carried by message_error events.
const (
	ErrKindMute       = "mute"
	ErrKindBan        = "ban"
	ErrKindPermission = "permission"
	ErrKindNotFound   = "notFound"
	ErrKindValidation = "validation"
	ErrKindConflict   = "conflict"
	ErrKindThrottle   = "throttle"
)

// Envelope captures the type discriminator and the raw JSON for deferred
// decoding into the concrete payload struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the full raw bytes and extracts only the "type" field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: parse envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ConversationSelector names a conversation: either the direct log with a
// peer or a room log.
type ConversationSelector struct {
	Kind     string `json:"kind"`
	TargetID string `json:"target_id"`
}

// Selector kinds.
const (
	SelectorDirect = "direct"
	SelectorRoom   = "room"
)

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

type RegisterMsg struct {
	Handle      string `json:"handle"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	AvatarRef   string `json:"avatar_ref"`
}

type AuthenticateMsg struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// SessionRestoreMsg re-binds a known identity after a reconnect without
// re-entering credentials.
type SessionRestoreMsg struct {
	IdentityID string `json:"identity_id"`
	Handle     string `json:"handle"`
}

type PresenceListMsg struct{}

type FriendsGetMsg struct{}

type SendDirectMsg struct {
	RecipientID string `json:"recipient_id"`
	Kind        string `json:"kind"`
	Payload     string `json:"payload"`
	Filename    string `json:"filename,omitempty"`
	Filesize    int64  `json:"filesize,omitempty"`
	ReplyTo     string `json:"reply_to,omitempty"`
}

type SendRoomMsg struct {
	RoomID   string `json:"room_id"`
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
	Filename string `json:"filename,omitempty"`
	Filesize int64  `json:"filesize,omitempty"`
	ReplyTo  string `json:"reply_to,omitempty"`
}

type FetchHistoryMsg struct {
	Conversation ConversationSelector `json:"conversation"`
}

type ReactMsg struct {
	MessageID    string               `json:"message_id"`
	Emoji        string               `json:"emoji"`
	Conversation ConversationSelector `json:"conversation"`
}

type TypingMsg struct {
	RecipientID string `json:"recipient_id"`
}

type FriendRequestMsg struct {
	TargetID string `json:"target_id"`
}

type FriendAcceptMsg struct {
	RequestID string `json:"request_id"`
}

type FriendRejectMsg struct {
	RequestID string `json:"request_id"`
}

type FriendRemoveMsg struct {
	TargetID string `json:"target_id"`
}

type RoomCreateMsg struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

type RoomInviteMsg struct {
	RoomID    string   `json:"room_id"`
	TargetIDs []string `json:"target_ids"`
}

type RoomKickMsg struct {
	RoomID   string `json:"room_id"`
	TargetID string `json:"target_id"`
}

type RoomLeaveMsg struct {
	RoomID string `json:"room_id"`
}

type RoomDisbandMsg struct {
	RoomID string `json:"room_id"`
}

type RoomSetAdminMsg struct {
	RoomID   string `json:"room_id"`
	TargetID string `json:"target_id"`
	Admin    bool   `json:"admin"`
}

type RoomUpdateSettingsMsg struct {
	RoomID   string               `json:"room_id"`
	Name     string               `json:"name,omitempty"`
	Settings *models.RoomSettings `json:"settings,omitempty"`
}

type RoomUpdateAnnouncementMsg struct {
	RoomID       string `json:"room_id"`
	Announcement string `json:"announcement"`
}

type RoomUpdateAvatarMsg struct {
	RoomID    string `json:"room_id"`
	AvatarRef string `json:"avatar_ref"`
}

type UpdateProfileMsg struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarRef   *string `json:"avatar_ref,omitempty"`
}

type ChangePasswordMsg struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type ReportMsg struct {
	TargetID  string `json:"target_id"`
	Reason    string `json:"reason"`
	MessageID string `json:"message_id,omitempty"`
}

type PingMsg struct{}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// PrivateIdentity is the owner's own view, including permissions and friends.
type PrivateIdentity struct {
	models.PublicIdentity
	Friends []string `json:"friends"`
}

type AuthOKMsg struct {
	Identity PrivateIdentity `json:"identity"`
}

type AuthFailMsg struct {
	Reason string `json:"reason"`
}

type SessionRestoredMsg struct {
	Identity PrivateIdentity `json:"identity"`
}

type ForcedLogoutMsg struct {
	Reason string `json:"reason"`
}

type PresenceEntry struct {
	models.PublicIdentity
	State    string `json:"state"`
	IsFriend bool   `json:"is_friend"`
}

type PresenceSnapshotMsg struct {
	Identities []PresenceEntry `json:"identities"`
}

type PresenceChangedMsg struct {
	Identity models.PublicIdentity `json:"identity"`
	State    string                `json:"state"`
}

type RoomsSnapshotMsg struct {
	Rooms []*models.Room `json:"rooms"`
}

type PendingRequest struct {
	models.FriendRequest
	Sender models.PublicIdentity `json:"sender"`
}

type FriendRequestsSnapshotMsg struct {
	Requests []PendingRequest `json:"requests"`
}

type FriendEntry struct {
	models.PublicIdentity
	Online bool `json:"online"`
}

type FriendsListMsg struct {
	Friends []FriendEntry `json:"friends"`
}

type MessageEventMsg struct {
	Message *models.Message `json:"message"`
}

type HistoryMsg struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []*models.Message `json:"messages"`
}

type ReactionsChangedMsg struct {
	MessageID string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
	ReactedBy string              `json:"reacted_by"`
	Emoji     string              `json:"emoji"`
}

type TypingRelayMsg struct {
	From string `json:"from"`
}

type FriendRequestReceivedMsg struct {
	PendingRequest
}

type FriendRequestSentMsg struct {
	TargetID string `json:"target_id"`
}

type FriendshipEstablishedMsg struct {
	Friend models.PublicIdentity `json:"friend"`
}

type FriendRequestRejectedMsg struct {
	RequestID string `json:"request_id"`
}

type FriendRemovedMsg struct {
	IdentityID string `json:"identity_id"`
}

type RoomEventMsg struct {
	Room *models.Room `json:"room"`
}

type RoomMemberRemovedMsg struct {
	RoomID     string `json:"room_id"`
	IdentityID string `json:"identity_id"`
}

type RoomKickedMsg struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}

type RoomLeftMsg struct {
	RoomID string `json:"room_id"`
}

type RoomDisbandedMsg struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
}

type RoomInviteResultMsg struct {
	Count int `json:"count"`
}

type IdentityUpdatedMsg struct {
	Identity models.PublicIdentity `json:"identity"`
}

type ProfileUpdatedMsg struct {
	Identity PrivateIdentity `json:"identity"`
}

type PasswordChangedMsg struct{}

type WarnedMsg struct {
	Reason       string `json:"reason"`
	IssuedByName string `json:"issued_by_name,omitempty"`
	WarningCount int    `json:"warning_count"`
}

// MuteDetail is the structured rejection detail for muted senders, so clients
// can render the reason and a precise countdown.
type MuteDetail struct {
	Reason    string `json:"reason"`
	Remaining string `json:"remaining"`
	Permanent bool   `json:"permanent"`
}

type MutedMsg struct {
	MuteDetail
}

type UnmutedMsg struct{}

type RoleChangedMsg struct {
	Role     string      `json:"role"`
	RoleInfo models.Role `json:"role_info"`
}

type ReportOKMsg struct{}

type ReportReceivedMsg struct {
	Report *models.Report `json:"report"`
}

type MessageErrorMsg struct {
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Detail  *MuteDetail `json:"detail,omitempty"`
}

type PongMsg struct{}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// It returns the event type, the decoded payload struct, and an error for
// unknown or server-only types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSessionRestore:
		var m SessionRestoreMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePresenceList:
		msg = PresenceListMsg{}
	case TypeFriendsGet:
		msg = FriendsGetMsg{}
	case TypeSendDirect:
		var m SendDirectMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendRoom:
		var m SendRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFetchHistory:
		var m FetchHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFriendRequest:
		var m FriendRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFriendAccept:
		var m FriendAcceptMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFriendReject:
		var m FriendRejectMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeFriendRemove:
		var m FriendRemoveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomCreate:
		var m RoomCreateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomInvite:
		var m RoomInviteMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomKick:
		var m RoomKickMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomLeave:
		var m RoomLeaveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomDisband:
		var m RoomDisbandMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomSetAdmin:
		var m RoomSetAdminMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomUpdateSettings:
		var m RoomUpdateSettingsMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomUpdateAnnouncement:
		var m RoomUpdateAnnouncementMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomUpdateAvatar:
		var m RoomUpdateAvatarMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeUpdateProfile:
		var m UpdateProfileMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChangePassword:
		var m ChangePasswordMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		msg = PingMsg{}
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes a server event with its type discriminator
// injected under the "type" key.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: payload is not an object: %w", err)
	}
	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal server message: %w", err)
	}
	return out, nil
}
