// Package chat routes direct and room messages through the moderation
// pipeline, persists them to the conversation logs and fans them out to
// bound sessions. The durable log doubles as the offline mailbox: an
// undelivered message simply waits in the log for the next history fetch.
package chat

import (
	"time"

	"github.com/google/uuid"

	"lanchat/internal/guard"
	"lanchat/internal/models"
	"lanchat/internal/observability"
	"lanchat/internal/protocol"
	"lanchat/internal/session"
	"lanchat/internal/store"
)

// Router delivers and persists conversation traffic.
type Router struct {
	store    *store.Store
	sessions *session.Registry
	guard    *guard.Guard
	now      func() time.Time
}

func NewRouter(st *store.Store, sessions *session.Registry, g *guard.Guard) *Router {
	return &Router{store: st, sessions: sessions, guard: g, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (r *Router) SetClock(now func() time.Time) {
	r.now = now
}

// SendDirect runs the private-message pipeline: mute check, recipient
// existence, first-contact gate, profanity redaction, persist, deliver.
// The sender always receives an echo with the delivery status annotated.
func (r *Router) SendDirect(senderID string, msg protocol.SendDirectMsg) error {
	if rec := r.guard.CheckMute(senderID); rec != nil {
		observability.IncRejection(protocol.ErrKindMute)
		return r.guard.MuteRejection(rec)
	}
	if _, ok := r.store.Users[msg.RecipientID]; !ok {
		observability.IncRejection(protocol.ErrKindNotFound)
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown recipient"}
	}
	allowed, reason, _ := r.guard.CanMessage(senderID, msg.RecipientID)
	if !allowed {
		observability.IncRejection(protocol.ErrKindThrottle)
		return &guard.Rejection{Kind: protocol.ErrKindThrottle, Message: reason}
	}

	payload := msg.Payload
	if msg.Kind == models.KindText {
		_, payload = guard.FilterText(payload)
	}

	m := &models.Message{
		ID:           uuid.NewString(),
		Conversation: models.DirectKey(senderID, msg.RecipientID),
		SenderID:     senderID,
		Kind:         msg.Kind,
		Payload:      payload,
		Filename:     msg.Filename,
		Filesize:     msg.Filesize,
		ReplyTo:      msg.ReplyTo,
		Status:       models.StatusSent,
		CreatedAt:    r.now(),
	}
	if r.sessions.Online(msg.RecipientID) {
		m.Status = models.StatusDelivered
	}

	r.store.Messages[m.Conversation] = append(r.store.Messages[m.Conversation], m)
	r.store.SaveMessages()

	r.sessions.Send(msg.RecipientID, protocol.TypeMessageDelivered, protocol.MessageEventMsg{Message: m})
	r.sessions.Send(senderID, protocol.TypeMessageAccepted, protocol.MessageEventMsg{Message: m})

	observability.IncMessage("direct")
	return nil
}

// SendRoom persists one message to the room log and fans it out to every
// bound member. Requires sender membership.
func (r *Router) SendRoom(senderID string, msg protocol.SendRoomMsg) error {
	if rec := r.guard.CheckMute(senderID); rec != nil {
		observability.IncRejection(protocol.ErrKindMute)
		return r.guard.MuteRejection(rec)
	}
	room, ok := r.store.Rooms[msg.RoomID]
	if !ok {
		observability.IncRejection(protocol.ErrKindNotFound)
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown room"}
	}
	if !room.HasMember(senderID) {
		observability.IncRejection(protocol.ErrKindPermission)
		return &guard.Rejection{Kind: protocol.ErrKindPermission, Message: "not a room member"}
	}

	payload := msg.Payload
	if msg.Kind == models.KindText {
		_, payload = guard.FilterText(payload)
	}

	m := &models.Message{
		ID:           uuid.NewString(),
		Conversation: models.RoomKey(room.ID),
		SenderID:     senderID,
		Kind:         msg.Kind,
		Payload:      payload,
		Filename:     msg.Filename,
		Filesize:     msg.Filesize,
		ReplyTo:      msg.ReplyTo,
		Status:       models.StatusDelivered,
		CreatedAt:    r.now(),
	}

	r.store.Messages[m.Conversation] = append(r.store.Messages[m.Conversation], m)
	r.store.SaveMessages()

	r.sessions.SendRoom(room.ID, protocol.TypeMessageDelivered, protocol.MessageEventMsg{Message: m}, senderID)
	r.sessions.Send(senderID, protocol.TypeMessageAccepted, protocol.MessageEventMsg{Message: m})

	observability.IncMessage("room")
	return nil
}

// React toggles identityID's membership in the message's reaction set for
// one emoji and broadcasts the updated map to everyone who can see the
// message.
func (r *Router) React(identityID string, msg protocol.ReactMsg) error {
	key, ok := r.conversationKey(identityID, msg.Conversation)
	if !ok {
		observability.IncRejection(protocol.ErrKindNotFound)
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown conversation"}
	}
	m := r.store.FindMessage(key, msg.MessageID)
	if m == nil {
		observability.IncRejection(protocol.ErrKindNotFound)
		return &guard.Rejection{Kind: protocol.ErrKindNotFound, Message: "unknown message"}
	}

	if m.Reactions == nil {
		m.Reactions = map[string][]string{}
	}
	ids := m.Reactions[msg.Emoji]
	toggledOff := false
	for i, id := range ids {
		if id == identityID {
			ids = append(ids[:i], ids[i+1:]...)
			toggledOff = true
			break
		}
	}
	if toggledOff {
		if len(ids) == 0 {
			delete(m.Reactions, msg.Emoji)
		} else {
			m.Reactions[msg.Emoji] = ids
		}
	} else {
		m.Reactions[msg.Emoji] = append(ids, identityID)
	}
	r.store.SaveMessages()

	event := protocol.ReactionsChangedMsg{
		MessageID: m.ID,
		Reactions: m.Reactions,
		ReactedBy: identityID,
		Emoji:     msg.Emoji,
	}
	if msg.Conversation.Kind == protocol.SelectorRoom {
		r.sessions.SendRoom(msg.Conversation.TargetID, protocol.TypeReactionsChanged, event, "")
	} else if a, b, ok := models.DirectPeers(key); ok {
		// The persisted key names both peers; trust it over the selector.
		r.sessions.Send(a, protocol.TypeReactionsChanged, event)
		r.sessions.Send(b, protocol.TypeReactionsChanged, event)
	}
	return nil
}

// Typing relays a typing signal to the recipient if bound. Fire-and-forget:
// no persistence, no error on a missing or offline recipient.
func (r *Router) Typing(senderID, recipientID string) {
	r.sessions.Send(recipientID, protocol.TypeTypingRelay, protocol.TypingRelayMsg{From: senderID})
}

// History returns the full persisted log for a conversation the caller has
// standing in. A conversation the caller cannot see yields an empty
// sequence, not an error.
func (r *Router) History(identityID string, sel protocol.ConversationSelector) protocol.HistoryMsg {
	key, ok := r.conversationKey(identityID, sel)
	if !ok {
		return protocol.HistoryMsg{ConversationID: "", Messages: []*models.Message{}}
	}
	messages := r.store.Messages[key]
	if messages == nil {
		messages = []*models.Message{}
	}
	return protocol.HistoryMsg{ConversationID: key, Messages: messages}
}

// AppendRoomSystem appends a system line to the room log and fans it out.
func (r *Router) AppendRoomSystem(roomID, text string) {
	m := &models.Message{
		ID:           uuid.NewString(),
		Conversation: models.RoomKey(roomID),
		Kind:         models.KindSystem,
		Payload:      text,
		Status:       models.StatusDelivered,
		CreatedAt:    r.now(),
	}
	r.store.Messages[m.Conversation] = append(r.store.Messages[m.Conversation], m)
	r.store.SaveMessages()
	r.sessions.SendRoom(roomID, protocol.TypeMessageDelivered, protocol.MessageEventMsg{Message: m}, "")
}

// conversationKey resolves a selector relative to the caller. Direct keys
// always include the caller, so standing is inherent; room keys require
// membership.
func (r *Router) conversationKey(identityID string, sel protocol.ConversationSelector) (string, bool) {
	switch sel.Kind {
	case protocol.SelectorDirect:
		if sel.TargetID == "" {
			return "", false
		}
		return models.DirectKey(identityID, sel.TargetID), true
	case protocol.SelectorRoom:
		room, ok := r.store.Rooms[sel.TargetID]
		if !ok || !room.HasMember(identityID) {
			return "", false
		}
		return models.RoomKey(room.ID), true
	default:
		return "", false
	}
}
