package models

import (
	"sort"
	"strings"
	"time"
)

// Message kinds.
const (
	KindText   = "text"
	KindImage  = "image"
	KindVideo  = "video"
	KindFile   = "file"
	KindVoice  = "voice"
	KindSystem = "system"
)

// Message delivery statuses annotated on the sender echo.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
)

// Message is one entry in a conversation log. Immutable once appended except
// for Reactions.
type Message struct {
	ID           string              `json:"id"`
	Conversation string              `json:"conversation"`
	SenderID     string              `json:"sender_id,omitempty"`
	Kind         string              `json:"kind"`
	Payload      string              `json:"payload"`
	Filename     string              `json:"filename,omitempty"`
	Filesize     int64               `json:"filesize,omitempty"`
	ReplyTo      string              `json:"reply_to,omitempty"`
	Reactions    map[string][]string `json:"reactions,omitempty"`
	Status       string              `json:"status,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// DirectKey returns the canonical conversation key for two identities: the
// sorted pair joined with an underscore, so both sides resolve the same log.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}

// RoomKey returns the conversation key for a room log.
func RoomKey(roomID string) string {
	return "room_" + roomID
}

// DirectPeers splits a direct conversation key back into its two identity ids,
// sorted. Returns false for room keys.
func DirectPeers(key string) (string, string, bool) {
	if strings.HasPrefix(key, "room_") {
		return "", "", false
	}
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	pair := []string{parts[0], parts[1]}
	sort.Strings(pair)
	return pair[0], pair[1], true
}
