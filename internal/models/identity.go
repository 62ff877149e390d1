package models

import "time"

// Identity is a registered account, distinct from any live connection.
// Persisted as-is; clients only ever see the projection types below, so the
// credential hash never crosses the wire.
type Identity struct {
	ID           string    `json:"id"`
	Handle       string    `json:"handle"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	AvatarRef    string    `json:"avatar_ref,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicIdentity is the view of an identity shared with other clients.
type PublicIdentity struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Role        string `json:"role"`
	RoleInfo    Role   `json:"role_info"`
}

// FriendRequest is a pending/accepted/rejected contact request. At most one
// pending request exists per ordered (from, to) pair.
type FriendRequest struct {
	ID        string    `json:"id"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Friend request statuses.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)
