package models

import "time"

// RoomSettings holds owner-tunable room behavior.
type RoomSettings struct {
	AllowMemberInvite bool `json:"allow_member_invite"`
}

// Room is a named group conversation. The owner is always a member and cannot
// be removed by kick or leave; disband is the only owner exit.
type Room struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	OwnerID      string       `json:"owner_id"`
	AdminIDs     []string     `json:"admin_ids"`
	MemberIDs    []string     `json:"member_ids"`
	Announcement string       `json:"announcement,omitempty"`
	AvatarRef    string       `json:"avatar_ref,omitempty"`
	Settings     RoomSettings `json:"settings"`
	CreatedAt    time.Time    `json:"created_at"`
}

// HasMember reports whether id is in the member set.
func (r *Room) HasMember(id string) bool {
	for _, m := range r.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// HasAdmin reports whether id is a room admin.
func (r *Room) HasAdmin(id string) bool {
	for _, a := range r.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// RemoveMember drops id from both the member and admin sets.
func (r *Room) RemoveMember(id string) {
	r.MemberIDs = removeString(r.MemberIDs, id)
	r.AdminIDs = removeString(r.AdminIDs, id)
}

func removeString(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
