package models

// Role describes a tier in the role hierarchy and the permissions it grants.
// Operator-defined custom roles share this shape and namespace.
type Role struct {
	Name        string   `json:"name"`
	Level       int      `json:"level"`
	Badge       string   `json:"badge,omitempty"`
	Permissions []string `json:"permissions"`
}

// Built-in role names.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleModerator  = "moderator"
	RoleVIP        = "vip"
	RoleUser       = "user"
)

// Permission names checked by the guard.
const (
	PermAll         = "all"
	PermBan         = "ban"
	PermMute        = "mute"
	PermViewChats   = "view_chats"
	PermViewReports = "view_reports"
	PermManageUsers = "manage_users"
	PermManageRooms = "manage_rooms"
)

// BuiltinRoles is the fixed role hierarchy. The super_admin tier can only be
// held by the persisted bootstrap record; no administrative action assigns it.
var BuiltinRoles = map[string]Role{
	RoleSuperAdmin: {Name: "SuperAdmin", Level: 100, Badge: "owner", Permissions: []string{PermAll}},
	RoleAdmin:      {Name: "Admin", Level: 80, Badge: "admin", Permissions: []string{PermBan, PermMute, PermViewChats, PermManageUsers, PermManageRooms}},
	RoleModerator:  {Name: "Moderator", Level: 50, Badge: "mod", Permissions: []string{PermMute, PermViewReports, PermManageRooms}},
	RoleVIP:        {Name: "VIP", Level: 20, Permissions: []string{}},
	RoleUser:       {Name: "User", Level: 0, Permissions: []string{}},
}
