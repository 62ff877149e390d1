// Package store persists every entity collection as one JSON document on
// disk. Collections are loaded once at startup and rewritten wholesale on
// mutation. The server process is the only writer; a failed write is logged
// and counted, and the in-memory state remains the source of truth for the
// rest of the process lifetime.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"lanchat/internal/models"
	"lanchat/internal/observability"
)

// Collection file names under the data directory.
const (
	usersFile          = "users.json"
	messagesFile       = "messages.json"
	roomsFile          = "rooms.json"
	friendsFile        = "friends.json"
	friendRequestsFile = "friend_requests.json"
	bansFile           = "bans.json"
	customRolesFile    = "custom_roles.json"
	reportsFile        = "reports.json"
	warningsFile       = "warnings.json"
)

// ModState bundles the ban and mute collections, persisted together.
type ModState struct {
	Banned map[string]*models.ModRecord `json:"banned"`
	Muted  map[string]*models.ModRecord `json:"muted"`
}

// Store holds every persisted collection in memory. It does no locking of its
// own: all mutation is serialized by the event gateway (one logical owner).
type Store struct {
	dir string

	Users          map[string]*models.Identity
	Messages       map[string][]*models.Message
	Rooms          map[string]*models.Room
	Friends        map[string][]string
	FriendRequests map[string][]*models.FriendRequest
	Mod            *ModState
	CustomRoles    map[string]models.Role
	Reports        []*models.Report
	Warnings       map[string][]*models.Warning
}

// Open loads all collections from dir, creating it if needed. A missing file
// yields an empty collection; a corrupt file is an error so bad state never
// silently overwrites good data.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	s := &Store{
		dir:            dir,
		Users:          map[string]*models.Identity{},
		Messages:       map[string][]*models.Message{},
		Rooms:          map[string]*models.Room{},
		Friends:        map[string][]string{},
		FriendRequests: map[string][]*models.FriendRequest{},
		Mod:            &ModState{Banned: map[string]*models.ModRecord{}, Muted: map[string]*models.ModRecord{}},
		CustomRoles:    map[string]models.Role{},
		Reports:        []*models.Report{},
		Warnings:       map[string][]*models.Warning{},
	}

	for file, target := range map[string]interface{}{
		usersFile:          &s.Users,
		messagesFile:       &s.Messages,
		roomsFile:          &s.Rooms,
		friendsFile:        &s.Friends,
		friendRequestsFile: &s.FriendRequests,
		bansFile:           s.Mod,
		customRolesFile:    &s.CustomRoles,
		reportsFile:        &s.Reports,
		warningsFile:       &s.Warnings,
	} {
		if err := s.load(file, target); err != nil {
			return nil, err
		}
	}
	if s.Mod.Banned == nil {
		s.Mod.Banned = map[string]*models.ModRecord{}
	}
	if s.Mod.Muted == nil {
		s.Mod.Muted = map[string]*models.ModRecord{}
	}
	return s, nil
}

// Dir returns the data directory the store was opened on.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) load(file string, target interface{}) error {
	path := filepath.Join(s.dir, file)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", file, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("store: parse %s: %w", file, err)
	}
	return nil
}

// save rewrites one collection document. Best-effort: failures are logged and
// counted but not propagated, per the durability policy.
func (s *Store) save(file string, source interface{}) {
	data, err := json.MarshalIndent(source, "", "  ")
	if err != nil {
		log.Printf("store: marshal %s: %v", file, err)
		observability.IncStoreWriteError(file)
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0o644); err != nil {
		log.Printf("store: write %s: %v", file, err)
		observability.IncStoreWriteError(file)
	}
}

func (s *Store) SaveUsers()          { s.save(usersFile, s.Users) }
func (s *Store) SaveMessages()       { s.save(messagesFile, s.Messages) }
func (s *Store) SaveRooms()          { s.save(roomsFile, s.Rooms) }
func (s *Store) SaveFriends()        { s.save(friendsFile, s.Friends) }
func (s *Store) SaveFriendRequests() { s.save(friendRequestsFile, s.FriendRequests) }
func (s *Store) SaveMod()            { s.save(bansFile, s.Mod) }
func (s *Store) SaveCustomRoles()    { s.save(customRolesFile, s.CustomRoles) }
func (s *Store) SaveReports()        { s.save(reportsFile, s.Reports) }
func (s *Store) SaveWarnings()       { s.save(warningsFile, s.Warnings) }

// UserByHandle resolves an identity by its case-insensitive handle.
func (s *Store) UserByHandle(handle string) *models.Identity {
	for _, u := range s.Users {
		if strings.EqualFold(u.Handle, handle) {
			return u
		}
	}
	return nil
}

// FindMessage locates a message by id within one conversation log.
func (s *Store) FindMessage(conversation, messageID string) *models.Message {
	for _, m := range s.Messages[conversation] {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// RoleInfo resolves a role name against the built-in hierarchy first, then
// custom roles, defaulting to the plain user tier.
func (s *Store) RoleInfo(name string) models.Role {
	if r, ok := models.BuiltinRoles[name]; ok {
		return r
	}
	if r, ok := s.CustomRoles[name]; ok {
		return r
	}
	return models.BuiltinRoles[models.RoleUser]
}
