// Package identity manages registered accounts: registration, credential
// verification, profile mutation and the administrative delete cascade.
package identity

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lanchat/internal/guard"
	"lanchat/internal/models"
	"lanchat/internal/protocol"
	"lanchat/internal/store"
)

var (
	ErrInvalidHandle   = errors.New("handle must be 3-20 characters of letters, digits or underscore")
	ErrReservedHandle  = errors.New("handle is reserved")
	ErrHandleTaken     = errors.New("handle is already taken")
	ErrInvalidPassword = errors.New("password must be at least 6 characters and contain a letter")
	ErrProfaneField    = errors.New("name contains blocked words")
	ErrBadCredentials  = errors.New("unknown handle or wrong password")
	ErrUnknownIdentity = errors.New("unknown identity")
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// SuperAdminHandle is the reserved bootstrap account handle.
const SuperAdminHandle = "superadmin"

// Service owns identity lifecycle operations against the store.
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Register validates and creates a new identity. Handles are unique
// case-insensitively; identity-defining fields are rejected outright on a
// block-list hit rather than redacted.
func (s *Service) Register(handle, password, displayName, bio, avatarRef string) (*models.Identity, error) {
	if !handlePattern.MatchString(handle) {
		return nil, ErrInvalidHandle
	}
	if strings.EqualFold(handle, SuperAdminHandle) {
		return nil, ErrReservedHandle
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = handle
	}
	if guard.ContainsProfanity(handle) || guard.ContainsProfanity(displayName) {
		return nil, ErrProfaneField
	}
	if s.store.UserByHandle(handle) != nil {
		return nil, ErrHandleTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	u := &models.Identity{
		ID:           uuid.NewString(),
		Handle:       handle,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		AvatarRef:    avatarRef,
		Bio:          bio,
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}
	s.store.Users[u.ID] = u
	s.store.SaveUsers()

	log.Printf("identity: registered %s (%s)", u.Handle, u.ID)
	return u, nil
}

// Authenticate verifies handle and password against the stored hash.
func (s *Service) Authenticate(handle, password string) (*models.Identity, error) {
	u := s.store.UserByHandle(handle)
	if u == nil {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields to the owner's profile. Display
// names go through the same outright-rejection profanity rule as handles.
func (s *Service) UpdateProfile(id string, displayName, bio, avatarRef *string) (*models.Identity, error) {
	u, ok := s.store.Users[id]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	if displayName != nil {
		if *displayName == "" {
			return nil, errors.New("display name must not be empty")
		}
		if guard.ContainsProfanity(*displayName) {
			return nil, ErrProfaneField
		}
		u.DisplayName = *displayName
	}
	if bio != nil {
		u.Bio = *bio
	}
	if avatarRef != nil {
		u.AvatarRef = *avatarRef
	}
	s.store.SaveUsers()
	return u, nil
}

// ChangePassword verifies the old password and installs the new one.
func (s *Service) ChangePassword(id, oldPassword, newPassword string) error {
	u, ok := s.store.Users[id]
	if !ok {
		return ErrUnknownIdentity
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrBadCredentials
	}
	return s.setPassword(u, newPassword)
}

// ResetPassword installs a new password without the old one. Administrative
// surface only.
func (s *Service) ResetPassword(id, newPassword string) error {
	u, ok := s.store.Users[id]
	if !ok {
		return ErrUnknownIdentity
	}
	return s.setPassword(u, newPassword)
}

func (s *Service) setPassword(u *models.Identity, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	s.store.SaveUsers()
	return nil
}

// EnsureSuperAdmin creates the bootstrap super_admin record on first start.
// This persisted record is the only path to the top tier; SetRole refuses it.
func (s *Service) EnsureSuperAdmin(password string) error {
	for _, u := range s.store.Users {
		if u.Role == models.RoleSuperAdmin {
			return nil
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("identity: hash bootstrap password: %w", err)
	}
	u := &models.Identity{
		ID:           uuid.NewString(),
		Handle:       SuperAdminHandle,
		DisplayName:  "SuperAdmin",
		PasswordHash: string(hash),
		Role:         models.RoleSuperAdmin,
		CreatedAt:    time.Now(),
	}
	s.store.Users[u.ID] = u
	s.store.SaveUsers()
	log.Printf("identity: bootstrapped super admin (%s)", u.ID)
	return nil
}

// SetRole assigns a role by name. The top built-in tier can never be
// assigned this way, and an existing super_admin record is never demoted.
func (s *Service) SetRole(id, role string) (*models.Identity, error) {
	if role == models.RoleSuperAdmin {
		return nil, errors.New("super_admin cannot be assigned")
	}
	u, ok := s.store.Users[id]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	if u.Role == models.RoleSuperAdmin {
		return nil, errors.New("super_admin cannot be demoted")
	}
	if _, builtin := models.BuiltinRoles[role]; !builtin {
		if _, custom := s.store.CustomRoles[role]; !custom {
			return nil, fmt.Errorf("identity: unknown role %q", role)
		}
	}
	u.Role = role
	s.store.SaveUsers()
	return u, nil
}

// Delete removes the identity and cascades to friendships, friend requests,
// moderation records and warnings. Room membership cascade is the room
// manager's job; conversation logs are retained.
func (s *Service) Delete(id string) error {
	if _, ok := s.store.Users[id]; !ok {
		return ErrUnknownIdentity
	}
	delete(s.store.Users, id)
	s.store.SaveUsers()

	delete(s.store.Friends, id)
	for other, list := range s.store.Friends {
		s.store.Friends[other] = removeID(list, id)
	}
	s.store.SaveFriends()

	for owner, reqs := range s.store.FriendRequests {
		kept := reqs[:0]
		for _, r := range reqs {
			if r.FromID != id && r.ToID != id {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(s.store.FriendRequests, owner)
		} else {
			s.store.FriendRequests[owner] = kept
		}
	}
	s.store.SaveFriendRequests()

	delete(s.store.Mod.Banned, id)
	delete(s.store.Mod.Muted, id)
	s.store.SaveMod()

	delete(s.store.Warnings, id)
	s.store.SaveWarnings()

	log.Printf("identity: deleted %s with cascade", id)
	return nil
}

// PublicView renders the shareable projection of an identity.
func (s *Service) PublicView(u *models.Identity) models.PublicIdentity {
	return models.PublicIdentity{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		AvatarRef:   u.AvatarRef,
		Bio:         u.Bio,
		Role:        u.Role,
		RoleInfo:    s.store.RoleInfo(u.Role),
	}
}

// PrivateView renders the owner's own projection, including the friend list.
func (s *Service) PrivateView(u *models.Identity) protocol.PrivateIdentity {
	friends := s.store.Friends[u.ID]
	if friends == nil {
		friends = []string{}
	}
	return protocol.PrivateIdentity{
		PublicIdentity: s.PublicView(u),
		Friends:        friends,
	}
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return ErrInvalidPassword
	}
	for _, r := range password {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return nil
		}
	}
	return ErrInvalidPassword
}

func removeID(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
