// Package guard gates every conversation-mutating operation: ban and mute
// checks with lazy expiry, the first-contact gate, the profanity filter,
// permission lookups and the warning accumulator.
package guard

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"lanchat/internal/models"
	"lanchat/internal/observability"
	"lanchat/internal/protocol"
	"lanchat/internal/store"
	"lanchat/internal/telemetry"
)

// WarningThreshold strikes trigger an automatic mute of MuteOnWarnings.
const (
	WarningThreshold = 3
	MuteOnWarnings   = 30 * time.Minute
)

// Notifier pushes server events to a bound session. Implemented by the
// session registry.
type Notifier interface {
	Send(identityID, msgType string, payload any) bool
	Drop(identityID, reason string)
}

// Rejection is the structured refusal returned by guard checks and the
// router pipeline. It maps onto the unified message_error channel.
type Rejection struct {
	Kind    string
	Message string
	Mute    *protocol.MuteDetail
}

func (r *Rejection) Error() string {
	return r.Message
}

// Guard evaluates moderation and authorization state. It mutates the store
// (lazy expiry, warnings) and therefore runs under the gateway mutex like
// every other store writer.
type Guard struct {
	store    *store.Store
	notifier Notifier
	audit    *telemetry.AuditEmitter
	now      func() time.Time
}

func New(st *store.Store, notifier Notifier, audit *telemetry.AuditEmitter) *Guard {
	return &Guard{store: st, notifier: notifier, audit: audit, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// CheckBan returns the active ban for id, purging an expired record as a
// side effect of the check.
func (g *Guard) CheckBan(id string) *models.ModRecord {
	return g.checkRecord(g.store.Mod.Banned, id)
}

// CheckMute returns the active mute for id with the same lazy-expiry
// contract as CheckBan.
func (g *Guard) CheckMute(id string) *models.ModRecord {
	return g.checkRecord(g.store.Mod.Muted, id)
}

func (g *Guard) checkRecord(records map[string]*models.ModRecord, id string) *models.ModRecord {
	rec, ok := records[id]
	if !ok {
		return nil
	}
	if !rec.Active(g.now()) {
		delete(records, id)
		g.store.SaveMod()
		return nil
	}
	return rec
}

// MuteDetail renders an active mute into the structured client notice.
func (g *Guard) MuteDetail(rec *models.ModRecord) *protocol.MuteDetail {
	detail := &protocol.MuteDetail{Reason: rec.Reason, Permanent: rec.Permanent}
	if !rec.Permanent {
		detail.Remaining = rec.Remaining(g.now()).Round(time.Second).String()
	}
	return detail
}

// MuteRejection builds the standard refusal for a muted sender.
func (g *Guard) MuteRejection(rec *models.ModRecord) *Rejection {
	return &Rejection{
		Kind:    protocol.ErrKindMute,
		Message: "you are muted",
		Mute:    g.MuteDetail(rec),
	}
}

// CanMessage applies the first-contact gate. Friends and moderator-tier
// identities bypass it; otherwise a non-friend gets one opening message and
// further sends wait until the recipient has replied. A single reply disarms
// the gate for the rest of the conversation.
func (g *Guard) CanMessage(senderID, recipientID string) (allowed bool, reason string, firstContact bool) {
	if g.areFriends(senderID, recipientID) {
		return true, "", false
	}
	if g.RoleLevel(senderID) >= models.BuiltinRoles[models.RoleModerator].Level {
		return true, "", false
	}

	senderSent := false
	replied := false
	for _, m := range g.store.Messages[models.DirectKey(senderID, recipientID)] {
		switch m.SenderID {
		case senderID:
			senderSent = true
		case recipientID:
			replied = true
		}
	}
	if senderSent && !replied {
		return false, "add them as a friend or wait for a reply before sending more messages", false
	}
	return true, "", !replied
}

func (g *Guard) areFriends(a, b string) bool {
	for _, id := range g.store.Friends[a] {
		if id == b {
			return true
		}
	}
	return false
}

// RoleLevel resolves the numeric tier of an identity's role. Unknown
// identities rank as plain users.
func (g *Guard) RoleLevel(id string) int {
	u, ok := g.store.Users[id]
	if !ok {
		return models.BuiltinRoles[models.RoleUser].Level
	}
	return g.store.RoleInfo(u.Role).Level
}

// HasPermission reports whether the identity's role grants permission. The
// wildcard permission short-circuits to true.
func (g *Guard) HasPermission(id, permission string) bool {
	u, ok := g.store.Users[id]
	if !ok {
		return false
	}
	role := g.store.RoleInfo(u.Role)
	for _, p := range role.Permissions {
		if p == models.PermAll || p == permission {
			return true
		}
	}
	return false
}

// RecordWarning appends a strike against targetID. At the third strike the
// accumulator resets and a 30-minute mute is issued; the target is notified
// of the warning first, then the mute.
func (g *Guard) RecordWarning(targetID, reason, issuerID string) {
	now := g.now()
	g.store.Warnings[targetID] = append(g.store.Warnings[targetID], &models.Warning{
		ID:        uuid.NewString(),
		Reason:    reason,
		IssuedBy:  issuerID,
		CreatedAt: now,
	})
	count := len(g.store.Warnings[targetID])
	muteDue := count >= WarningThreshold
	if muteDue {
		delete(g.store.Warnings, targetID)
	}
	g.store.SaveWarnings()

	observability.IncModerationAction("warn")
	g.audit.Emit(context.Background(), "warn", targetID, issuerID, reason, 0)
	issuerName := ""
	if issuer, ok := g.store.Users[issuerID]; ok {
		issuerName = issuer.DisplayName
	}
	g.notifier.Send(targetID, protocol.TypeWarned, protocol.WarnedMsg{
		Reason:       reason,
		IssuedByName: issuerName,
		WarningCount: count,
	})

	if muteDue {
		g.ApplyMute(targetID, "too many warnings", issuerID, MuteOnWarnings, false)
	}
}

// WarningCount returns the current strike count for targetID.
func (g *Guard) WarningCount(targetID string) int {
	return len(g.store.Warnings[targetID])
}

// ApplyMute installs or replaces a mute and notifies the target.
func (g *Guard) ApplyMute(targetID, reason, issuedBy string, duration time.Duration, permanent bool) {
	now := g.now()
	rec := &models.ModRecord{
		TargetID:  targetID,
		Reason:    reason,
		IssuedBy:  issuedBy,
		Permanent: permanent,
		CreatedAt: now,
	}
	if !permanent {
		rec.ExpiresAt = now.Add(duration)
	}
	g.store.Mod.Muted[targetID] = rec
	g.store.SaveMod()

	observability.IncModerationAction("mute")
	g.audit.Emit(context.Background(), "mute", targetID, issuedBy, reason, duration)
	log.Printf("guard: muted %s by %s reason=%q permanent=%v", targetID, issuedBy, reason, permanent)
	g.notifier.Send(targetID, protocol.TypeMuted, protocol.MutedMsg{MuteDetail: *g.MuteDetail(rec)})
}

// RemoveMute lifts a mute if present and notifies the target.
func (g *Guard) RemoveMute(targetID, issuedBy string) bool {
	if _, ok := g.store.Mod.Muted[targetID]; !ok {
		return false
	}
	delete(g.store.Mod.Muted, targetID)
	g.store.SaveMod()

	observability.IncModerationAction("unmute")
	g.audit.Emit(context.Background(), "unmute", targetID, issuedBy, "", 0)
	g.notifier.Send(targetID, protocol.TypeUnmuted, protocol.UnmutedMsg{})
	return true
}

// ApplyBan installs or replaces a ban, then drops the target's live session.
func (g *Guard) ApplyBan(targetID, reason, issuedBy string, duration time.Duration, permanent bool) {
	now := g.now()
	rec := &models.ModRecord{
		TargetID:  targetID,
		Reason:    reason,
		IssuedBy:  issuedBy,
		Permanent: permanent,
		CreatedAt: now,
	}
	if !permanent {
		rec.ExpiresAt = now.Add(duration)
	}
	g.store.Mod.Banned[targetID] = rec
	g.store.SaveMod()

	observability.IncModerationAction("ban")
	g.audit.Emit(context.Background(), "ban", targetID, issuedBy, reason, duration)
	log.Printf("guard: banned %s by %s reason=%q permanent=%v", targetID, issuedBy, reason, permanent)
	g.notifier.Drop(targetID, "banned: "+reason)
}

// RemoveBan lifts a ban if present.
func (g *Guard) RemoveBan(targetID, issuedBy string) bool {
	if _, ok := g.store.Mod.Banned[targetID]; !ok {
		return false
	}
	delete(g.store.Mod.Banned, targetID)
	g.store.SaveMod()

	observability.IncModerationAction("unban")
	g.audit.Emit(context.Background(), "unban", targetID, issuedBy, "", 0)
	return true
}
