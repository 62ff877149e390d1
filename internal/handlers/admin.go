package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lanchat/internal/guard"
	"lanchat/internal/identity"
	"lanchat/internal/models"
	"lanchat/internal/observability"
	"lanchat/internal/protocol"
	"lanchat/internal/rooms"
	"lanchat/internal/session"
	"lanchat/internal/store"
)

// adminActor is recorded as the issuer for moderation applied through the
// loopback surface.
const adminActor = "admin-console"

// AdminHandler is the loopback-only management API. It mutates the same
// store the event surface reads, so every operation takes the shared state
// mutex.
type AdminHandler struct {
	stateMu *sync.Mutex

	store      *store.Store
	sessions   *session.Registry
	identities *identity.Service
	guard      *guard.Guard
	rooms      *rooms.Manager
}

func NewAdminHandler(stateMu *sync.Mutex, st *store.Store, sessions *session.Registry, identities *identity.Service, g *guard.Guard, rm *rooms.Manager) *AdminHandler {
	return &AdminHandler{
		stateMu:    stateMu,
		store:      st,
		sessions:   sessions,
		identities: identities,
		guard:      g,
		rooms:      rm,
	}
}

// Router builds the admin engine. Every request from a non-loopback peer is
// refused before any handler runs.
func (h *AdminHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), loopbackOnly(), observability.HTTPMetricsMiddleware())

	r.GET("/admin/stats", h.Stats)
	r.GET("/admin/users", h.ListUsers)
	r.GET("/admin/users/:id", h.GetUser)
	r.DELETE("/admin/users/:id", h.DeleteUser)
	r.GET("/admin/rooms", h.ListRooms)
	r.GET("/admin/messages/:conversation", h.GetMessages)
	r.GET("/admin/reports", h.ListReports)
	r.POST("/admin/reports/:id/resolve", h.ResolveReport)
	r.POST("/admin/ban", h.Ban)
	r.POST("/admin/unban", h.Unban)
	r.POST("/admin/mute", h.Mute)
	r.POST("/admin/unmute", h.Unmute)
	r.POST("/admin/warn", h.Warn)
	r.POST("/admin/role", h.SetRole)
	r.POST("/admin/password", h.ResetPassword)
	r.GET("/admin/roles", h.ListRoles)
	r.POST("/admin/roles", h.UpsertCustomRole)
	r.DELETE("/admin/roles/:name", h.DeleteCustomRole)
	return r
}

func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !observability.IsLoopback(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin surface is loopback-only"})
			return
		}
		c.Next()
	}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	messages := 0
	for _, log := range h.store.Messages {
		messages += len(log)
	}
	pending := 0
	for _, r := range h.store.Reports {
		if r.Status == models.ReportPending {
			pending++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"users":           len(h.store.Users),
		"online":          len(h.sessions.OnlineIDs()),
		"rooms":           len(h.store.Rooms),
		"messages":        messages,
		"pending_reports": pending,
		"banned":          len(h.store.Mod.Banned),
		"muted":           len(h.store.Mod.Muted),
	})
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	out := []gin.H{}
	for _, u := range h.store.Users {
		out = append(out, h.userView(u))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	u, ok := h.store.Users[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity"})
		return
	}
	c.JSON(http.StatusOK, h.userView(u))
}

func (h *AdminHandler) userView(u *models.Identity) gin.H {
	return gin.H{
		"identity": h.identities.PublicView(u),
		"online":   h.sessions.Online(u.ID),
		"banned":   h.store.Mod.Banned[u.ID] != nil,
		"muted":    h.store.Mod.Muted[u.ID] != nil,
		"warnings": h.guard.WarningCount(u.ID),
	}
}

// DeleteUser removes an identity with the full cascade: friendships,
// requests, moderation records, warnings, room memberships (owned rooms
// pass to the first remaining member or vanish), and the live session.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	id := c.Param("id")
	u, ok := h.store.Users[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity"})
		return
	}
	if u.Role == models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "the bootstrap account cannot be deleted"})
		return
	}

	h.sessions.Drop(id, "account deleted")
	h.rooms.PurgeIdentity(id)
	if err := h.identities.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *AdminHandler) ListRooms(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	out := []*models.Room{}
	for _, room := range h.store.Rooms {
		out = append(out, room)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *AdminHandler) GetMessages(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	conversation := c.Param("conversation")
	messages := h.store.Messages[conversation]
	if messages == nil {
		messages = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"conversation": conversation, "messages": messages})
}

func (h *AdminHandler) ListReports(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"reports": h.store.Reports})
}

type resolveReportRequest struct {
	Status string `json:"status" binding:"required,oneof=handled dismissed"`
	Action string `json:"action"`
}

func (h *AdminHandler) ResolveReport(c *gin.Context) {
	var req resolveReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	for _, r := range h.store.Reports {
		if r.ID != c.Param("id") {
			continue
		}
		if r.Status != models.ReportPending {
			c.JSON(http.StatusConflict, gin.H{"error": "report already resolved"})
			return
		}
		r.Status = req.Status
		r.Action = req.Action
		r.HandledBy = adminActor
		r.HandledAt = time.Now()
		h.store.SaveReports()
		c.JSON(http.StatusOK, gin.H{"report": r})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown report"})
}

type modRequest struct {
	TargetID        string `json:"target_id" binding:"required"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
	Permanent       bool   `json:"permanent"`
}

func (h *AdminHandler) Ban(c *gin.Context) {
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	u, ok := h.store.Users[req.TargetID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity"})
		return
	}
	if u.Role == models.RoleSuperAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "the bootstrap account cannot be banned"})
		return
	}
	if !req.Permanent && req.DurationMinutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes required for a temporary ban"})
		return
	}
	h.guard.ApplyBan(req.TargetID, req.Reason, adminActor, time.Duration(req.DurationMinutes)*time.Minute, req.Permanent)
	c.JSON(http.StatusOK, gin.H{"banned": req.TargetID})
}

func (h *AdminHandler) Unban(c *gin.Context) {
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if !h.guard.RemoveBan(req.TargetID, adminActor) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ban on record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unbanned": req.TargetID})
}

func (h *AdminHandler) Mute(c *gin.Context) {
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if _, ok := h.store.Users[req.TargetID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity"})
		return
	}
	if !req.Permanent && req.DurationMinutes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_minutes required for a temporary mute"})
		return
	}
	h.guard.ApplyMute(req.TargetID, req.Reason, adminActor, time.Duration(req.DurationMinutes)*time.Minute, req.Permanent)
	c.JSON(http.StatusOK, gin.H{"muted": req.TargetID})
}

func (h *AdminHandler) Unmute(c *gin.Context) {
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if !h.guard.RemoveMute(req.TargetID, adminActor) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no mute on record"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unmuted": req.TargetID})
}

func (h *AdminHandler) Warn(c *gin.Context) {
	var req modRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if _, ok := h.store.Users[req.TargetID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown identity"})
		return
	}
	h.guard.RecordWarning(req.TargetID, req.Reason, adminActor)
	c.JSON(http.StatusOK, gin.H{"warned": req.TargetID, "warnings": h.guard.WarningCount(req.TargetID)})
}

type roleRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	u, err := h.identities.SetRole(req.TargetID, req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.sessions.Send(u.ID, protocol.TypeRoleChanged, protocol.RoleChangedMsg{
		Role:     u.Role,
		RoleInfo: h.store.RoleInfo(u.Role),
	})
	c.JSON(http.StatusOK, gin.H{"identity": h.identities.PublicView(u)})
}

type passwordRequest struct {
	TargetID string `json:"target_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) ResetPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if err := h.identities.ResetPassword(req.TargetID, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": req.TargetID})
}

func (h *AdminHandler) ListRoles(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"builtin": models.BuiltinRoles,
		"custom":  h.store.CustomRoles,
	})
}

type customRoleRequest struct {
	Key         string   `json:"key" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Level       int      `json:"level"`
	Badge       string   `json:"badge"`
	Permissions []string `json:"permissions"`
}

// UpsertCustomRole creates or replaces an operator-defined role. Custom
// roles can never reach the top built-in tier or carry its wildcard.
func (h *AdminHandler) UpsertCustomRole(c *gin.Context) {
	var req customRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if _, builtin := models.BuiltinRoles[req.Key]; builtin {
		c.JSON(http.StatusConflict, gin.H{"error": "built-in roles cannot be redefined"})
		return
	}
	if req.Level >= models.BuiltinRoles[models.RoleSuperAdmin].Level {
		c.JSON(http.StatusBadRequest, gin.H{"error": "custom role level too high"})
		return
	}
	perms := []string{}
	for _, p := range req.Permissions {
		if p == models.PermAll {
			c.JSON(http.StatusBadRequest, gin.H{"error": "the wildcard permission is reserved"})
			return
		}
		perms = append(perms, p)
	}

	h.store.CustomRoles[req.Key] = models.Role{
		Name:        req.Name,
		Level:       req.Level,
		Badge:       req.Badge,
		Permissions: perms,
	}
	h.store.SaveCustomRoles()
	c.JSON(http.StatusOK, gin.H{"role": h.store.CustomRoles[req.Key]})
}

// DeleteCustomRole removes a custom role. Identities still holding it fall
// back to the plain user tier on the next role lookup.
func (h *AdminHandler) DeleteCustomRole(c *gin.Context) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	name := c.Param("name")
	if _, ok := h.store.CustomRoles[name]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown custom role"})
		return
	}
	delete(h.store.CustomRoles, name)
	h.store.SaveCustomRoles()
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}
