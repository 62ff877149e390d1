package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"lanchat/internal/chat"
	"lanchat/internal/guard"
	"lanchat/internal/identity"
	"lanchat/internal/models"
	"lanchat/internal/rooms"
	"lanchat/internal/session"
	"lanchat/internal/store"
	"lanchat/internal/telemetry"
)

type adminFixture struct {
	store    *store.Store
	sessions *session.Registry
	guard    *guard.Guard
	router   *gin.Engine
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	sessions := session.NewRegistry(st)
	identities := identity.NewService(st)
	g := guard.New(st, sessions, telemetry.NewAuditEmitter(nil, "", "", ""))
	chatRouter := chat.NewRouter(st, sessions, g)
	roomManager := rooms.NewManager(st, sessions, g, chatRouter)

	var stateMu sync.Mutex
	handler := NewAdminHandler(&stateMu, st, sessions, identities, g, roomManager)
	return &adminFixture{store: st, sessions: sessions, guard: g, router: handler.Router()}
}

func (f *adminFixture) addUser(id, role string) {
	f.store.Users[id] = &models.Identity{ID: id, Handle: id, DisplayName: id, Role: role}
}

func (f *adminFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:54321"
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAdminLoopbackOnly(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.RemoteAddr = "192.168.1.50:40000"
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/stats", nil).Code)
}

func TestAdminStats(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("u1", models.RoleUser)
	f.store.Messages["a_b"] = []*models.Message{{ID: "m1"}, {ID: "m2"}}
	f.store.Reports = []*models.Report{{ID: "r1", Status: models.ReportPending}}

	rec := f.do(http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.EqualValues(t, 1, resp["users"])
	require.EqualValues(t, 2, resp["messages"])
	require.EqualValues(t, 1, resp["pending_reports"])
}

func TestAdminBanFlow(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("u1", models.RoleUser)

	rec := f.do(http.MethodPost, "/admin/ban", map[string]any{"target_id": "u1", "reason": "abuse", "permanent": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.guard.CheckBan("u1"))

	rec = f.do(http.MethodPost, "/admin/unban", map[string]any{"target_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, f.guard.CheckBan("u1"))

	rec = f.do(http.MethodPost, "/admin/unban", map[string]any{"target_id": "u1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBanValidation(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("root", models.RoleSuperAdmin)

	rec := f.do(http.MethodPost, "/admin/ban", map[string]any{"target_id": "ghost", "permanent": true})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/admin/ban", map[string]any{"target_id": "root", "permanent": true})
	require.Equal(t, http.StatusForbidden, rec.Code)

	f.addUser("u1", models.RoleUser)
	rec = f.do(http.MethodPost, "/admin/ban", map[string]any{"target_id": "u1"})
	require.Equal(t, http.StatusBadRequest, rec.Code, "temporary ban needs a duration")
}

func TestAdminMuteFlow(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("u1", models.RoleUser)

	rec := f.do(http.MethodPost, "/admin/mute", map[string]any{"target_id": "u1", "reason": "spam", "duration_minutes": 30})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.guard.CheckMute("u1"))

	rec = f.do(http.MethodPost, "/admin/unmute", map[string]any{"target_id": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, f.guard.CheckMute("u1"))
}

func TestAdminSetRole(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("u1", models.RoleUser)

	rec := f.do(http.MethodPost, "/admin/role", map[string]any{"target_id": "u1", "role": "moderator"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.RoleModerator, f.store.Users["u1"].Role)

	rec = f.do(http.MethodPost, "/admin/role", map[string]any{"target_id": "u1", "role": "super_admin"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCustomRoles(t *testing.T) {
	f := newAdminFixture(t)

	rec := f.do(http.MethodPost, "/admin/roles", map[string]any{"key": "helper", "name": "Helper", "level": 30, "permissions": []string{"mute"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, f.store.CustomRoles, "helper")

	rec = f.do(http.MethodPost, "/admin/roles", map[string]any{"key": "admin", "name": "X"})
	require.Equal(t, http.StatusConflict, rec.Code, "built-ins are immutable")

	rec = f.do(http.MethodPost, "/admin/roles", map[string]any{"key": "boss", "name": "Boss", "level": 100})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/admin/roles", map[string]any{"key": "sneaky", "name": "Sneaky", "level": 10, "permissions": []string{"all"}})
	require.Equal(t, http.StatusBadRequest, rec.Code, "wildcard is reserved")

	rec = f.do(http.MethodDelete, "/admin/roles/helper", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, f.store.CustomRoles, "helper")
}

func TestAdminDeleteUserCascade(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("victim", models.RoleUser)
	f.addUser("other", models.RoleUser)
	f.store.Rooms["r1"] = &models.Room{ID: "r1", Name: "general", OwnerID: "victim", MemberIDs: []string{"victim", "other"}}
	f.store.Friends["victim"] = []string{"other"}
	f.store.Friends["other"] = []string{"victim"}

	rec := f.do(http.MethodDelete, "/admin/users/victim", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotContains(t, f.store.Users, "victim")
	require.Empty(t, f.store.Friends["other"])
	require.Equal(t, "other", f.store.Rooms["r1"].OwnerID, "owned room passes to the first remaining member")
}

func TestAdminDeleteSuperAdminRefused(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("root", models.RoleSuperAdmin)

	rec := f.do(http.MethodDelete, "/admin/users/root", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, f.store.Users, "root")
}

func TestAdminReports(t *testing.T) {
	f := newAdminFixture(t)
	f.store.Reports = []*models.Report{{ID: "rep1", Status: models.ReportPending}}

	rec := f.do(http.MethodPost, "/admin/reports/rep1/resolve", map[string]any{"status": "handled", "action": "warned"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.ReportHandled, f.store.Reports[0].Status)
	require.Equal(t, "warned", f.store.Reports[0].Action)

	rec = f.do(http.MethodPost, "/admin/reports/rep1/resolve", map[string]any{"status": "dismissed"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/admin/reports/nope/resolve", map[string]any{"status": "handled"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminWarnEscalatesToMute(t *testing.T) {
	f := newAdminFixture(t)
	f.addUser("u1", models.RoleUser)

	for i := 0; i < 3; i++ {
		rec := f.do(http.MethodPost, "/admin/warn", map[string]any{"target_id": "u1", "reason": "spam"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.NotNil(t, f.guard.CheckMute("u1"), "third warning mutes automatically")
}
