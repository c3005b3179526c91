package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hirewire/portal/internal/api/middleware"
	"github.com/hirewire/portal/internal/lock"
	"github.com/hirewire/portal/internal/models"
	"github.com/hirewire/portal/internal/rbac"
	"github.com/hirewire/portal/internal/service"
	"github.com/hirewire/portal/internal/servicetag"
	"github.com/hirewire/portal/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	client *models.User
	other  *models.User
	admin  *models.User
	// current is the user the next request is made as.
	current *models.User
}

// setupTestDB creates a temp SQLite DB with plans seeded and RBAC initialized.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
		&models.ServiceRole{},
		&models.RoleIndex{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	for _, title := range servicetag.SubscriptionTitles() {
		if err := db.Create(&models.SubscriptionPlan{Title: title, CreditsPerCycle: 5, PriceCents: 10000}).Error; err != nil {
			t.Fatalf("failed to seed plan: %v", err)
		}
	}
	if err := rbac.InitEnforcer(db, slog.Default()); err != nil {
		t.Fatalf("failed to init rbac: %v", err)
	}
	return db
}

// setupEnv builds the routes with error statuses enabled so tests can assert
// on the HTTP code.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnv(t, true, 0)
}

func newEnv(t *testing.T, errorStatus bool, maxAttachment int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{db: setupTestDB(t)}
	env.client = env.addUser(t, "acme")
	env.other = env.addUser(t, "globex")
	env.admin = env.addUser(t, "root")
	if err := rbac.MakeAdmin(env.admin.ID); err != nil {
		t.Fatalf("make admin: %v", err)
	}
	env.current = env.client

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	locker := lock.NewMemoryLocker()
	t.Cleanup(func() { locker.Close() })

	roleSvc := service.NewRoleService(env.db, locker, store, maxAttachment)
	indexHandler := NewRolesIndexHandler(service.NewRoleIndexService(env.db))
	subHandler := NewSubscriptionHandler(service.NewSubscriptionService(env.db))
	adminHandler := NewAdminHandler(service.NewUserService(env.db), roleSvc)

	r := gin.New()
	r.Use(ErrorStatus(errorStatus))
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("user", env.current)
		c.Next()
	})
	for _, line := range servicetag.Lines() {
		h := NewRoleHandler(roleSvc, line, maxAttachment)
		g := api.Group("/" + line.Key)
		g.POST("", h.CreateRole)
		g.GET("", h.ListRoles)
		g.GET("/deleted", h.ListDeletedRoles)
		g.GET("/:id", h.GetRole)
		g.PUT("/:id", h.UpdateRole)
		g.DELETE("/:id", h.DeleteRole)
		g.PATCH("/:id/restore", h.RestoreRole)
	}
	api.GET("/roles", indexHandler.ListRoles)
	api.GET("/roles/client/:clientId/service/:serviceTag/client-no", indexHandler.GetClientNo)
	api.GET("/roles/next-client-no/:serviceTag", indexHandler.GetNextClientNo)
	api.GET("/subscriptions/plans", subHandler.ListPlans)
	api.GET("/subscriptions/me", subHandler.ListMine)
	api.GET("/credits/:serviceType", subHandler.GetRemainingCredits)
	admin := api.Group("/admin", middleware.RequireAdmin())
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users", adminHandler.CreateUser)
	admin.PUT("/users/:id/admin", adminHandler.SetAdmin)
	admin.POST("/subscriptions", subHandler.GrantSubscription)
	admin.POST("/subscriptions/:id/cancel", subHandler.CancelSubscription)
	admin.POST("/roles/repair", adminHandler.RepairRoles)

	env.router = r
	return env
}

func (e *testEnv) addUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@test.com", PasswordHash: "x"}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func (e *testEnv) giveCredits(t *testing.T, user *models.User, title string, credits int) {
	t.Helper()
	var plan models.SubscriptionPlan
	if err := e.db.Where("title = ?", title).First(&plan).Error; err != nil {
		t.Fatalf("find plan: %v", err)
	}
	sub := &models.UserSubscription{
		UserID:           user.ID,
		PlanID:           plan.ID,
		Status:           models.SubStatusActive,
		TotalCredits:     credits,
		RemainingCredits: credits,
		StartedAt:        time.Now(),
	}
	if err := e.db.Create(sub).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and, when out is non-nil, its data field.
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) Response {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	if out != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, out); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return Response{Success: raw.Success, Message: raw.Message, Error: raw.Error}
}

func directBody(title string) map[string]interface{} {
	return map[string]interface{}{
		"title":    title,
		"location": "Leeds",
		"attributes": map[string]interface{}{
			"job_description": "Build and lead the northern sales team.",
		},
	}
}

func (e *testEnv) createDirect(t *testing.T, title string) service.RoleView {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/direct", directBody(title))
	if w.Code != http.StatusCreated {
		t.Fatalf("create role: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var view service.RoleView
	decode(t, w, &view)
	return view
}

func TestCreateRole_JSON(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 2)

	w := env.do(t, "POST", "/api/v1/direct", directBody("Sales Director"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var view service.RoleView
	resp := decode(t, w, &view)
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if view.ClientNo == nil || *view.ClientNo != 2001 {
		t.Errorf("expected client number 2001, got %v", view.ClientNo)
	}
	if view.RemainingCredits == nil || *view.RemainingCredits != 1 {
		t.Errorf("expected 1 remaining credit, got %v", view.RemainingCredits)
	}
	if view.ClientID != env.client.ID {
		t.Errorf("role should belong to the caller, got %s", view.ClientID)
	}
}

func TestCreateRole_NoCredits(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, "POST", "/api/v1/direct", directBody("Sales Director"))
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w, nil)
	if resp.Success || resp.Error != "no_subscription" {
		t.Errorf("unexpected envelope: %+v", resp)
	}

	var count int64
	env.db.Model(&models.ServiceRole{}).Count(&count)
	if count != 0 {
		t.Errorf("no role should be stored, found %d", count)
	}
}

func TestCreateRole_InvalidAttributes(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleCVSourcing, 1)

	w := env.do(t, "POST", "/api/v1/cv-sourcing", map[string]interface{}{
		"title":      "Data Engineer",
		"attributes": map[string]interface{}{"cvs_required": 500},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateRole_MalformedJSON(t *testing.T) {
	env := setupEnv(t)

	req, _ := http.NewRequest("POST", "/api/v1/direct", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func multipartRequest(t *testing.T, path string, data interface{}, filename string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := mw.WriteField("data", string(encoded)); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if file != nil {
		fw, err := mw.CreateFormFile("attachment", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()

	req, _ := http.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateRole_MultipartWithPDF(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, multipartRequest(t, "/api/v1/direct", directBody("Head of Ops"), "jd.pdf", samplePDF))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var view service.RoleView
	decode(t, w, &view)
	if view.AttachmentKey == "" {
		t.Error("expected an attachment key")
	}
}

func TestCreateRole_MultipartRejectsNonPDF(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, multipartRequest(t, "/api/v1/direct", directBody("Head of Ops"), "jd.pdf", []byte("plain text, not a pdf")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var sub models.UserSubscription
	env.db.First(&sub, "user_id = ?", env.client.ID)
	if sub.RemainingCredits != 1 {
		t.Errorf("credit should not be spent, remaining %d", sub.RemainingCredits)
	}
}

func TestCreateRole_MultipartMissingData(t *testing.T) {
	env := setupEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "no data field")
	mw.Close()
	req, _ := http.NewRequest("POST", "/api/v1/direct", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListRoles_ScopedToCaller(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 2)
	env.giveCredits(t, env.other, servicetag.TitleDirect, 1)

	env.createDirect(t, "Role A")
	env.current = env.other
	env.createDirect(t, "Role B")

	env.current = env.client
	var roles []service.RoleView
	w := env.do(t, "GET", "/api/v1/direct", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &roles)
	if len(roles) != 1 || roles[0].Title != "Role A" {
		t.Errorf("client should only see its own role, got %+v", roles)
	}

	w = env.do(t, "GET", "/api/v1/direct?userId="+env.other.ID.String(), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another client's listing, got %d", w.Code)
	}

	env.current = env.admin
	roles = nil
	decode(t, env.do(t, "GET", "/api/v1/direct", nil), &roles)
	if len(roles) != 2 {
		t.Errorf("admin should see every role, got %d", len(roles))
	}
}

func TestGetRole_OtherClientForbidden(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	view := env.createDirect(t, "Private Role")

	env.current = env.other
	w := env.do(t, "GET", fmt.Sprintf("/api/v1/direct/%d", view.ID), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	env.current = env.admin
	if w := env.do(t, "GET", fmt.Sprintf("/api/v1/direct/%d", view.ID), nil); w.Code != http.StatusOK {
		t.Errorf("admin should read any role, got %d", w.Code)
	}
}

func TestGetRole_WrongLineNotFound(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	view := env.createDirect(t, "Direct Role")

	w := env.do(t, "GET", fmt.Sprintf("/api/v1/cv-sourcing/%d", view.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/direct/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-numeric id, got %d", w.Code)
	}
}

func TestUpdateRole(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	view := env.createDirect(t, "Old Title")

	w := env.do(t, "PUT", fmt.Sprintf("/api/v1/direct/%d", view.ID), map[string]interface{}{
		"title":  "New Title",
		"status": "on_hold",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var updated service.RoleView
	decode(t, w, &updated)
	if updated.Title != "New Title" || updated.Status != models.RoleStatus("on_hold") {
		t.Errorf("unexpected update result: %+v", updated.ServiceRole)
	}

	w = env.do(t, "PUT", fmt.Sprintf("/api/v1/direct/%d", view.ID), map[string]interface{}{"status": "bogus"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown status, got %d", w.Code)
	}
}

func TestDeleteRestoreAndHardDelete(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	view := env.createDirect(t, "Short-lived")
	path := fmt.Sprintf("/api/v1/direct/%d", view.ID)

	if w := env.do(t, "DELETE", path, nil); w.Code != http.StatusOK {
		t.Fatalf("soft delete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var deleted []service.RoleView
	decode(t, env.do(t, "GET", "/api/v1/direct/deleted", nil), &deleted)
	if len(deleted) != 1 || !deleted[0].IsDeleted {
		t.Fatalf("expected one deleted role, got %+v", deleted)
	}

	var mirror models.RoleIndex
	env.db.First(&mirror, "service_role_id = ?", view.ID)
	if !mirror.IsDeleted {
		t.Error("mirror should be soft-deleted with the role")
	}

	w := env.do(t, "PATCH", path+"/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var restored service.RoleView
	decode(t, w, &restored)
	if restored.IsDeleted || restored.ClientNo == nil || *restored.ClientNo != *view.ClientNo {
		t.Errorf("unexpected restore result: %+v", restored)
	}

	if w := env.do(t, "DELETE", path+"?hard=true", nil); w.Code != http.StatusOK {
		t.Fatalf("hard delete: expected 200, got %d", w.Code)
	}
	var roles, mirrors int64
	env.db.Model(&models.ServiceRole{}).Count(&roles)
	env.db.Model(&models.RoleIndex{}).Count(&mirrors)
	if roles != 0 || mirrors != 0 {
		t.Errorf("expected both rows gone, got roles=%d mirrors=%d", roles, mirrors)
	}

	if w := env.do(t, "DELETE", path, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after hard delete, got %d", w.Code)
	}
}

func TestDeleteRole_InvalidHardFlag(t *testing.T) {
	env := setupEnv(t)
	if w := env.do(t, "DELETE", "/api/v1/direct/1?hard=maybe", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDeleteRole_MissingMirrorConflicts(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	view := env.createDirect(t, "Drifted")
	env.db.Where("service_role_id = ?", view.ID).Delete(&models.RoleIndex{})

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/direct/%d", view.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	env.current = env.admin
	w = env.do(t, "POST", "/api/v1/admin/roles/repair", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("repair: expected 200, got %d", w.Code)
	}
	var report service.RepairReport
	decode(t, w, &report)
	if report.Created != 1 {
		t.Errorf("expected one mirror created, got %+v", report)
	}

	env.current = env.client
	if w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/direct/%d", view.ID), nil); w.Code != http.StatusOK {
		t.Errorf("delete after repair: expected 200, got %d", w.Code)
	}
}

func TestRolesIndexEndpoints(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 2)
	first := env.createDirect(t, "One")
	env.createDirect(t, "Two")

	var rows []models.RoleIndex
	w := env.do(t, "GET", fmt.Sprintf("/api/v1/roles?serviceTag=%d", servicetag.Direct360), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &rows)
	if len(rows) != 2 {
		t.Fatalf("expected 2 index rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.ClientNo != *first.ClientNo || row.Name != "360 Direct" {
			t.Errorf("unexpected index row: %+v", row)
		}
	}

	var got map[string]interface{}
	path := fmt.Sprintf("/api/v1/roles/client/%s/service/%d/client-no", env.client.ID, servicetag.Direct360)
	decode(t, env.do(t, "GET", path, nil), &got)
	if got["client_no"] != float64(2001) {
		t.Errorf("expected client_no 2001, got %v", got["client_no"])
	}

	got = nil
	decode(t, env.do(t, "GET", fmt.Sprintf("/api/v1/roles/next-client-no/%d", servicetag.Direct360), nil), &got)
	if got["client_no"] != float64(2002) {
		t.Errorf("expected next client_no 2002, got %v", got["client_no"])
	}

	if w := env.do(t, "GET", "/api/v1/roles/next-client-no/1234", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown tag, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/api/v1/roles?serviceTag=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-numeric tag, got %d", w.Code)
	}
	other := fmt.Sprintf("/api/v1/roles/client/%s/service/%d/client-no", env.other.ID, servicetag.Direct360)
	if w := env.do(t, "GET", other, nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another client's number, got %d", w.Code)
	}
}

func TestCreditsEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.giveCredits(t, env.client, servicetag.TitleLeadGeneration, 4)

	var got map[string]interface{}
	w := env.do(t, "GET", "/api/v1/credits/lead-generation-industry", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &got)
	if got["remaining_credits"] != float64(4) {
		t.Errorf("expected 4 credits, got %v", got["remaining_credits"])
	}

	if w := env.do(t, "GET", "/api/v1/credits/unknown", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown service type, got %d", w.Code)
	}
}

func TestAdminGrantSubscription(t *testing.T) {
	env := setupEnv(t)

	body := map[string]interface{}{"user_id": env.client.ID, "plan_title": servicetag.TitleCVSourcing, "credits": 3}
	if w := env.do(t, "POST", "/api/v1/admin/subscriptions", body); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin grant: expected 403, got %d", w.Code)
	}

	env.current = env.admin
	w := env.do(t, "POST", "/api/v1/admin/subscriptions", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sub models.UserSubscription
	decode(t, w, &sub)
	if sub.RemainingCredits != 3 || sub.UserID != env.client.ID {
		t.Errorf("unexpected subscription: %+v", sub)
	}

	env.current = env.client
	var subs []models.UserSubscription
	decode(t, env.do(t, "GET", "/api/v1/subscriptions/me", nil), &subs)
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription for the client, got %d", len(subs))
	}

	env.current = env.admin
	w = env.do(t, "POST", "/api/v1/admin/subscriptions/"+sub.ID.String()+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/v1/admin/subscriptions/"+uuid.NewString()+"/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown subscription, got %d", w.Code)
	}
}

func TestAdminCreateUser(t *testing.T) {
	env := setupEnv(t)
	env.current = env.admin

	body := map[string]interface{}{
		"username":     "initech",
		"email":        "ops@initech.test",
		"password":     "correct horse",
		"company_name": "Initech",
	}
	if w := env.do(t, "POST", "/api/v1/admin/users", body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, "POST", "/api/v1/admin/users", body); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a duplicate user, got %d", w.Code)
	}

	body["username"] = "short"
	body["email"] = "short@initech.test"
	body["password"] = "abc"
	if w := env.do(t, "POST", "/api/v1/admin/users", body); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a short password, got %d", w.Code)
	}
}

func TestListPlans(t *testing.T) {
	env := setupEnv(t)

	var plans []models.SubscriptionPlan
	w := env.do(t, "GET", "/api/v1/subscriptions/plans", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &plans)
	if len(plans) != len(servicetag.SubscriptionTitles()) {
		t.Errorf("expected %d plans, got %d", len(servicetag.SubscriptionTitles()), len(plans))
	}
}

func TestAdminUsersAndAdminFlag(t *testing.T) {
	env := setupEnv(t)
	env.current = env.admin

	var users []service.UserView
	w := env.do(t, "GET", "/api/v1/admin/users", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	decode(t, w, &users)
	admins := 0
	for _, u := range users {
		if u.IsAdmin {
			admins++
			if u.ID != env.admin.ID {
				t.Errorf("unexpected admin %s", u.Username)
			}
		}
	}
	if len(users) != 3 || admins != 1 {
		t.Fatalf("expected 3 users with 1 admin, got %d/%d", len(users), admins)
	}

	path := "/api/v1/admin/users/" + env.client.ID.String() + "/admin"
	if w := env.do(t, "PUT", path, map[string]interface{}{"is_admin": true}); w.Code != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ok, _ := rbac.IsAdmin(env.client.ID); !ok {
		t.Error("client should be admin after grant")
	}
	if w := env.do(t, "PUT", path, map[string]interface{}{"is_admin": false}); w.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", w.Code)
	}
	if ok, _ := rbac.IsAdmin(env.client.ID); ok {
		t.Error("client should not be admin after revoke")
	}

	self := "/api/v1/admin/users/" + env.admin.ID.String() + "/admin"
	if w := env.do(t, "PUT", self, map[string]interface{}{"is_admin": false}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 revoking own admin, got %d", w.Code)
	}
	if w := env.do(t, "PUT", "/api/v1/admin/users/nope/admin", map[string]interface{}{"is_admin": true}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", w.Code)
	}

	env.current = env.client
	if w := env.do(t, "GET", "/api/v1/admin/users", nil); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a non-admin, got %d", w.Code)
	}
}

func TestErrorsDefaultToOKEnvelope(t *testing.T) {
	env := newEnv(t, false, 0)

	w := env.do(t, "POST", "/api/v1/direct", directBody("Sales Director"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w, nil)
	if resp.Success || resp.Error != "no_subscription" || resp.Message == "" {
		t.Errorf("unexpected envelope: %+v", resp)
	}

	cases := []struct {
		method, path string
		reason       string
	}{
		{"GET", "/api/v1/direct/999", ""},
		{"DELETE", "/api/v1/direct/1?hard=maybe", "validation_failed"},
		{"PUT", "/api/v1/direct/abc", "validation_failed"},
		{"GET", "/api/v1/roles/next-client-no/1234", "invalid_service_tag"},
	}
	for _, tc := range cases {
		w := env.do(t, tc.method, tc.path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s %s: expected 200, got %d", tc.method, tc.path, w.Code)
			continue
		}
		resp := decode(t, w, nil)
		if resp.Success || resp.Error == "" {
			t.Errorf("%s %s: expected a failed envelope, got %+v", tc.method, tc.path, resp)
		}
		if tc.reason != "" && resp.Error != tc.reason {
			t.Errorf("%s %s: expected reason %q, got %q", tc.method, tc.path, tc.reason, resp.Error)
		}
	}

	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)
	if w := env.do(t, "POST", "/api/v1/direct", directBody("Sales Director")); w.Code != http.StatusCreated {
		t.Errorf("successful create should keep 201, got %d", w.Code)
	}
}

func TestCreateRole_MultipartBodyTooLarge(t *testing.T) {
	const maxAttachment = 1024
	env := newEnv(t, true, maxAttachment)
	env.giveCredits(t, env.client, servicetag.TitleDirect, 1)

	big := append(append([]byte{}, samplePDF...), bytes.Repeat([]byte("0"), maxAttachment+multipartOverhead)...)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, multipartRequest(t, "/api/v1/direct", directBody("Head of Ops"), "jd.pdf", big))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w, nil)
	if !strings.Contains(resp.Message, "attachment exceeds 1024 bytes") {
		t.Errorf("expected a size error, got %q", resp.Message)
	}

	var sub models.UserSubscription
	env.db.First(&sub, "user_id = ?", env.client.ID)
	if sub.RemainingCredits != 1 {
		t.Errorf("credit should not be spent, remaining %d", sub.RemainingCredits)
	}
}
