package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-clients/form"
	"crm-clients/models"
	"crm-clients/notify"
	"crm-clients/registry"
	"crm-clients/render"
)

type testServer struct {
	router *gin.Engine
	ctrl   *form.Controller
	reg    *registry.Registry
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("database is locked") }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	store, err := models.Open(context.Background(), models.Options{
		Driver: models.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "crm.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	feed := notify.NewMemory(time.Minute)
	reg := registry.New()
	ctrl := form.New(store, reg, feed, form.WithErrorReporter(func(error, map[string]interface{}) {}))
	require.NoError(t, ctrl.Reload(context.Background()))

	router := gin.New()
	NewClientHandler(ctrl, feed, store).RegisterRoutes(router)
	return &testServer{router: router, ctrl: ctrl, reg: reg}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(target string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T, name, email, phone, clientType string) models.Client {
	t.Helper()
	body, _ := json.Marshal(ClientRequest{Name: name, Email: email, Phone: phone, Type: clientType})
	w := s.do(http.MethodPost, "/api/v1/clients", string(body))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var c models.Client
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	return c
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestHealthDegraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewClientHandler(nil, nil, downStore{}).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestCreateAndListClients(t *testing.T) {
	s := newTestServer(t)

	created := s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "vip")
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.TypeVIP, created.Type)
	s.create(t, "Bob Smith", "bob@y.org", "555 9876", "")

	w := s.do(http.MethodGet, "/api/v1/clients", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all render.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Equal(t, 2, all.Count)

	w = s.do(http.MethodGet, "/api/v1/clients?q=VIP", "")
	var vip render.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vip))
	require.Equal(t, 1, vip.Count)
	assert.Equal(t, "Ana Pérez", vip.Clients[0].Name)

	w = s.do(http.MethodGet, "/api/v1/clients?q=zzz", "")
	var none render.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &none))
	assert.Equal(t, 0, none.Count)
	assert.NotNil(t, none.Clients)
}

func TestCreateClientValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"short name", `{"name":"Jo","email":"jo@x.com","phone":"555-1234"}`},
		{"bad email", `{"name":"John Doe","email":"john@x","phone":"555-1234"}`},
		{"bad phone", `{"name":"John Doe","email":"john@x.com","phone":"12345"}`},
		{"bad type", `{"name":"John Doe","email":"john@x.com","phone":"555-1234","type":"gold"}`},
		{"missing fields", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/v1/clients", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Equal(t, 0, s.reg.Len())
}

func TestCreateDuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "")

	w := s.do(http.MethodPost, "/api/v1/clients", `{"name":"Other Person","email":"ana@x.com","phone":"555-0000"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), form.MsgDuplicateEmail)
	assert.Equal(t, 1, s.reg.Len())

	w = s.do(http.MethodGet, "/api/v1/notifications", "")
	assert.Contains(t, w.Body.String(), form.MsgDuplicateEmail)
}

func TestFormEditFlow(t *testing.T) {
	s := newTestServer(t)
	ana := s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "nuevo")

	w := s.do(http.MethodPost, "/api/v1/form/edit/999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/form/edit/"+itoa(ana.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"editing"`)

	w = s.do(http.MethodPut, "/api/v1/form/fields/phone", `{"value":"12"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"can_submit":false`)

	w = s.do(http.MethodPost, "/api/v1/form/submit", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(http.MethodPut, "/api/v1/form/fields/phone", `{"value":"555 0000"}`)
	assert.Contains(t, w.Body.String(), `"can_submit":true`)
	w = s.do(http.MethodPut, "/api/v1/form/fields/type", `{"value":"vip"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/form/submit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"idle"`)

	got, ok := s.reg.Find(ana.ID)
	require.True(t, ok)
	assert.Equal(t, "555 0000", got.Phone)
	assert.Equal(t, models.TypeVIP, got.Type)
}

func TestCreateWhileEditingKeepsStagedEdit(t *testing.T) {
	s := newTestServer(t)
	ana := s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "")
	require.NoError(t, s.ctrl.BeginEdit(ana.ID))
	s.ctrl.SetField("phone", "555 0000")

	bob := s.create(t, "Bob Smith", "bob@y.org", "555-9876", "")
	assert.NotEqual(t, ana.ID, bob.ID)
	assert.Equal(t, 2, s.reg.Len())

	state := s.ctrl.State()
	assert.Equal(t, form.Editing, state.Mode)
	assert.Equal(t, ana.ID, state.ID)
	assert.Equal(t, "555 0000", state.Phone)

	w := s.do(http.MethodPost, "/api/v1/form/submit", "")
	require.Equal(t, http.StatusOK, w.Code)
	got, ok := s.reg.Find(ana.ID)
	require.True(t, ok)
	assert.Equal(t, "555 0000", got.Phone)
}

func TestCreateIgnoresStagedType(t *testing.T) {
	s := newTestServer(t)
	s.ctrl.SetField("name", "Staged Person")
	require.True(t, s.ctrl.SetField(form.FieldType, "vip"))

	bob := s.create(t, "Bob Smith", "bob@y.org", "555-9876", "")
	assert.Equal(t, models.TypeRegular, bob.Type)
	stored, ok := s.reg.Find(bob.ID)
	require.True(t, ok)
	assert.Equal(t, models.TypeRegular, stored.Type)

	w := s.do(http.MethodPost, "/api/v1/clients", `{"name":"Other Person","email":"bob@y.org","phone":"555-0000"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	state := s.ctrl.State()
	assert.Equal(t, "Staged Person", state.Name)
	assert.Empty(t, state.Email)
	assert.Empty(t, state.Phone)
	assert.Equal(t, models.TypeVIP, state.Type)
}

func TestSetFieldUnknown(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/api/v1/form/fields/address", `{"value":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/form/fields/type", `{"value":"gold"}`).Code)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	s := newTestServer(t)
	ana := s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "")

	w := s.do(http.MethodDelete, "/api/v1/clients/"+itoa(ana.ID), "")
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	assert.Equal(t, 1, s.reg.Len())

	w = s.do(http.MethodDelete, "/api/v1/clients/"+itoa(ana.ID)+"?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, s.reg.Len())

	w = s.do(http.MethodDelete, "/api/v1/clients/"+itoa(ana.ID)+"?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodDelete, "/api/v1/clients/abc?confirm=true", "").Code)
}

func TestPageRendersFormAndList(t *testing.T) {
	s := newTestServer(t)
	s.create(t, "Ana Pérez", "ana@x.com", "555-1234", "vip")

	w := s.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Ana Pérez")
	assert.Contains(t, body, "VIP")
	assert.Contains(t, body, form.MsgAdded)
	assert.Contains(t, body, "Save Client")
	assert.Contains(t, body, `<button id="add-btn" disabled>`)
	assert.Contains(t, body, "addEventListener('input'")
	assert.Contains(t, body, "addEventListener('blur'")
	assert.Contains(t, body, "btn.disabled")

	w = s.do(http.MethodGet, "/?q=nobody", "")
	assert.Contains(t, w.Body.String(), render.EmptyMessage)
}

func TestUIRoutes(t *testing.T) {
	s := newTestServer(t)

	w := s.postForm("/ui/submit", url.Values{
		"name":  {"Ana Pérez"},
		"email": {"ana@x.com"},
		"phone": {"555-1234"},
		"type":  {"nuevo"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, 1, s.reg.Len())
	id := s.reg.Snapshot()[0].ID

	w = s.postForm("/ui/edit/"+itoa(id), nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, form.Editing, s.ctrl.Mode())

	page := s.do(http.MethodGet, "/", "").Body.String()
	assert.Contains(t, page, "Update")
	assert.Contains(t, page, "cancel-btn")

	s.postForm("/ui/cancel", nil)
	assert.Equal(t, form.Idle, s.ctrl.Mode())

	s.postForm("/ui/delete/"+itoa(id), url.Values{"confirm": {"false"}})
	assert.Equal(t, 1, s.reg.Len())

	s.postForm("/ui/delete/"+itoa(id), url.Values{"confirm": {"true"}})
	assert.Equal(t, 0, s.reg.Len())
}

func TestUISubmitInvalidFieldsWarns(t *testing.T) {
	s := newTestServer(t)

	w := s.postForm("/ui/submit", url.Values{
		"name":  {"Jo"},
		"email": {"jo@x.com"},
		"phone": {"555-1234"},
	})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, 0, s.reg.Len())

	page := s.do(http.MethodGet, "/", "").Body.String()
	assert.Contains(t, page, `<div class="toast warning"><span>`+form.MsgInvalidFields)
	assert.Contains(t, page, `value="Jo"`)
	assert.Contains(t, page, `class="invalid"`)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
