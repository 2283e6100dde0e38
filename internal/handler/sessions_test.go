package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/procura/api/internal/auth"
	"github.com/procura/api/internal/document"
	"github.com/procura/api/internal/handler"
	"github.com/procura/api/internal/middleware"
	"github.com/procura/api/internal/notify"
	"github.com/procura/api/internal/service"
	"github.com/sirupsen/logrus/hooks/test"
)

const fixture = `{
	"Work Packages": [{"name": "Electrical"}],
	"Category": [
		{"name": "Wiring", "work_package": "Electrical", "tax": 18},
		{"name": "Lighting", "work_package": "Electrical", "tax": 12}
	],
	"Items": [
		{"name": "ITEM-1", "item_name": "Copper Wire", "unit_name": "MTR", "category": "Wiring"},
		{"name": "ITEM-2", "item_name": "LED Panel", "unit_name": "NOS", "category": "Lighting"}
	],
	"Users": [{"name": "lead@example.com", "full_name": "Asha Rao"}],
	"Procurement Requests": [
		{"name": "PR-1", "work_package": "Electrical", "workflow_state": "Pending", "procurement_list": {"list": []}}
	]
}`

// --- Test helpers ---

// failingStore rejects every write.
type failingStore struct {
	*document.MemoryStore
}

func (failingStore) Create(context.Context, string, any) (string, error) {
	return "", errors.New("document store unavailable")
}

type testEnv struct {
	router http.Handler
	sink   *notify.Recorder
}

func setupRouter(t *testing.T, store document.Store) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sink := &notify.Recorder{}
	svc := service.New(store, service.WithLogger(logger), service.WithNotifier(sink))
	h := handler.NewSessionHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := r.Header.Get("X-Test-User")
			if user == "" {
				user = "lead@example.com"
			}
			role := r.Header.Get("X-Test-Role")
			if role == "" {
				role = "PROJECT_LEAD"
			}
			ctx := middleware.WithClaims(r.Context(), &auth.Claims{UserID: user, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/sessions", h.RegisterRoutes)
	return &testEnv{router: r, sink: sink}
}

func memoryStore(t *testing.T) *document.MemoryStore {
	t.Helper()
	mem, err := document.ParseFixture([]byte(fixture))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return mem
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func openSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := doRequest(t, router, "POST", "/sessions/", map[string]string{
		"mode":         "create",
		"work_package": "Electrical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("open: status %d body %s", rr.Code, rr.Body.String())
	}
	return decodeBody(t, rr)["id"].(string)
}

func sessionItems(t *testing.T, resp map[string]interface{}) []interface{} {
	t.Helper()
	session, ok := resp["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no session: %v", resp)
	}
	items, _ := session["items"].([]interface{})
	return items
}

// --- Open ---

func TestOpenSession(t *testing.T) {
	env := setupRouter(t, memoryStore(t))

	rr := doRequest(t, env.router, "POST", "/sessions/", map[string]string{
		"mode":         "create",
		"work_package": "Electrical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["work_package"] != "Electrical" {
		t.Errorf("work_package: got %v", resp["work_package"])
	}
	if items, _ := resp["items"].([]interface{}); len(items) != 0 {
		t.Errorf("items: got %v, want empty", resp["items"])
	}
}

func TestOpenSession_Validation(t *testing.T) {
	env := setupRouter(t, memoryStore(t))

	tests := []struct {
		name    string
		body    map[string]string
		want    int
		wantErr string
	}{
		{"missing mode", map[string]string{"work_package": "Electrical"}, http.StatusBadRequest, "mode is required"},
		{"bad mode", map[string]string{"mode": "draft"}, http.StatusBadRequest, "mode must be one of"},
		{"create without work package", map[string]string{"mode": "create"}, http.StatusBadRequest, "work_package is required"},
		{"edit without document", map[string]string{"mode": "edit"}, http.StatusBadRequest, "document is required"},
		{"unknown work package", map[string]string{"mode": "create", "work_package": "HVAC"}, http.StatusBadRequest, "unknown work package"},
		{"unknown document", map[string]string{"mode": "edit", "document": "PR-404"}, http.StatusNotFound, "not found"},
		{"resolve pending request", map[string]string{"mode": "resolve", "document": "PR-1"}, http.StatusConflict, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, env.router, "POST", "/sessions/", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, tt.want, rr.Body.String())
			}
			if msg := decodeBody(t, rr)["error"].(string); !strings.Contains(msg, tt.wantErr) {
				t.Errorf("error: got %q, want it to contain %q", msg, tt.wantErr)
			}
		})
	}
}

func TestOpenSession_InvalidBody(t *testing.T) {
	env := setupRouter(t, memoryStore(t))

	req := httptest.NewRequest("POST", "/sessions/", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Session access ---

func TestSessionAccess(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)

	rr := doRequest(t, env.router, "GET", "/sessions/"+id, nil, "X-Test-User", "other@example.com", "X-Test-Role", "PROJECT_MANAGER")
	if rr.Code != http.StatusNotFound {
		t.Errorf("other user: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = doRequest(t, env.router, "GET", "/sessions/"+id, nil, "X-Test-User", "admin@example.com", "X-Test-Role", "ADMIN")
	if rr.Code != http.StatusOK {
		t.Errorf("admin: got %d, want %d", rr.Code, http.StatusOK)
	}

	rr = doRequest(t, env.router, "GET", "/sessions/not-a-uuid", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Reference queries ---

func TestCatalogRoutes(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)

	rr := doRequest(t, env.router, "GET", "/sessions/"+id+"/categories", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("categories: status %d", rr.Code)
	}
	var cats []map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&cats)
	if len(cats) != 2 || cats[0]["id"] != "Wiring" {
		t.Errorf("categories: got %v", cats)
	}

	rr = doRequest(t, env.router, "GET", "/sessions/"+id+"/items?category=Lighting", nil)
	var items []map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&items)
	if len(items) != 1 || items[0]["label"] != "LED Panel" {
		t.Errorf("items: got %v", items)
	}

	rr = doRequest(t, env.router, "GET", "/sessions/"+id+"/search?q=coper+wire", nil)
	var matches []map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&matches)
	if len(matches) == 0 {
		t.Fatal("search: expected a match")
	}
	if item := matches[0]["item"].(map[string]interface{}); item["id"] != "ITEM-1" {
		t.Errorf("search: top match %v", item)
	}
}

// --- Editing ---

func TestAddEditDeleteUndo(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)
	base := "/sessions/" + id

	rr := doRequest(t, env.router, "POST", base+"/items", map[string]interface{}{
		"category": "Wiring",
		"item_id":  "ITEM-1",
		"quantity": 2,
		"unit":     "NOS",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add: status %d body %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	item := resp["item"].(map[string]interface{})
	if item["name"] != "ITEM-1" || item["item"] != "Copper Wire" || item["status"] != "Pending" {
		t.Errorf("add: item %v", item)
	}

	rr = doRequest(t, env.router, "PATCH", base+"/items/ITEM-1", map[string]interface{}{"quantity": 5, "comment": "urgent"})
	if rr.Code != http.StatusOK {
		t.Fatalf("edit: status %d body %s", rr.Code, rr.Body.String())
	}
	resp = decodeBody(t, rr)
	if resp["changed"] != true {
		t.Errorf("edit: changed %v", resp["changed"])
	}
	if q := resp["item"].(map[string]interface{})["quantity"]; q != float64(5) {
		t.Errorf("edit: quantity %v", q)
	}

	rr = doRequest(t, env.router, "PATCH", base+"/items/ITEM-9", map[string]interface{}{"quantity": 5})
	if rr.Code != http.StatusNotFound {
		t.Errorf("edit unknown: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = doRequest(t, env.router, "DELETE", base+"/items/ITEM-1", nil)
	resp = decodeBody(t, rr)
	if resp["changed"] != true || len(sessionItems(t, resp)) != 0 {
		t.Errorf("delete: %v", resp)
	}
	if n := resp["session"].(map[string]interface{})["undo_count"]; n != float64(1) {
		t.Errorf("delete: undo_count %v", n)
	}

	rr = doRequest(t, env.router, "DELETE", base+"/items/ITEM-1", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("delete again: got %d, want %d", rr.Code, http.StatusOK)
	}
	if resp = decodeBody(t, rr); resp["changed"] != false {
		t.Errorf("delete again: changed %v", resp["changed"])
	}

	rr = doRequest(t, env.router, "POST", base+"/undo", nil)
	resp = decodeBody(t, rr)
	if resp["changed"] != true || len(sessionItems(t, resp)) != 1 {
		t.Errorf("undo: %v", resp)
	}

	rr = doRequest(t, env.router, "POST", base+"/undo", nil)
	resp = decodeBody(t, rr)
	if resp["changed"] != false || resp["item"] != nil {
		t.Errorf("undo on empty stack: %v", resp)
	}
}

func TestAddItem_Duplicate(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)
	body := map[string]interface{}{"category": "Wiring", "item_id": "ITEM-1", "quantity": 2}

	if rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/items", body); rr.Code != http.StatusCreated {
		t.Fatalf("first add: status %d", rr.Code)
	}
	rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/items", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if msg := decodeBody(t, rr)["error"].(string); !strings.Contains(msg, "Copper Wire") {
		t.Errorf("error: %q", msg)
	}
	if last, ok := env.sink.Last(); !ok || last.Variant != "destructive" {
		t.Errorf("notification: %+v", last)
	}
}

func TestAddItem_Validation(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing category", map[string]interface{}{"item_id": "ITEM-1", "quantity": 1}},
		{"missing name and item", map[string]interface{}{"category": "Wiring", "quantity": 1}},
		{"zero quantity", map[string]interface{}{"category": "Wiring", "item_id": "ITEM-1", "quantity": 0}},
		{"ad-hoc without unit", map[string]interface{}{"category": "Wiring", "name": "Cable Tray", "quantity": 1}},
		{"item outside category", map[string]interface{}{"category": "Lighting", "item_id": "ITEM-1", "quantity": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/items", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d (body: %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestCategoryOutsideWorkPackage(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)
	base := "/sessions/" + id

	rr := doRequest(t, env.router, "POST", base+"/items", map[string]interface{}{"category": "Cement", "name": "Cement OPC 53", "unit": "BAGS", "quantity": 1})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("add: got %d, want %d (body: %s)", rr.Code, http.StatusBadRequest, rr.Body.String())
	}

	if rr := doRequest(t, env.router, "POST", base+"/items", map[string]interface{}{"category": "Wiring", "item_id": "ITEM-1", "quantity": 1}); rr.Code != http.StatusCreated {
		t.Fatalf("add: status %d", rr.Code)
	}
	rr = doRequest(t, env.router, "PATCH", base+"/items/ITEM-1", map[string]interface{}{"category": "Bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("edit: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(t, env.router, "POST", base+"/quick-add", map[string]string{"category": "Bogus", "text": "copper wire 3 coil"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("quick add: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = doRequest(t, env.router, "GET", base, nil)
	resp := decodeBody(t, rr)
	cats, _ := resp["categories"].([]interface{})
	if len(cats) != 1 || cats[0].(map[string]interface{})["name"] != "Wiring" {
		t.Errorf("categories: %v", cats)
	}
}

func TestQuickAdd(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)

	rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/quick-add", map[string]string{
		"category": "Wiring",
		"text":     "copper wire 3 coil\nflexible conduit 20mtr\n",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["added"] != float64(2) {
		t.Errorf("added: got %v, want 2", resp["added"])
	}
	if n := len(sessionItems(t, resp)); n != 2 {
		t.Errorf("session items: got %d, want 2", n)
	}
}

// --- Submit ---

func TestSubmit(t *testing.T) {
	store := memoryStore(t)
	env := setupRouter(t, store)
	id := openSession(t, env.router)

	rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty submit: got %d, want %d", rr.Code, http.StatusBadRequest)
	}

	doRequest(t, env.router, "POST", "/sessions/"+id+"/items", map[string]interface{}{
		"category": "Wiring", "item_id": "ITEM-1", "quantity": 2,
	})

	rr = doRequest(t, env.router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	payload := resp["payload"].(map[string]interface{})
	if payload["work_package"] != "Electrical" {
		t.Errorf("payload work_package: %v", payload["work_package"])
	}
	list := payload["procurement_list"].(map[string]interface{})["list"].([]interface{})
	if len(list) != 1 {
		t.Errorf("payload list: %v", list)
	}

	docs, _ := store.List(context.Background(), "Procurement Requests")
	if len(docs) != 2 {
		t.Errorf("stored requests: got %d, want 2", len(docs))
	}

	rr = doRequest(t, env.router, "GET", "/sessions/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("after submit: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	env := setupRouter(t, failingStore{memoryStore(t)})
	id := openSession(t, env.router)

	doRequest(t, env.router, "POST", "/sessions/"+id+"/items", map[string]interface{}{
		"category": "Wiring", "item_id": "ITEM-1", "quantity": 2,
	})

	rr := doRequest(t, env.router, "POST", "/sessions/"+id+"/submit", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}

	rr = doRequest(t, env.router, "GET", "/sessions/"+id, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("draft should survive: got %d", rr.Code)
	}
	if items := decodeBody(t, rr)["items"].([]interface{}); len(items) != 1 {
		t.Errorf("items after failure: %v", items)
	}
}

func TestAbandon(t *testing.T) {
	env := setupRouter(t, memoryStore(t))
	id := openSession(t, env.router)

	rr := doRequest(t, env.router, "DELETE", "/sessions/"+id, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	rr = doRequest(t, env.router, "GET", "/sessions/"+id, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("after abandon: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
