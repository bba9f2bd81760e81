package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"reservoir-ops/internal/audit"
	"reservoir-ops/internal/auth"
	outletapp "reservoir-ops/internal/outlets/application"
	outlets "reservoir-ops/internal/outlets/domain"
	"reservoir-ops/internal/storage/memory"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Action)
	}
	return out
}

type fixture struct {
	outlets  *OutletHandler
	virtuals *VirtualOutletHandler
	audit    *recordingAudit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	outletSvc, err := outletapp.NewOutletService(store.Outlets())
	if err != nil {
		t.Fatalf("outlet service: %v", err)
	}
	voSvc, err := outletapp.NewVirtualOutletService(store.Outlets(), store.VirtualOutlets())
	if err != nil {
		t.Fatalf("virtual outlet service: %v", err)
	}
	recorder := &recordingAudit{}
	oh, err := NewOutletHandler(outletSvc, recorder, nil)
	if err != nil {
		t.Fatalf("outlet handler: %v", err)
	}
	vh, err := NewVirtualOutletHandler(voSvc, recorder, nil)
	if err != nil {
		t.Fatalf("virtual outlet handler: %v", err)
	}
	return fixture{outlets: oh, virtuals: vh, audit: recorder}
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func storeOutlets(t *testing.T, h http.Handler, names ...string) {
	t.Helper()
	for _, name := range names {
		rec := serve(h, http.MethodPost, "/api/v1/outlets/SWT/"+name, `{"project-id":"KEYS","rating-group-id":"Rating-`+name+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("store %s: status %d body %s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestOutletHandlerLifecycle(t *testing.T) {
	f := newFixture(t)
	storeOutlets(t, f.outlets, "KEYS-Gate1", "KEYS-Gate2")

	rec := serve(f.outlets, http.MethodPost, "/api/v1/outlets/SWT/KEYS-Gate1", `{"project-id":"KEYS"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
	rec = serve(f.outlets, http.MethodPost, "/api/v1/outlets/SWT/KEYS-Gate1?fail-if-exists=false", `{"project-id":"KEYS","rating-spec-id":"KEYS-Gate1.Opening-Elev"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected upsert, got %d", rec.Code)
	}

	rec = serve(f.outlets, http.MethodGet, "/api/v1/outlets/SWT/KEYS-Gate1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	var got outlets.Outlet
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RatingSpecID != "KEYS-Gate1.Opening-Elev" || got.ProjectID.Name != "KEYS" {
		t.Fatalf("unexpected outlet %+v", got)
	}

	rec = serve(f.outlets, http.MethodGet, "/api/v1/outlets/SWT?project=KEYS", "")
	var list []outlets.Outlet
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("expected two outlets, got %s", rec.Body.String())
	}

	rec = serve(f.outlets, http.MethodPatch, "/api/v1/outlets/SWT/KEYS-Gate2?name=KEYS-Gate3", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename: %d %s", rec.Code, rec.Body.String())
	}
	if rec = serve(f.outlets, http.MethodGet, "/api/v1/outlets/SWT/KEYS-Gate2", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected old name gone, got %d", rec.Code)
	}

	rec = serve(f.outlets, http.MethodDelete, "/api/v1/outlets/SWT/KEYS-Gate3", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}

	want := []string{"outlet.store", "outlet.store", "outlet.store", "outlet.rename", "outlet.delete"}
	if got := f.audit.actions(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("audit actions %v", got)
	}
}

func TestOutletHandlerErrors(t *testing.T) {
	f := newFixture(t)
	storeOutlets(t, f.outlets, "KEYS-Gate1")

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "missing project", method: http.MethodGet, target: "/api/v1/outlets/SWT", want: http.StatusBadRequest},
		{name: "unknown outlet", method: http.MethodGet, target: "/api/v1/outlets/SWT/KEYS-Nope", want: http.StatusNotFound},
		{name: "bad json", method: http.MethodPost, target: "/api/v1/outlets/SWT/KEYS-Gate9", body: "{", want: http.StatusBadRequest},
		{name: "self project", method: http.MethodPost, target: "/api/v1/outlets/SWT/KEYS", body: `{"project-id":"KEYS"}`, want: http.StatusBadRequest},
		{name: "rename without name", method: http.MethodPatch, target: "/api/v1/outlets/SWT/KEYS-Gate1", want: http.StatusBadRequest},
		{name: "bad delete method", method: http.MethodDelete, target: "/api/v1/outlets/SWT/KEYS-Gate1?method=SOME", want: http.StatusBadRequest},
		{name: "list method", method: http.MethodPost, target: "/api/v1/outlets/SWT", want: http.StatusMethodNotAllowed},
		{name: "too deep", method: http.MethodGet, target: "/api/v1/outlets/SWT/a/b", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.outlets, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d body %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestOutletHandlerOfficeScope(t *testing.T) {
	f := newFixture(t)
	storeOutlets(t, f.outlets, "KEYS-Gate1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outlets/SWT/KEYS-Gate1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "NWK", auth.RoleAdmin, "user-1"))
	rec := httptest.NewRecorder()
	f.outlets.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign office, got %d", rec.Code)
	}
}

func TestVirtualOutletHandlerGraph(t *testing.T) {
	f := newFixture(t)
	storeOutlets(t, f.outlets, "KEYS-Gate1", "KEYS-Gate2", "KEYS-Conduit")

	body := `{"virtual-outlet-id":"Spillway","virtual-records":[
		{"outlet-id":"KEYS-Gate1","downstream-outlet-ids":["KEYS-Conduit"]},
		{"outlet-id":"KEYS-Gate2","downstream-outlet-ids":["KEYS-Conduit"]},
		{"outlet-id":"KEYS-Conduit"}]}`
	rec := serve(f.virtuals, http.MethodPost, "/api/v1/virtual-outlets/SWT/KEYS", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("store: %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(f.virtuals, http.MethodGet, "/api/v1/virtual-outlets/SWT/KEYS/Spillway", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	var got virtualOutletDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Records) != 3 || len(got.Roots) != 2 || len(got.Terminals) != 1 || got.Terminals[0] != "KEYS-Conduit" {
		t.Fatalf("unexpected graph %+v", got)
	}

	rec = serve(f.virtuals, http.MethodGet, "/api/v1/virtual-outlets/SWT/KEYS", "")
	var list []virtualOutletDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one grouping, got %s", rec.Body.String())
	}

	rec = serve(f.virtuals, http.MethodDelete, "/api/v1/virtual-outlets/SWT/KEYS/Spillway", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = serve(f.virtuals, http.MethodGet, "/api/v1/virtual-outlets/SWT/KEYS/Spillway", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestVirtualOutletHandlerRejectsInvalidGraphs(t *testing.T) {
	f := newFixture(t)
	storeOutlets(t, f.outlets, "KEYS-Gate1", "KEYS-Gate2")

	tests := []struct {
		name string
		body string
	}{
		{
			name: "cycle",
			body: `{"virtual-outlet-id":"Loop","virtual-records":[
				{"outlet-id":"KEYS-Gate1","downstream-outlet-ids":["KEYS-Gate2"]},
				{"outlet-id":"KEYS-Gate2","downstream-outlet-ids":["KEYS-Gate1"]}]}`,
		},
		{
			name: "dangling",
			body: `{"virtual-outlet-id":"Dangling","virtual-records":[
				{"outlet-id":"KEYS-Gate1","downstream-outlet-ids":["KEYS-Missing"]}]}`,
		},
		{
			name: "duplicate",
			body: `{"virtual-outlet-id":"Dup","virtual-records":[
				{"outlet-id":"KEYS-Gate1"},{"outlet-id":"KEYS-Gate1"}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.virtuals, http.MethodPost, "/api/v1/virtual-outlets/SWT/KEYS", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
			}
		})
	}
	if got := f.audit.actions(); len(got) != 2 {
		t.Fatalf("rejected graphs must not be audited, got %v", got)
	}
}
