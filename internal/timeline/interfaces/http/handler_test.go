package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"reservoir-ops/internal/audit"
	outlets "reservoir-ops/internal/outlets/domain"
	"reservoir-ops/internal/storage/memory"
	timelineapp "reservoir-ops/internal/timeline/application"
	timeline "reservoir-ops/internal/timeline/domain"
	"reservoir-ops/internal/units"
)

const basePath = "/api/v1/gate-changes/SWT/KEYS"

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

func newGateHandler(t *testing.T, opts ...Option) *ChangeHandler {
	t.Helper()
	return newAuditedGateHandler(t, nil, opts...)
}

func newAuditedGateHandler(t *testing.T, auditLogger audit.Logger, opts ...Option) *ChangeHandler {
	t.Helper()
	store := memory.NewStore()
	project := outlets.NewLocationID("SWT", "KEYS")
	for _, name := range []string{"KEYS-Gate1", "KEYS-Gate2"} {
		outlet := &outlets.Outlet{ID: outlets.NewLocationID("SWT", name), ProjectID: project}
		if err := store.Outlets().Save(context.Background(), outlet, true); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	svc, err := timelineapp.NewService(store.Changes(), store.Outlets(), timelineapp.WithConverter(units.NewTableConverter()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	h, err := NewChangeHandler(timeline.KindGate, svc, auditLogger, nil, opts...)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return h
}

func changeJSON(at string, protected bool, opening float64) string {
	change := map[string]any{
		"change-date":                at,
		"protected":                  protected,
		"discharge-computation-type": map[string]any{"office-id": "SWT", "display-value": "Adjusted", "active": true},
		"reason-type":                map[string]any{"office-id": "SWT", "display-value": "Flood", "active": true},
		"settings": []map[string]any{{
			"location-id":   map[string]string{"office-id": "SWT", "name": "KEYS-Gate1"},
			"opening":       opening,
			"opening-units": "ft",
		}},
	}
	data, _ := json.Marshal(change)
	return string(data)
}

func body(changes ...string) string {
	return "[" + strings.Join(changes, ",") + "]"
}

func do(h http.Handler, method, target, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedChanges(t *testing.T, h http.Handler) {
	t.Helper()
	payload := body(
		changeJSON("2024-01-01T00:00:00Z", false, 1),
		changeJSON("2024-01-02T00:00:00Z", true, 2),
		changeJSON("2024-01-03T00:00:00Z", false, 10),
	)
	rec := do(h, http.MethodPost, basePath, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("store: %d %s", rec.Code, rec.Body.String())
	}
}

func decodeChanges(t *testing.T, rec *httptest.ResponseRecorder) []timeline.Change {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var out []timeline.Change
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestChangeHandlerRetrieveWindows(t *testing.T) {
	h := newGateHandler(t)
	seedChanges(t, h)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "default half open", query: "begin=2024-01-01T00:00:00Z&end=2024-01-03T00:00:00Z", want: []string{"01", "02"}},
		{name: "closed", query: "begin=2024-01-01T00:00:00Z&end=2024-01-03T00:00:00Z&end-time-inclusive=true", want: []string{"01", "02", "03"}},
		{name: "open start", query: "begin=2024-01-01T00:00:00Z&end=2024-01-04T00:00:00Z&start-time-inclusive=false", want: []string{"02", "03"}},
		{name: "head page", query: "begin=2024-01-01T00:00:00Z&end=2024-01-04T00:00:00Z&page-size=1", want: []string{"01"}},
		{name: "tail page", query: "begin=2024-01-01T00:00:00Z&end=2024-01-04T00:00:00Z&page-size=-2", want: []string{"02", "03"}},
		{name: "empty", query: "begin=2025-01-01T00:00:00Z&end=2025-01-02T00:00:00Z", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeChanges(t, do(h, http.MethodGet, basePath+"?"+tt.query, ""))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d changes, got %d", len(tt.want), len(got))
			}
			for i, day := range tt.want {
				if got[i].ChangeDate.Format("02") != day {
					t.Fatalf("position %d: expected day %s, got %s", i, day, got[i].ChangeDate)
				}
			}
		})
	}
}

func TestChangeHandlerUnitSystem(t *testing.T) {
	h := newGateHandler(t, WithUnitDefaults(func(outlets.LocationID) units.System { return units.SI }))
	seedChanges(t, h)

	got := decodeChanges(t, do(h, http.MethodGet, basePath+"?begin=2024-01-03T00:00:00Z&end=2024-01-04T00:00:00Z", ""))
	if len(got) != 1 || got[0].Settings[0].OpeningUnits != "m" {
		t.Fatalf("expected project default SI, got %+v", got)
	}
	got = decodeChanges(t, do(h, http.MethodGet, basePath+"?begin=2024-01-03T00:00:00Z&end=2024-01-04T00:00:00Z&unit-system=EN", ""))
	if *got[0].Settings[0].Opening != 10 || got[0].Settings[0].OpeningUnits != "ft" {
		t.Fatalf("expected explicit EN, got %+v", got[0].Settings[0])
	}
	if rec := do(h, http.MethodGet, basePath+"?begin=2024-01-03T00:00:00Z&end=2024-01-04T00:00:00Z&unit-system=XX", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown unit system, got %d", rec.Code)
	}
}

func TestChangeHandlerStoreConflictsAndValidation(t *testing.T) {
	h := newGateHandler(t)
	seedChanges(t, h)

	tests := []struct {
		name    string
		target  string
		payload string
		want    int
	}{
		{name: "existing date", target: basePath, payload: body(changeJSON("2024-01-01T00:00:00Z", false, 3)), want: http.StatusConflict},
		{name: "upsert", target: basePath + "?fail-if-exists=false", payload: body(changeJSON("2024-01-01T00:00:00Z", false, 3)), want: http.StatusCreated},
		{name: "protected", target: basePath + "?fail-if-exists=false", payload: body(changeJSON("2024-01-02T00:00:00Z", false, 3)), want: http.StatusForbidden},
		{name: "override", target: basePath + "?fail-if-exists=false&override-protection=true", payload: body(changeJSON("2024-01-02T00:00:00Z", false, 3)), want: http.StatusCreated},
		{name: "bad json", target: basePath, payload: "{", want: http.StatusBadRequest},
		{name: "bad flag", target: basePath + "?fail-if-exists=maybe", payload: body(), want: http.StatusBadRequest},
		{name: "unknown project", target: "/api/v1/gate-changes/SWT/TENK", payload: body(changeJSON("2024-01-05T00:00:00Z", false, 1)), want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, tt.target, tt.payload)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d body %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestChangeHandlerDelete(t *testing.T) {
	h := newGateHandler(t)
	seedChanges(t, h)

	rec := do(h, http.MethodDelete, basePath+"?begin=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("window delete: %d %s", rec.Code, rec.Body.String())
	}
	var result timeline.DeleteResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Deleted != 1 || result.Protected != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	if rec = do(h, http.MethodDelete, basePath+"?change-date=2024-01-02T00:00:00Z", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected protected single delete to fail, got %d", rec.Code)
	}
	if rec = do(h, http.MethodDelete, basePath+"?change-date=2024-01-02T00:00:00Z&override-protection=true", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("override delete: %d", rec.Code)
	}
	if rec = do(h, http.MethodDelete, basePath+"?change-date=2024-01-02T00:00:00Z", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	left := decodeChanges(t, do(h, http.MethodGet, basePath+"?begin=2024-01-01T00:00:00Z&end=2024-01-04T00:00:00Z", ""))
	if len(left) != 1 || left[0].ChangeDate.Format("02") != "03" {
		t.Fatalf("expected only the third change to remain, got %+v", left)
	}
}

func TestChangeHandlerExports(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	h := newGateHandler(t, WithExportTitle("Keystone Gate Changes"), WithClock(clock))
	seedChanges(t, h)

	query := "?begin=2024-01-01T00:00:00Z&end=2024-01-04T00:00:00Z"
	tests := []struct {
		format      string
		contentType string
		want        int
	}{
		{format: "xlsx", contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", want: http.StatusOK},
		{format: "pdf", contentType: "application/pdf", want: http.StatusOK},
		{format: "csv", contentType: "text/csv", want: http.StatusOK},
		{format: "docx", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rec := do(h, http.MethodGet, basePath+"/export."+tt.format+query, "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want != http.StatusOK {
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.contentType {
				t.Fatalf("unexpected content type %q", got)
			}
			if !strings.Contains(rec.Header().Get("Content-Disposition"), "KEYS-gate-changes."+tt.format) {
				t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
			}
			if rec.Body.Len() == 0 {
				t.Fatalf("empty export")
			}
		})
	}
}

func TestChangeHandlerRouting(t *testing.T) {
	h := newGateHandler(t)
	if rec := do(h, http.MethodGet, "/api/v1/gate-changes/SWT", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without project, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPut, basePath, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, basePath+"?end=2024-01-01T00:00:00Z", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without begin, got %d", rec.Code)
	}
	if _, err := NewChangeHandler("spill", nil, nil, nil); err == nil {
		t.Fatalf("expected constructor error")
	}
}

func TestChangeHandlerAuditEntries(t *testing.T) {
	recorder := &recordingAudit{}
	h := newAuditedGateHandler(t, recorder)
	seedChanges(t, h)
	if rec := do(h, http.MethodDelete, basePath+"?begin=2024-01-01T00:00:00Z&end=2024-01-03T00:00:00Z", ""); rec.Code != http.StatusOK {
		t.Fatalf("window delete: %d", rec.Code)
	}

	if len(recorder.entries) != 2 {
		t.Fatalf("expected two audit entries, got %d", len(recorder.entries))
	}
	stored, deleted := recorder.entries[0], recorder.entries[1]
	if stored.Action != "gate_changes.store" || stored.ChangeKind != "gate" || stored.ChangeCount != 3 || stored.PayloadDigest == "" {
		t.Fatalf("unexpected store entry %+v", stored)
	}
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if stored.WindowStart == nil || !stored.WindowStart.Equal(first) || !stored.WindowEnd.Equal(first.AddDate(0, 0, 2)) {
		t.Fatalf("unexpected store window %v %v", stored.WindowStart, stored.WindowEnd)
	}
	if deleted.Action != "gate_changes.delete_window" || deleted.ChangeCount != 2 || deleted.ProjectID != "KEYS" {
		t.Fatalf("unexpected delete entry %+v", deleted)
	}
}
