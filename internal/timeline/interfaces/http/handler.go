package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	apihttp "reservoir-ops/internal/api/http"
	"reservoir-ops/internal/audit"
	"reservoir-ops/internal/auth"
	outlets "reservoir-ops/internal/outlets/domain"
	timelineapp "reservoir-ops/internal/timeline/application"
	timeline "reservoir-ops/internal/timeline/domain"
	timelineinterfaces "reservoir-ops/internal/timeline/interfaces"
	"reservoir-ops/internal/units"
)

// PathFor returns the route prefix serving a change kind.
func PathFor(kind timeline.Kind) string {
	return "/api/v1/" + string(kind) + "-changes/"
}

// ChangeHandler serves one change kind's timeline.
type ChangeHandler struct {
	kind        timeline.Kind
	prefix      string
	service     *timelineapp.Service
	auditLogger audit.Logger
	logger      *log.Logger
	exportTitle string
	unitsFor    func(projectID outlets.LocationID) units.System
	now         func() time.Time
}

// Option customizes a ChangeHandler.
type Option func(*ChangeHandler)

// WithExportTitle sets the heading of XLSX and PDF exports.
func WithExportTitle(title string) Option {
	return func(h *ChangeHandler) {
		h.exportTitle = title
	}
}

// WithUnitDefaults resolves the unit system used when a request names none.
func WithUnitDefaults(fn func(projectID outlets.LocationID) units.System) Option {
	return func(h *ChangeHandler) {
		if fn != nil {
			h.unitsFor = fn
		}
	}
}

// WithClock overrides the export timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(h *ChangeHandler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewChangeHandler constructs a handler for kind.
func NewChangeHandler(kind timeline.Kind, service *timelineapp.Service, auditLogger audit.Logger, logger *log.Logger, opts ...Option) (*ChangeHandler, error) {
	if service == nil {
		return nil, errors.New("changes handler: nil service")
	}
	if _, ok := timeline.ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("changes handler: unknown kind %q", kind)
	}
	h := &ChangeHandler{
		kind:        kind,
		prefix:      PathFor(kind),
		service:     service,
		auditLogger: auditLogger,
		logger:      logger,
		unitsFor:    func(outlets.LocationID) units.System { return units.EN },
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// ServeHTTP handles /api/v1/{kind}-changes/{office}/{project}[/export.{xlsx,pdf,csv}].
func (h *ChangeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := apihttp.PathParams(r.URL.Path, h.prefix)
	if len(params) < 2 || len(params) > 3 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	office := params[0]
	if err := auth.EnsureOffice(r.Context(), office); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	projectID := outlets.NewLocationID(office, params[1])

	if len(params) == 3 {
		format, ok := strings.CutPrefix(params[2], "export.")
		if !ok || r.Method != http.MethodGet {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		h.handleExport(w, r, projectID, format)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleRetrieve(w, r, projectID)
	case http.MethodPost:
		h.handleStore(w, r, projectID)
	case http.MethodDelete:
		h.handleDelete(w, r, projectID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type retrieveQuery struct {
	window   timeline.Window
	system   units.System
	pageSize int
}

func (h *ChangeHandler) parseRetrieve(r *http.Request, projectID outlets.LocationID) (retrieveQuery, error) {
	var q retrieveQuery
	begin, err := apihttp.ParseTimeQuery(r, "begin")
	if err != nil {
		return q, err
	}
	end, err := apihttp.ParseTimeQuery(r, "end")
	if err != nil {
		return q, err
	}
	q.window = timeline.NewWindow(begin, end)
	if q.window.StartInclusive, err = apihttp.ParseBoolQuery(r, "start-time-inclusive", true); err != nil {
		return q, err
	}
	if q.window.EndInclusive, err = apihttp.ParseBoolQuery(r, "end-time-inclusive", false); err != nil {
		return q, err
	}
	if q.pageSize, err = apihttp.ParseIntQuery(r, "page-size", 0); err != nil {
		return q, err
	}
	q.system = h.unitsFor(projectID)
	if raw := r.URL.Query().Get("unit-system"); raw != "" {
		if q.system, err = units.ParseSystem(raw); err != nil {
			return q, errors.New("unit-system must be EN or SI")
		}
	}
	return q, nil
}

func (h *ChangeHandler) handleRetrieve(w http.ResponseWriter, r *http.Request, projectID outlets.LocationID) {
	q, err := h.parseRetrieve(r, projectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changes, err := h.service.RetrieveOperationalChanges(r.Context(), h.kind, projectID, q.window, q.system, q.pageSize)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, changes)
}

func (h *ChangeHandler) handleExport(w http.ResponseWriter, r *http.Request, projectID outlets.LocationID, format string) {
	q, err := h.parseRetrieve(r, projectID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changes, err := h.service.RetrieveOperationalChanges(r.Context(), h.kind, projectID, q.window, q.system, q.pageSize)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	meta := timelineinterfaces.ExportMeta{
		Title:     h.exportTitle,
		Kind:      h.kind,
		OfficeID:  projectID.OfficeID,
		ProjectID: projectID.Name,
		Window:    q.window,
		Generated: h.now(),
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "xlsx":
		data, err = timelineinterfaces.BuildChangesXLSX(meta, changes)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = timelineinterfaces.BuildChangesPDF(meta, changes)
		contentType = "application/pdf"
	case "csv":
		data, err = timelineinterfaces.BuildChangesCSV(changes)
		contentType = "text/csv"
	default:
		http.Error(w, "unsupported export format", http.StatusNotFound)
		return
	}
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("changes: export failed kind=%s project=%s format=%s err=%v", h.kind, projectID, format, err)
		}
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("%s-%s-changes.%s", projectID.Name, h.kind, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ChangeHandler) handleStore(w http.ResponseWriter, r *http.Request, projectID outlets.LocationID) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var changes []timeline.Change
	if err := json.Unmarshal(body, &changes); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	for i := range changes {
		if changes[i].ProjectID.IsZero() {
			changes[i].ProjectID = projectID
		}
		if changes[i].ProjectID != projectID {
			http.Error(w, "project-id must match the request path", http.StatusBadRequest)
			return
		}
	}

	var opts timeline.StoreOptions
	if opts.FailIfExists, err = apihttp.ParseBoolQuery(r, "fail-if-exists", true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.OverrideProtection, err = apihttp.ParseBoolQuery(r, "override-protection", false); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.StoreOperationalChanges(r.Context(), h.kind, changes, opts); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, map[string]int{"stored": len(changes)})

	meta, _ := json.Marshal(map[string]any{
		"count":               len(changes),
		"fail_if_exists":      opts.FailIfExists,
		"override_protection": opts.OverrideProtection,
	})
	entry := audit.Entry{ChangeCount: len(changes), Metadata: meta, PayloadDigest: audit.DigestJSON(body)}
	if first, last, ok := changeSpan(changes); ok {
		entry = entry.WithWindow(first, last)
	}
	h.logAudit(r, "store", projectID, entry)
}

// changeSpan returns the earliest and latest change dates.
func changeSpan(changes []timeline.Change) (first, last time.Time, ok bool) {
	for i, change := range changes {
		if i == 0 || change.ChangeDate.Before(first) {
			first = change.ChangeDate
		}
		if i == 0 || change.ChangeDate.After(last) {
			last = change.ChangeDate
		}
	}
	return first, last, len(changes) > 0
}

func (h *ChangeHandler) handleDelete(w http.ResponseWriter, r *http.Request, projectID outlets.LocationID) {
	override, err := apihttp.ParseBoolQuery(r, "override-protection", false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("change-date") != "" {
		at, err := apihttp.ParseTimeQuery(r, "change-date")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.service.DeleteOperationalChange(r.Context(), h.kind, projectID, at, override); err != nil {
			apihttp.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		meta, _ := json.Marshal(map[string]any{"change_date": apihttp.FormatTime(at), "override_protection": override})
		h.logAudit(r, "delete", projectID, audit.Entry{ChangeCount: 1, Metadata: meta}.WithWindow(at, at))
		return
	}

	begin, err := apihttp.ParseTimeQuery(r, "begin")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := apihttp.ParseTimeQuery(r, "end")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window := timeline.ClosedWindow(begin, end)
	if window.StartInclusive, err = apihttp.ParseBoolQuery(r, "start-time-inclusive", true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if window.EndInclusive, err = apihttp.ParseBoolQuery(r, "end-time-inclusive", true); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.service.DeleteOperationalChanges(r.Context(), h.kind, projectID, window, override)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, result)
	meta, _ := json.Marshal(map[string]any{
		"begin":               apihttp.FormatTime(begin),
		"end":                 apihttp.FormatTime(end),
		"deleted":             result.Deleted,
		"protected":           result.Protected,
		"override_protection": override,
	})
	h.logAudit(r, "delete_window", projectID, audit.Entry{ChangeCount: result.Deleted, Metadata: meta}.WithWindow(begin, end))
}

// logAudit completes entry with the caller and resource, then writes it.
func (h *ChangeHandler) logAudit(r *http.Request, action string, projectID outlets.LocationID, entry audit.Entry) {
	if h.auditLogger == nil {
		return
	}
	entry.OfficeID = projectID.OfficeID
	entry.Actor = auth.SubjectFromContext(r.Context())
	entry.Role = string(auth.RoleFromContext(r.Context()))
	entry.Action = string(h.kind) + "_changes." + action
	entry.ResourceType = string(h.kind) + "_change"
	entry.ResourceID = projectID.Name
	entry.ProjectID = projectID.Name
	entry.ChangeKind = string(h.kind)
	entry = audit.FromRequest(r, entry)
	if err := h.auditLogger.Log(r.Context(), entry); err != nil && h.logger != nil {
		h.logger.Printf("changes: audit log failed action=%s err=%v", entry.Action, err)
	}
}
