package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	apihttp "reservoir-ops/internal/api/http"
	"reservoir-ops/internal/audit"
	"reservoir-ops/internal/auth"
	outletapp "reservoir-ops/internal/outlets/application"
	outlets "reservoir-ops/internal/outlets/domain"
)

const outletsPrefix = "/api/v1/outlets/"

// OutletHandler provides outlet registry endpoints.
type OutletHandler struct {
	service     *outletapp.OutletService
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewOutletHandler constructs a handler.
func NewOutletHandler(service *outletapp.OutletService, auditLogger audit.Logger, logger *log.Logger) (*OutletHandler, error) {
	if service == nil {
		return nil, errors.New("outlets handler: nil service")
	}
	return &OutletHandler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

type outletRequest struct {
	ProjectID     string `json:"project-id"`
	RatingGroupID string `json:"rating-group-id,omitempty"`
	RatingSpecID  string `json:"rating-spec-id,omitempty"`
}

// ServeHTTP handles /api/v1/outlets/{office}[/{name}].
func (h *OutletHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := apihttp.PathParams(r.URL.Path, outletsPrefix)
	if len(params) == 0 || len(params) > 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	office := params[0]
	if err := auth.EnsureOffice(r.Context(), office); err != nil {
		apihttp.WriteError(w, err)
		return
	}

	if len(params) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, office)
		return
	}

	name := params[1]
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, office, name)
	case http.MethodPost:
		h.handleStore(w, r, office, name)
	case http.MethodPatch:
		h.handleRename(w, r, office, name)
	case http.MethodDelete:
		h.handleDelete(w, r, office, name)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *OutletHandler) handleList(w http.ResponseWriter, r *http.Request, office string) {
	project := r.URL.Query().Get("project")
	if project == "" {
		http.Error(w, "project is required", http.StatusBadRequest)
		return
	}
	list, err := h.service.RetrieveOutletsForProject(r.Context(), outlets.NewLocationID(office, project))
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, list)
}

func (h *OutletHandler) handleGet(w http.ResponseWriter, r *http.Request, office, name string) {
	outlet, err := h.service.RetrieveOutlet(r.Context(), office, name)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, outlet)
}

func (h *OutletHandler) handleStore(w http.ResponseWriter, r *http.Request, office, name string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req outletRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	failIfExists, err := apihttp.ParseBoolQuery(r, "fail-if-exists", true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	outlet := &outlets.Outlet{
		ID:            outlets.NewLocationID(office, name),
		ProjectID:     outlets.NewLocationID(office, req.ProjectID),
		RatingGroupID: req.RatingGroupID,
		RatingSpecID:  req.RatingSpecID,
	}
	if err := h.service.StoreOutlet(r.Context(), outlet, failIfExists); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, outlet)
	h.logAudit(r, "outlet.store", outlet.ID, req.ProjectID, body)
}

func (h *OutletHandler) handleRename(w http.ResponseWriter, r *http.Request, office, name string) {
	newName := r.URL.Query().Get("name")
	if newName == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := h.service.RenameOutlet(r.Context(), office, name, newName); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	meta, _ := json.Marshal(map[string]string{"from": name, "to": newName})
	h.logAudit(r, "outlet.rename", outlets.NewLocationID(office, newName), "", meta)
}

func (h *OutletHandler) handleDelete(w http.ResponseWriter, r *http.Request, office, name string) {
	rule := outlets.DeleteKey
	if raw := r.URL.Query().Get("method"); raw != "" {
		parsed, ok := outlets.ParseDeleteRule(raw)
		if !ok {
			http.Error(w, "invalid method", http.StatusBadRequest)
			return
		}
		rule = parsed
	}
	if err := h.service.DeleteOutlet(r.Context(), office, name, rule); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	meta, _ := json.Marshal(map[string]string{"method": string(rule)})
	h.logAudit(r, "outlet.delete", outlets.NewLocationID(office, name), "", meta)
}

func (h *OutletHandler) logAudit(r *http.Request, action string, id outlets.LocationID, project string, meta []byte) {
	writeAudit(r, h.auditLogger, h.logger, audit.Entry{
		OfficeID:     id.OfficeID,
		Action:       action,
		ResourceType: "outlet",
		ResourceID:   id.Name,
		ProjectID:    project,
		Metadata:     meta,
	})
}

func writeAudit(r *http.Request, auditLogger audit.Logger, logger *log.Logger, entry audit.Entry) {
	if auditLogger == nil {
		return
	}
	entry.Actor = auth.SubjectFromContext(r.Context())
	entry.Role = string(auth.RoleFromContext(r.Context()))
	entry = audit.FromRequest(r, entry)
	if err := auditLogger.Log(r.Context(), entry); err != nil && logger != nil {
		logger.Printf("outlets: audit log failed action=%s err=%v", entry.Action, err)
	}
}
