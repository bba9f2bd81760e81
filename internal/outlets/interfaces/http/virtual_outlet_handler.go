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

const virtualOutletsPrefix = "/api/v1/virtual-outlets/"

// VirtualOutletHandler provides virtual and compound outlet endpoints.
type VirtualOutletHandler struct {
	service     *outletapp.VirtualOutletService
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewVirtualOutletHandler constructs a handler.
func NewVirtualOutletHandler(service *outletapp.VirtualOutletService, auditLogger audit.Logger, logger *log.Logger) (*VirtualOutletHandler, error) {
	if service == nil {
		return nil, errors.New("virtual outlets handler: nil service")
	}
	return &VirtualOutletHandler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

type recordDTO struct {
	OutletID   string   `json:"outlet-id"`
	Downstream []string `json:"downstream-outlet-ids"`
}

type virtualOutletDTO struct {
	ID        string      `json:"virtual-outlet-id"`
	ProjectID string      `json:"project-id"`
	Compound  bool        `json:"compound,omitempty"`
	Records   []recordDTO `json:"virtual-records"`
	Roots     []string    `json:"roots,omitempty"`
	Terminals []string    `json:"terminals,omitempty"`
}

func (d virtualOutletDTO) toDomain(office, project string) *outlets.VirtualOutlet {
	vo := &outlets.VirtualOutlet{
		ProjectID: outlets.NewLocationID(office, project),
		ID:        outlets.NewLocationID(office, d.ID),
		Compound:  d.Compound,
		Records:   make([]outlets.VirtualOutletRecord, 0, len(d.Records)),
	}
	for _, rec := range d.Records {
		record := outlets.VirtualOutletRecord{OutletID: outlets.NewLocationID(office, rec.OutletID)}
		for _, down := range rec.Downstream {
			record.DownstreamOutletIDs = append(record.DownstreamOutletIDs, outlets.NewLocationID(office, down))
		}
		vo.Records = append(vo.Records, record)
	}
	return vo
}

func fromDomain(vo *outlets.VirtualOutlet, graph *outlets.Graph) virtualOutletDTO {
	dto := virtualOutletDTO{
		ID:        vo.ID.Name,
		ProjectID: vo.ProjectID.Name,
		Compound:  vo.Compound,
		Records:   make([]recordDTO, 0, len(vo.Records)),
	}
	for _, rec := range vo.Records {
		out := recordDTO{OutletID: rec.OutletID.Name, Downstream: names(rec.DownstreamOutletIDs)}
		dto.Records = append(dto.Records, out)
	}
	if graph != nil {
		dto.Roots = names(graph.Roots())
		dto.Terminals = names(graph.Terminals())
	}
	return dto
}

func names(ids []outlets.LocationID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Name)
	}
	return out
}

// ServeHTTP handles /api/v1/virtual-outlets/{office}/{project}[/{id}].
func (h *VirtualOutletHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := apihttp.PathParams(r.URL.Path, virtualOutletsPrefix)
	if len(params) < 2 || len(params) > 3 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	office, project := params[0], params[1]
	if err := auth.EnsureOffice(r.Context(), office); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	projectID := outlets.NewLocationID(office, project)

	if len(params) == 2 {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r, projectID)
		case http.MethodPost:
			h.handleStore(w, r, office, project)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	id := outlets.NewLocationID(office, params[2])
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, projectID, id)
	case http.MethodDelete:
		h.handleDelete(w, r, projectID, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *VirtualOutletHandler) handleList(w http.ResponseWriter, r *http.Request, projectID outlets.LocationID) {
	list, err := h.service.ListVirtualOutlets(r.Context(), projectID)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	out := make([]virtualOutletDTO, 0, len(list))
	for i := range list {
		out = append(out, fromDomain(&list[i], nil))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *VirtualOutletHandler) handleGet(w http.ResponseWriter, r *http.Request, projectID, id outlets.LocationID) {
	vo, err := h.service.RetrieveVirtualOutlet(r.Context(), projectID, id)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	graph, err := h.service.RetrieveGraph(r.Context(), projectID, id)
	if err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, fromDomain(vo, graph))
}

func (h *VirtualOutletHandler) handleStore(w http.ResponseWriter, r *http.Request, office, project string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req virtualOutletDTO
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	failIfExists, err := apihttp.ParseBoolQuery(r, "fail-if-exists", true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vo := req.toDomain(office, project)
	if err := h.service.StoreVirtualOutlet(r.Context(), vo, failIfExists); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, fromDomain(vo, nil))
	writeAudit(r, h.auditLogger, h.logger, audit.Entry{
		OfficeID:     office,
		Action:       "virtual_outlet.store",
		ResourceType: "virtual_outlet",
		ResourceID:   vo.ID.Name,
		ProjectID:    project,
		Metadata:     body,
	})
}

func (h *VirtualOutletHandler) handleDelete(w http.ResponseWriter, r *http.Request, projectID, id outlets.LocationID) {
	cascade, err := apihttp.ParseBoolQuery(r, "cascade", true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteVirtualOutlet(r.Context(), projectID, id, cascade); err != nil {
		apihttp.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	meta, _ := json.Marshal(map[string]bool{"cascade": cascade})
	writeAudit(r, h.auditLogger, h.logger, audit.Entry{
		OfficeID:     id.OfficeID,
		Action:       "virtual_outlet.delete",
		ResourceType: "virtual_outlet",
		ResourceID:   id.Name,
		ProjectID:    projectID.Name,
		Metadata:     meta,
	})
}
