package outlets

import "time"

// VirtualOutletRecord is one node of a routing graph with its immediate
// downstream edges. An empty downstream set marks a terminal node.
type VirtualOutletRecord struct {
	OutletID            LocationID   `json:"outlet-id"`
	DownstreamOutletIDs []LocationID `json:"downstream-outlet-ids,omitempty"`
}

func (r VirtualOutletRecord) clone() VirtualOutletRecord {
	return VirtualOutletRecord{
		OutletID:            r.OutletID,
		DownstreamOutletIDs: append([]LocationID(nil), r.DownstreamOutletIDs...),
	}
}

// CloneRecords deep-copies a record list.
func CloneRecords(records []VirtualOutletRecord) []VirtualOutletRecord {
	if records == nil {
		return nil
	}
	out := make([]VirtualOutletRecord, len(records))
	for i, rec := range records {
		out[i] = rec.clone()
	}
	return out
}

// VirtualOutlet is a named routing grouping within a project.
//
// A compound outlet is the same structure addressed by an existing outlet
// location instead of a free virtual outlet name.
type VirtualOutlet struct {
	ProjectID LocationID            `json:"project-id"`
	ID        LocationID            `json:"virtual-outlet-id"`
	Compound  bool                  `json:"compound,omitempty"`
	Records   []VirtualOutletRecord `json:"virtual-records"`
	CreatedAt time.Time             `json:"-"`
}

// Validate checks the grouping identity and that records are present. Graph
// invariants are checked by BuildGraph.
func (v VirtualOutlet) Validate() error {
	if err := v.ProjectID.Validate(); err != nil {
		return NewValidationError("project_id", err.Error())
	}
	if err := v.ID.Validate(); err != nil {
		return NewValidationError("virtual_outlet_id", err.Error())
	}
	if v.ID.OfficeID != v.ProjectID.OfficeID {
		return NewValidationError("virtual_outlet_id", "office must match project office")
	}
	if len(v.Records) == 0 {
		return NewValidationError("records", "at least one record is required")
	}
	return nil
}

// References reports whether any record mentions id.
func (v VirtualOutlet) References(id LocationID) bool {
	for _, rec := range v.Records {
		if rec.OutletID == id {
			return true
		}
		for _, down := range rec.DownstreamOutletIDs {
			if down == id {
				return true
			}
		}
	}
	return false
}
