package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
)

// OutletRepository implements outlets.OutletRepository and
// outlets.IdentityValidator over the store.
type OutletRepository struct {
	store *Store
}

// Get loads an outlet, including its compound records when it has any.
func (r *OutletRepository) Get(ctx context.Context, id outlets.LocationID) (*outlets.Outlet, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("outlet repo: nil store")
	}
	var out *outlets.Outlet
	err := r.store.view(ctx, func(st *state) error {
		outlet, ok := st.outlets[id]
		if !ok {
			return nil
		}
		withCompound(st, &outlet)
		out = &outlet
		return nil
	})
	return out, err
}

// Exists reports whether the outlet is registered.
func (r *OutletRepository) Exists(ctx context.Context, id outlets.LocationID) (bool, error) {
	outlet, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return outlet != nil, nil
}

// ListByProject returns the project's outlets ordered by (office, name).
func (r *OutletRepository) ListByProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.Outlet, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("outlet repo: nil store")
	}
	var list []outlets.Outlet
	err := r.store.view(ctx, func(st *state) error {
		for _, outlet := range st.outlets {
			if outlet.ProjectID != projectID {
				continue
			}
			withCompound(st, &outlet)
			list = append(list, outlet)
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool { return list[i].ID.Less(list[j].ID) })
	return list, err
}

func withCompound(st *state, outlet *outlets.Outlet) {
	key := groupKey{project: outlet.ProjectID, id: outlet.ID}
	if header, ok := st.headers[key]; ok && header.compound {
		outlet.CompoundRecords = outlets.CloneRecords(st.edges[key])
	} else {
		outlet.CompoundRecords = nil
	}
}

// Save creates or updates an outlet.
func (r *OutletRepository) Save(ctx context.Context, outlet *outlets.Outlet, failIfExists bool) error {
	if r == nil || r.store == nil {
		return errors.New("outlet repo: nil store")
	}
	if outlet == nil {
		return errors.New("outlet repo: nil outlet")
	}
	if err := outlet.Validate(); err != nil {
		return err
	}
	return r.store.runInTransaction(ctx, func(tx *state, now time.Time) error {
		stored := *outlet
		stored.CompoundRecords = nil
		if existing, ok := tx.outlets[outlet.ID]; ok {
			if failIfExists {
				return fmt.Errorf("%w: outlet %s exists", outlets.ErrConflict, outlet.ID)
			}
			stored.CreatedAt = existing.CreatedAt
		} else {
			stored.CreatedAt = now
		}
		stored.UpdatedAt = now
		tx.outlets[outlet.ID] = stored
		outlet.CreatedAt = stored.CreatedAt
		outlet.UpdatedAt = stored.UpdatedAt
		return nil
	})
}

// Rename moves an outlet to a new name and rewrites every reference to it.
func (r *OutletRepository) Rename(ctx context.Context, id outlets.LocationID, newName string) error {
	if r == nil || r.store == nil {
		return errors.New("outlet repo: nil store")
	}
	to := outlets.NewLocationID(id.OfficeID, newName)
	if err := to.Validate(); err != nil {
		return err
	}
	return r.store.runInTransaction(ctx, func(tx *state, now time.Time) error {
		outlet, ok := tx.outlets[id]
		if !ok {
			return fmt.Errorf("%w: outlet %s", outlets.ErrNotFound, id)
		}
		if _, taken := tx.outlets[to]; taken {
			return fmt.Errorf("%w: outlet %s exists", outlets.ErrConflict, to)
		}
		delete(tx.outlets, id)
		outlet.ID = to
		outlet.UpdatedAt = now
		tx.outlets[to] = outlet

		rename := func(v outlets.LocationID) outlets.LocationID {
			if v == id {
				return to
			}
			return v
		}
		edges := make(map[groupKey][]outlets.VirtualOutletRecord, len(tx.edges))
		for key, records := range tx.edges {
			edges[groupKey{project: key.project, id: rename(key.id)}] = mapRecords(records, func(rec outlets.VirtualOutletRecord) (outlets.VirtualOutletRecord, bool) {
				rec.OutletID = rename(rec.OutletID)
				for i, down := range rec.DownstreamOutletIDs {
					rec.DownstreamOutletIDs[i] = rename(down)
				}
				return rec, true
			})
		}
		tx.edges = edges
		headers := make(map[groupKey]groupHeader, len(tx.headers))
		for key, header := range tx.headers {
			headers[groupKey{project: key.project, id: rename(key.id)}] = header
		}
		tx.headers = headers
		for key, change := range tx.changes {
			if !changeReferences(change, id) {
				continue
			}
			updated := change.Clone()
			for i := range updated.Settings {
				updated.Settings[i].LocationID = rename(updated.Settings[i].LocationID)
			}
			updated.Normalize()
			tx.changes[key] = updated
		}
		return nil
	})
}

// Delete removes an outlet under the given rule.
func (r *OutletRepository) Delete(ctx context.Context, id outlets.LocationID, rule outlets.DeleteRule) error {
	if r == nil || r.store == nil {
		return errors.New("outlet repo: nil store")
	}
	return r.store.runInTransaction(ctx, func(tx *state, _ time.Time) error {
		if _, ok := tx.outlets[id]; !ok {
			return fmt.Errorf("%w: outlet %s", outlets.ErrNotFound, id)
		}
		switch rule {
		case outlets.DeleteKey:
			if ref := referencedBy(tx, id); ref != "" {
				return fmt.Errorf("%w: outlet %s is referenced by %s", outlets.ErrConflict, id, ref)
			}
		case outlets.DeleteAll:
			cascadeOutlet(tx, id)
		default:
			return outlets.NewValidationError("method", fmt.Sprintf("unknown delete rule %q", rule))
		}
		delete(tx.outlets, id)
		return nil
	})
}

func referencedBy(st *state, id outlets.LocationID) string {
	for key, records := range st.edges {
		if key.id == id {
			return "its compound records"
		}
		for _, rec := range records {
			if rec.OutletID == id || containsID(rec.DownstreamOutletIDs, id) {
				return "virtual outlet " + key.id.String()
			}
		}
	}
	for _, change := range st.changes {
		if changeReferences(change, id) {
			return fmt.Sprintf("%s change at %s", change.Kind, change.ChangeDate.Format(time.RFC3339))
		}
	}
	return ""
}

func cascadeOutlet(st *state, id outlets.LocationID) {
	for key, records := range st.edges {
		if key.id == id {
			delete(st.edges, key)
			delete(st.headers, key)
			continue
		}
		st.edges[key] = mapRecords(records, func(rec outlets.VirtualOutletRecord) (outlets.VirtualOutletRecord, bool) {
			if rec.OutletID == id {
				return rec, false
			}
			rec.DownstreamOutletIDs = removeID(rec.DownstreamOutletIDs, id)
			return rec, true
		})
	}
	for key, change := range st.changes {
		if !changeReferences(change, id) {
			continue
		}
		updated := change.Clone()
		kept := updated.Settings[:0]
		for _, s := range updated.Settings {
			if s.LocationID != id {
				kept = append(kept, s)
			}
		}
		updated.Settings = kept
		st.changes[key] = updated
	}
}

// mapRecords copies records through fn, dropping those it rejects.
func mapRecords(records []outlets.VirtualOutletRecord, fn func(outlets.VirtualOutletRecord) (outlets.VirtualOutletRecord, bool)) []outlets.VirtualOutletRecord {
	out := make([]outlets.VirtualOutletRecord, 0, len(records))
	for _, rec := range outlets.CloneRecords(records) {
		if mapped, keep := fn(rec); keep {
			out = append(out, mapped)
		}
	}
	return out
}

func changeReferences(change timeline.Change, id outlets.LocationID) bool {
	for _, s := range change.Settings {
		if s.LocationID == id {
			return true
		}
	}
	return false
}

func containsID(ids []outlets.LocationID, id outlets.LocationID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []outlets.LocationID, id outlets.LocationID) []outlets.LocationID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
