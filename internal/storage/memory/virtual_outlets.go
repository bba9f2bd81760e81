package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
)

// VirtualOutletRepository implements outlets.VirtualOutletRepository over the store.
type VirtualOutletRepository struct {
	store *Store
}

// Get loads a grouping. Edge rows left behind by a non-cascading delete are
// not visible without their header.
func (r *VirtualOutletRepository) Get(ctx context.Context, projectID, id outlets.LocationID) (*outlets.VirtualOutlet, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("virtual outlet repo: nil store")
	}
	var out *outlets.VirtualOutlet
	err := r.store.view(ctx, func(st *state) error {
		key := groupKey{project: projectID, id: id}
		header, ok := st.headers[key]
		if !ok {
			return nil
		}
		vo := groupFromState(st, key, header)
		out = &vo
		return nil
	})
	return out, err
}

// ListByProject returns the project's groupings ordered by id.
func (r *VirtualOutletRepository) ListByProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.VirtualOutlet, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("virtual outlet repo: nil store")
	}
	var list []outlets.VirtualOutlet
	err := r.store.view(ctx, func(st *state) error {
		for key, header := range st.headers {
			if key.project != projectID {
				continue
			}
			list = append(list, groupFromState(st, key, header))
		}
		return nil
	})
	sort.Slice(list, func(i, j int) bool { return list[i].ID.Less(list[j].ID) })
	return list, err
}

func groupFromState(st *state, key groupKey, header groupHeader) outlets.VirtualOutlet {
	return outlets.VirtualOutlet{
		ProjectID: key.project,
		ID:        key.id,
		Compound:  header.compound,
		Records:   outlets.CloneRecords(st.edges[key]),
		CreatedAt: header.createdAt,
	}
}

// Replace swaps the header and every edge row of a grouping at once.
func (r *VirtualOutletRepository) Replace(ctx context.Context, vo *outlets.VirtualOutlet, failIfExists bool) error {
	if r == nil || r.store == nil {
		return errors.New("virtual outlet repo: nil store")
	}
	if vo == nil {
		return errors.New("virtual outlet repo: nil virtual outlet")
	}
	return r.store.runInTransaction(ctx, func(tx *state, now time.Time) error {
		key := groupKey{project: vo.ProjectID, id: vo.ID}
		header, exists := tx.headers[key]
		if exists && failIfExists {
			return fmt.Errorf("%w: virtual outlet %s exists", outlets.ErrConflict, vo.ID)
		}
		if !exists {
			header.createdAt = now
		}
		header.compound = vo.Compound
		tx.headers[key] = header
		tx.edges[key] = outlets.CloneRecords(vo.Records)
		vo.CreatedAt = header.createdAt
		return nil
	})
}

// Delete removes a grouping header, and its edge rows when cascade is set.
func (r *VirtualOutletRepository) Delete(ctx context.Context, projectID, id outlets.LocationID, cascade bool) error {
	if r == nil || r.store == nil {
		return errors.New("virtual outlet repo: nil store")
	}
	return r.store.runInTransaction(ctx, func(tx *state, _ time.Time) error {
		key := groupKey{project: projectID, id: id}
		if _, ok := tx.headers[key]; !ok {
			return fmt.Errorf("%w: virtual outlet %s", outlets.ErrNotFound, id)
		}
		delete(tx.headers, key)
		if cascade {
			delete(tx.edges, key)
		}
		return nil
	})
}
