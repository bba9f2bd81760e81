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

// ChangeRepository implements timeline.ChangeRepository over the store.
type ChangeRepository struct {
	store *Store
}

// Store upserts one batch atomically.
func (r *ChangeRepository) Store(ctx context.Context, kind timeline.Kind, changes []timeline.Change, opts timeline.StoreOptions) error {
	if r == nil || r.store == nil {
		return errors.New("change repo: nil store")
	}
	if len(changes) == 0 {
		return nil
	}
	return r.store.runInTransaction(ctx, func(tx *state, _ time.Time) error {
		for _, change := range changes {
			key := keyOf(kind, change.ProjectID, change.ChangeDate)
			if existing, ok := tx.changes[key]; ok {
				if opts.FailIfExists {
					return fmt.Errorf("%w: %s change at %s exists", timeline.ErrConflict, kind, change.ChangeDate.Format(time.RFC3339))
				}
				if existing.Protected && !opts.OverrideProtection {
					return fmt.Errorf("%w: %s change at %s", timeline.ErrProtectedRecord, kind, change.ChangeDate.Format(time.RFC3339))
				}
			}
			stored := change.Clone()
			stored.Kind = kind
			stored.Normalize()
			tx.changes[key] = stored
		}
		return nil
	})
}

// ExistingChanges returns the subset of dates that already hold a change.
func (r *ChangeRepository) ExistingChanges(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, dates []time.Time) ([]timeline.ExistingChange, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("change repo: nil store")
	}
	var found []timeline.ExistingChange
	err := r.store.view(ctx, func(st *state) error {
		for _, at := range dates {
			if change, ok := st.changes[keyOf(kind, projectID, at)]; ok {
				found = append(found, timeline.ExistingChange{ChangeDate: at.UTC(), Protected: change.Protected})
			}
		}
		return nil
	})
	sort.Slice(found, func(i, j int) bool { return found[i].ChangeDate.Before(found[j].ChangeDate) })
	return found, err
}

// List returns the window's changes, ascending, trimmed by a signed page size.
func (r *ChangeRepository) List(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, pageSize int) ([]timeline.Change, error) {
	if r == nil || r.store == nil {
		return nil, errors.New("change repo: nil store")
	}
	var candidates []timeline.Change
	err := r.store.view(ctx, func(st *state) error {
		for key, change := range st.changes {
			if key.kind == kind && key.project == projectID {
				candidates = append(candidates, change)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	selected := timeline.Select(candidates, func(c timeline.Change) time.Time { return c.ChangeDate }, window, pageSize)
	out := make([]timeline.Change, len(selected))
	for i, change := range selected {
		out[i] = change.Clone()
	}
	return out, nil
}

// Delete removes the window's changes, keeping protected ones unless overridden.
func (r *ChangeRepository) Delete(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, overrideProtection bool) (timeline.DeleteResult, error) {
	if r == nil || r.store == nil {
		return timeline.DeleteResult{}, errors.New("change repo: nil store")
	}
	var result timeline.DeleteResult
	err := r.store.runInTransaction(ctx, func(tx *state, _ time.Time) error {
		result = timeline.DeleteResult{}
		for key, change := range tx.changes {
			if key.kind != kind || key.project != projectID || !window.Contains(change.ChangeDate) {
				continue
			}
			if change.Protected && !overrideProtection {
				result.Protected++
				continue
			}
			delete(tx.changes, key)
			result.Deleted++
		}
		return nil
	})
	return result, err
}

// DeleteOne removes a single change.
func (r *ChangeRepository) DeleteOne(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, changeDate time.Time, overrideProtection bool) error {
	if r == nil || r.store == nil {
		return errors.New("change repo: nil store")
	}
	return r.store.runInTransaction(ctx, func(tx *state, _ time.Time) error {
		key := keyOf(kind, projectID, changeDate)
		change, ok := tx.changes[key]
		if !ok {
			return fmt.Errorf("%w: %s change at %s", timeline.ErrNotFound, kind, changeDate.UTC().Format(time.RFC3339))
		}
		if change.Protected && !overrideProtection {
			return fmt.Errorf("%w: %s change at %s", timeline.ErrProtectedRecord, kind, changeDate.UTC().Format(time.RFC3339))
		}
		delete(tx.changes, key)
		return nil
	})
}
