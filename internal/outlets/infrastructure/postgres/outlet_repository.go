package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
)

// OutletRepository is a Postgres implementation for outlets.
type OutletRepository struct {
	db     DBTX
	tables Tables
}

// NewOutletRepository constructs a repository.
func NewOutletRepository(db DBTX, opts ...Option) *OutletRepository {
	return &OutletRepository{db: db, tables: buildTables(opts)}
}

// Get loads an outlet by id, with compound records when it has them.
func (r *OutletRepository) Get(ctx context.Context, id outlets.LocationID) (*outlets.Outlet, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("outlet repo: nil db")
	}
	base, sub, err := outlets.SplitLocationName(id.Name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT office_id, base_location, sub_location, project_name, rating_group_id, rating_spec_id, created_at, updated_at
FROM %s
WHERE office_id = $1 AND base_location = $2 AND sub_location = $3
LIMIT 1`, r.tables.Outlets)

	outlet, err := scanOutlet(r.db.QueryRowContext(ctx, query, id.OfficeID, base, sub))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.fillCompound(ctx, r.db, outlet); err != nil {
		return nil, err
	}
	return outlet, nil
}

// Exists reports whether the outlet is registered.
func (r *OutletRepository) Exists(ctx context.Context, id outlets.LocationID) (bool, error) {
	outlet, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return outlet != nil, nil
}

// ListByProject loads the project's outlets ordered by (office, name).
func (r *OutletRepository) ListByProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.Outlet, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("outlet repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT office_id, base_location, sub_location, project_name, rating_group_id, rating_spec_id, created_at, updated_at
FROM %s
WHERE office_id = $1 AND project_name = $2`, r.tables.Outlets)

	rows, err := r.db.QueryContext(ctx, query, projectID.OfficeID, projectID.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []outlets.Outlet
	for rows.Next() {
		outlet, err := scanOutlet(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *outlet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.fillCompound(ctx, r.db, &result[i]); err != nil {
			return nil, err
		}
	}
	// Postgres collation does not follow byte order on the joined name.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.Less(result[j].ID) })
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutlet(row rowScanner) (*outlets.Outlet, error) {
	var (
		outlet      outlets.Outlet
		office      string
		base        string
		sub         string
		projectName string
	)
	if err := row.Scan(
		&office,
		&base,
		&sub,
		&projectName,
		&outlet.RatingGroupID,
		&outlet.RatingSpecID,
		&outlet.CreatedAt,
		&outlet.UpdatedAt,
	); err != nil {
		return nil, err
	}
	outlet.ID = outlets.NewLocationID(office, outlets.JoinLocationName(base, sub))
	outlet.ProjectID = outlets.NewLocationID(office, projectName)
	outlet.CreatedAt = outlet.CreatedAt.UTC()
	outlet.UpdatedAt = outlet.UpdatedAt.UTC()
	return &outlet, nil
}

func (r *OutletRepository) fillCompound(ctx context.Context, q querier, outlet *outlets.Outlet) error {
	query := fmt.Sprintf(`
SELECT compound
FROM %s
WHERE office_id = $1 AND project_name = $2 AND name = $3`, r.tables.VirtualOutlets)

	var compound bool
	if err := q.QueryRowContext(ctx, query, outlet.ProjectID.OfficeID, outlet.ProjectID.Name, outlet.ID.Name).Scan(&compound); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if !compound {
		return nil
	}
	records, err := loadRecords(ctx, q, r.tables.Edges, outlet.ProjectID, outlet.ID)
	if err != nil {
		return err
	}
	outlet.CompoundRecords = records
	return nil
}

// Save upserts an outlet. With failIfExists an existing row is a conflict.
func (r *OutletRepository) Save(ctx context.Context, outlet *outlets.Outlet, failIfExists bool) error {
	if r == nil || r.db == nil {
		return errors.New("outlet repo: nil db")
	}
	if outlet == nil {
		return errors.New("outlet repo: nil outlet")
	}
	if err := outlet.Validate(); err != nil {
		return err
	}
	base, sub, err := outlets.SplitLocationName(outlet.ID.Name)
	if err != nil {
		return err
	}

	conflict := `
DO UPDATE SET
	project_name = EXCLUDED.project_name,
	rating_group_id = EXCLUDED.rating_group_id,
	rating_spec_id = EXCLUDED.rating_spec_id,
	updated_at = NOW()`
	if failIfExists {
		conflict = `DO NOTHING`
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	office_id,
	base_location,
	sub_location,
	project_name,
	rating_group_id,
	rating_spec_id
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (office_id, base_location, sub_location)
%s
RETURNING created_at, updated_at`, r.tables.Outlets, conflict)

	err = r.db.QueryRowContext(ctx, query,
		outlet.ID.OfficeID,
		base,
		sub,
		outlet.ProjectID.Name,
		outlet.RatingGroupID,
		outlet.RatingSpecID,
	).Scan(&outlet.CreatedAt, &outlet.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: outlet %s exists", outlets.ErrConflict, outlet.ID)
	}
	if err != nil {
		return err
	}
	outlet.CreatedAt = outlet.CreatedAt.UTC()
	outlet.UpdatedAt = outlet.UpdatedAt.UTC()
	return nil
}

// Rename moves an outlet to newName and rewrites graph edges, groupings and
// change settings that reference it, all in one transaction.
func (r *OutletRepository) Rename(ctx context.Context, id outlets.LocationID, newName string) error {
	if r == nil || r.db == nil {
		return errors.New("outlet repo: nil db")
	}
	fromBase, fromSub, err := outlets.SplitLocationName(id.Name)
	if err != nil {
		return err
	}
	toBase, toSub, err := outlets.SplitLocationName(newName)
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.lock(ctx, tx, id.OfficeID, fromBase, fromSub); err != nil {
			return err
		}
		taken, err := r.exists(ctx, tx, id.OfficeID, toBase, toSub)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: outlet %s exists", outlets.ErrConflict, outlets.NewLocationID(id.OfficeID, newName))
		}

		move := fmt.Sprintf(`
UPDATE %s
SET base_location = $4, sub_location = $5, updated_at = NOW()
WHERE office_id = $1 AND base_location = $2 AND sub_location = $3`, r.tables.Outlets)
		if _, err := tx.ExecContext(ctx, move, id.OfficeID, fromBase, fromSub, toBase, toSub); err != nil {
			return err
		}
		references := []string{
			fmt.Sprintf(`UPDATE %s SET outlet_name = $3 WHERE office_id = $1 AND outlet_name = $2`, r.tables.Edges),
			fmt.Sprintf(`UPDATE %s SET downstream_name = $3 WHERE office_id = $1 AND downstream_name = $2`, r.tables.Edges),
			fmt.Sprintf(`UPDATE %s SET group_name = $3 WHERE office_id = $1 AND group_name = $2`, r.tables.Edges),
			fmt.Sprintf(`UPDATE %s SET name = $3 WHERE office_id = $1 AND name = $2`, r.tables.VirtualOutlets),
			fmt.Sprintf(`UPDATE %s SET location_name = $3 WHERE office_id = $1 AND location_name = $2`, r.tables.Settings),
		}
		for _, stmt := range references {
			if _, err := tx.ExecContext(ctx, stmt, id.OfficeID, id.Name, newName); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes an outlet under the given rule.
func (r *OutletRepository) Delete(ctx context.Context, id outlets.LocationID, rule outlets.DeleteRule) error {
	if r == nil || r.db == nil {
		return errors.New("outlet repo: nil db")
	}
	base, sub, err := outlets.SplitLocationName(id.Name)
	if err != nil {
		return err
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := r.lock(ctx, tx, id.OfficeID, base, sub); err != nil {
			return err
		}
		switch rule {
		case outlets.DeleteKey:
			ref, err := r.referencedBy(ctx, tx, id)
			if err != nil {
				return err
			}
			if ref != "" {
				return fmt.Errorf("%w: outlet %s is referenced by %s", outlets.ErrConflict, id, ref)
			}
		case outlets.DeleteAll:
			if err := r.cascade(ctx, tx, id); err != nil {
				return err
			}
		default:
			return outlets.NewValidationError("method", fmt.Sprintf("unknown delete rule %q", rule))
		}
		query := fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND base_location = $2 AND sub_location = $3`, r.tables.Outlets)
		_, err := tx.ExecContext(ctx, query, id.OfficeID, base, sub)
		return err
	})
}

func (r *OutletRepository) lock(ctx context.Context, tx *sql.Tx, office, base, sub string) error {
	query := fmt.Sprintf(`
SELECT 1 FROM %s
WHERE office_id = $1 AND base_location = $2 AND sub_location = $3
FOR UPDATE`, r.tables.Outlets)
	var one int
	if err := tx.QueryRowContext(ctx, query, office, base, sub).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: outlet %s", outlets.ErrNotFound, outlets.NewLocationID(office, outlets.JoinLocationName(base, sub)))
		}
		return err
	}
	return nil
}

func (r *OutletRepository) exists(ctx context.Context, q querier, office, base, sub string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE office_id = $1 AND base_location = $2 AND sub_location = $3)`, r.tables.Outlets)
	var ok bool
	err := q.QueryRowContext(ctx, query, office, base, sub).Scan(&ok)
	return ok, err
}

func (r *OutletRepository) referencedBy(ctx context.Context, q querier, id outlets.LocationID) (string, error) {
	edgeQuery := fmt.Sprintf(`
SELECT group_name
FROM %s
WHERE office_id = $1 AND (group_name = $2 OR outlet_name = $2 OR downstream_name = $2)
LIMIT 1`, r.tables.Edges)
	var group string
	err := q.QueryRowContext(ctx, edgeQuery, id.OfficeID, id.Name).Scan(&group)
	switch {
	case err == nil:
		if group == id.Name {
			return "its compound records", nil
		}
		return "virtual outlet " + outlets.NewLocationID(id.OfficeID, group).String(), nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", err
	}

	settingQuery := fmt.Sprintf(`
SELECT kind, change_date
FROM %s
WHERE office_id = $1 AND location_name = $2
LIMIT 1`, r.tables.Settings)
	var (
		kind string
		at   sql.NullTime
	)
	err = q.QueryRowContext(ctx, settingQuery, id.OfficeID, id.Name).Scan(&kind, &at)
	switch {
	case err == nil:
		return fmt.Sprintf("%s change at %s", kind, at.Time.UTC().Format(time.RFC3339)), nil
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	default:
		return "", err
	}
}

// cascade drops the outlet's own grouping, its edge rows and settings, and
// prunes it from other records' downstream lists. A record left without
// downstream outlets becomes terminal.
func (r *OutletRepository) cascade(ctx context.Context, tx *sql.Tx, id outlets.LocationID) error {
	statements := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND name = $2`, r.tables.VirtualOutlets),
		fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND (group_name = $2 OR outlet_name = $2)`, r.tables.Edges),
		fmt.Sprintf(`
UPDATE %[1]s AS e
SET downstream_name = NULL
WHERE e.office_id = $1 AND e.downstream_name = $2
AND NOT EXISTS (
	SELECT 1 FROM %[1]s AS o
	WHERE o.office_id = e.office_id
	AND o.project_name = e.project_name
	AND o.group_name = e.group_name
	AND o.position = e.position
	AND o.downstream_name IS DISTINCT FROM $2
)`, r.tables.Edges),
		fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND downstream_name = $2`, r.tables.Edges),
		fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND location_name = $2`, r.tables.Settings),
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id.OfficeID, id.Name); err != nil {
			return err
		}
	}
	return nil
}
