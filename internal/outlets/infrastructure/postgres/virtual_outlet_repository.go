package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	outlets "reservoir-ops/internal/outlets/domain"
)

// VirtualOutletRepository is a Postgres implementation for virtual and
// compound outlets. A grouping is a header row plus its edge rows.
type VirtualOutletRepository struct {
	db     DBTX
	tables Tables
}

// NewVirtualOutletRepository constructs a repository.
func NewVirtualOutletRepository(db DBTX, opts ...Option) *VirtualOutletRepository {
	return &VirtualOutletRepository{db: db, tables: buildTables(opts)}
}

// Get loads a grouping by project and id.
func (r *VirtualOutletRepository) Get(ctx context.Context, projectID, id outlets.LocationID) (*outlets.VirtualOutlet, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("virtual outlet repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT compound, created_at
FROM %s
WHERE office_id = $1 AND project_name = $2 AND name = $3`, r.tables.VirtualOutlets)

	vo := outlets.VirtualOutlet{ProjectID: projectID, ID: id}
	if err := r.db.QueryRowContext(ctx, query, projectID.OfficeID, projectID.Name, id.Name).Scan(&vo.Compound, &vo.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	vo.CreatedAt = vo.CreatedAt.UTC()
	records, err := loadRecords(ctx, r.db, r.tables.Edges, projectID, id)
	if err != nil {
		return nil, err
	}
	vo.Records = records
	return &vo, nil
}

// ListByProject loads the project's groupings ordered by id.
func (r *VirtualOutletRepository) ListByProject(ctx context.Context, projectID outlets.LocationID) ([]outlets.VirtualOutlet, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("virtual outlet repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT name, compound, created_at
FROM %s
WHERE office_id = $1 AND project_name = $2`, r.tables.VirtualOutlets)

	rows, err := r.db.QueryContext(ctx, query, projectID.OfficeID, projectID.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []outlets.VirtualOutlet
	for rows.Next() {
		var (
			name string
			vo   = outlets.VirtualOutlet{ProjectID: projectID}
		)
		if err := rows.Scan(&name, &vo.Compound, &vo.CreatedAt); err != nil {
			return nil, err
		}
		vo.ID = outlets.NewLocationID(projectID.OfficeID, name)
		vo.CreatedAt = vo.CreatedAt.UTC()
		result = append(result, vo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		records, err := loadRecords(ctx, r.db, r.tables.Edges, projectID, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Records = records
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.Less(result[j].ID) })
	return result, nil
}

// Replace writes the header and swaps every edge row in one transaction.
func (r *VirtualOutletRepository) Replace(ctx context.Context, vo *outlets.VirtualOutlet, failIfExists bool) error {
	if r == nil || r.db == nil {
		return errors.New("virtual outlet repo: nil db")
	}
	if vo == nil {
		return errors.New("virtual outlet repo: nil virtual outlet")
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		conflict := `DO UPDATE SET compound = EXCLUDED.compound`
		if failIfExists {
			conflict = `DO NOTHING`
		}
		query := fmt.Sprintf(`
INSERT INTO %s (office_id, project_name, name, compound)
VALUES ($1, $2, $3, $4)
ON CONFLICT (office_id, project_name, name)
%s
RETURNING created_at`, r.tables.VirtualOutlets, conflict)

		err := tx.QueryRowContext(ctx, query, vo.ProjectID.OfficeID, vo.ProjectID.Name, vo.ID.Name, vo.Compound).Scan(&vo.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: virtual outlet %s exists", outlets.ErrConflict, vo.ID)
		}
		if err != nil {
			return err
		}
		vo.CreatedAt = vo.CreatedAt.UTC()
		return writeRecords(ctx, tx, r.tables.Edges, vo)
	})
}

// Delete removes a grouping header, and its edge rows when cascade is set.
// Without cascade the edge rows stay behind and keep blocking DELETE_KEY on
// the outlets they name.
func (r *VirtualOutletRepository) Delete(ctx context.Context, projectID, id outlets.LocationID, cascade bool) error {
	if r == nil || r.db == nil {
		return errors.New("virtual outlet repo: nil db")
	}

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND project_name = $2 AND name = $3`, r.tables.VirtualOutlets)
		res, err := tx.ExecContext(ctx, query, projectID.OfficeID, projectID.Name, id.Name)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: virtual outlet %s", outlets.ErrNotFound, id)
		}
		if !cascade {
			return nil
		}
		return deleteRecords(ctx, tx, r.tables.Edges, projectID, id)
	})
}
