package postgres

import (
	"context"
	"database/sql"
	"fmt"

	outlets "reservoir-ops/internal/outlets/domain"
)

// loadRecords rebuilds a grouping's records from its edge rows.
func loadRecords(ctx context.Context, q querier, table string, projectID, groupID outlets.LocationID) ([]outlets.VirtualOutletRecord, error) {
	query := fmt.Sprintf(`
SELECT position, outlet_name, downstream_name
FROM %s
WHERE office_id = $1 AND project_name = $2 AND group_name = $3
ORDER BY position ASC, downstream_position ASC`, table)

	rows, err := q.QueryContext(ctx, query, projectID.OfficeID, projectID.Name, groupID.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		records []outlets.VirtualOutletRecord
		current = -1
	)
	for rows.Next() {
		var (
			position   int
			outletName string
			downstream sql.NullString
		)
		if err := rows.Scan(&position, &outletName, &downstream); err != nil {
			return nil, err
		}
		if position != current {
			records = append(records, outlets.VirtualOutletRecord{OutletID: outlets.NewLocationID(projectID.OfficeID, outletName)})
			current = position
		}
		if downstream.Valid {
			last := &records[len(records)-1]
			last.DownstreamOutletIDs = append(last.DownstreamOutletIDs, outlets.NewLocationID(projectID.OfficeID, downstream.String))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// writeRecords replaces a grouping's edge rows.
func writeRecords(ctx context.Context, tx *sql.Tx, table string, vo *outlets.VirtualOutlet) error {
	if err := deleteRecords(ctx, tx, table, vo.ProjectID, vo.ID); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	office_id, project_name, group_name, position, downstream_position, outlet_name, downstream_name
) VALUES ($1,$2,$3,$4,$5,$6,$7)`, table)

	for pos, rec := range vo.Records {
		if len(rec.DownstreamOutletIDs) == 0 {
			if _, err := tx.ExecContext(ctx, query, vo.ProjectID.OfficeID, vo.ProjectID.Name, vo.ID.Name, pos, 0, rec.OutletID.Name, nil); err != nil {
				return err
			}
			continue
		}
		for i, down := range rec.DownstreamOutletIDs {
			if _, err := tx.ExecContext(ctx, query, vo.ProjectID.OfficeID, vo.ProjectID.Name, vo.ID.Name, pos, i, rec.OutletID.Name, down.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func deleteRecords(ctx context.Context, q querier, table string, projectID, groupID outlets.LocationID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE office_id = $1 AND project_name = $2 AND group_name = $3`, table)
	_, err := q.ExecContext(ctx, query, projectID.OfficeID, projectID.Name, groupID.Name)
	return err
}
