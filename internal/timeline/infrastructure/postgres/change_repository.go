package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
)

const (
	defaultChangesTable  = "operational_changes"
	defaultSettingsTable = "operational_change_settings"
)

// DBTX is satisfied by *sql.DB. The repository opens its own transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// ChangeRepository is a Postgres implementation for operational changes.
type ChangeRepository struct {
	db            DBTX
	changesTable  string
	settingsTable string
}

// ChangeOption configures the repository.
type ChangeOption func(*ChangeRepository)

// WithChangeTable overrides the change header table.
func WithChangeTable(table string) ChangeOption {
	return func(repo *ChangeRepository) {
		if table != "" {
			repo.changesTable = table
		}
	}
}

// WithSettingTable overrides the settings table.
func WithSettingTable(table string) ChangeOption {
	return func(repo *ChangeRepository) {
		if table != "" {
			repo.settingsTable = table
		}
	}
}

// NewChangeRepository constructs a repository.
func NewChangeRepository(db DBTX, opts ...ChangeOption) *ChangeRepository {
	repo := &ChangeRepository{db: db, changesTable: defaultChangesTable, settingsTable: defaultSettingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Store upserts a batch in one transaction. Settings of a replaced change are
// swapped wholesale.
func (r *ChangeRepository) Store(ctx context.Context, kind timeline.Kind, changes []timeline.Change, opts timeline.StoreOptions) error {
	if r == nil || r.db == nil {
		return errors.New("change repo: nil db")
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, change := range changes {
		if err := r.storeOne(ctx, tx, kind, change, opts); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *ChangeRepository) storeOne(ctx context.Context, tx *sql.Tx, kind timeline.Kind, change timeline.Change, opts timeline.StoreOptions) error {
	change.Normalize()
	key := []any{string(kind), change.ProjectID.OfficeID, change.ProjectID.Name, change.ChangeDate}

	computation, err := json.Marshal(change.DischargeComputationType)
	if err != nil {
		return err
	}
	reason, err := json.Marshal(change.ReasonType)
	if err != nil {
		return err
	}
	args := append(key,
		change.Protected,
		string(computation),
		string(reason),
		change.NewTotalDischargeOverride,
		change.OldTotalDischargeOverride,
		change.DischargeUnits,
		change.PoolElevation,
		change.TailwaterElevation,
		change.ElevationUnits,
		change.Notes,
	)
	insert := fmt.Sprintf(`
INSERT INTO %s (
	kind, office_id, project_name, change_date, protected,
	discharge_computation_type, reason_type,
	new_total_discharge_override, old_total_discharge_override, discharge_units,
	pool_elevation, tailwater_elevation, elevation_units, notes
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)`, r.changesTable)

	if opts.FailIfExists {
		// A concurrent insert of the same key blocks here until it commits,
		// then yields no row.
		var inserted time.Time
		err := tx.QueryRowContext(ctx, insert+`
ON CONFLICT (kind, office_id, project_name, change_date) DO NOTHING
RETURNING change_date`, args...).Scan(&inserted)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s change at %s exists", timeline.ErrConflict, kind, change.ChangeDate.Format(time.RFC3339))
		}
		if err != nil {
			return err
		}
		return r.insertSettings(ctx, tx, key, change.Settings)
	}

	lockQuery := fmt.Sprintf(`
SELECT protected
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date = $4
FOR UPDATE`, r.changesTable)
	var protected bool
	err = tx.QueryRowContext(ctx, lockQuery, key...).Scan(&protected)
	switch {
	case err == nil:
		if protected && !opts.OverrideProtection {
			return fmt.Errorf("%w: %s change at %s", timeline.ErrProtectedRecord, kind, change.ChangeDate.Format(time.RFC3339))
		}
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	upsert := insert + `
ON CONFLICT (kind, office_id, project_name, change_date)
DO UPDATE SET
	protected = EXCLUDED.protected,
	discharge_computation_type = EXCLUDED.discharge_computation_type,
	reason_type = EXCLUDED.reason_type,
	new_total_discharge_override = EXCLUDED.new_total_discharge_override,
	old_total_discharge_override = EXCLUDED.old_total_discharge_override,
	discharge_units = EXCLUDED.discharge_units,
	pool_elevation = EXCLUDED.pool_elevation,
	tailwater_elevation = EXCLUDED.tailwater_elevation,
	elevation_units = EXCLUDED.elevation_units,
	notes = EXCLUDED.notes,
	updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return err
	}

	clearQuery := fmt.Sprintf(`DELETE FROM %s WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date = $4`, r.settingsTable)
	if _, err := tx.ExecContext(ctx, clearQuery, key...); err != nil {
		return err
	}
	return r.insertSettings(ctx, tx, key, change.Settings)
}

func (r *ChangeRepository) insertSettings(ctx context.Context, tx *sql.Tx, key []any, settings []timeline.Setting) error {
	insert := fmt.Sprintf(`
INSERT INTO %s (
	kind, office_id, project_name, change_date, location_name,
	opening, opening_parameter, opening_units, invert_elevation,
	old_discharge, new_discharge, discharge_units,
	scheduled_load, real_power, generation_units
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`, r.settingsTable)
	for _, s := range settings {
		if _, err := tx.ExecContext(ctx, insert, append(key,
			s.LocationID.Name,
			s.Opening,
			s.OpeningParameter,
			s.OpeningUnits,
			s.InvertElevation,
			s.OldDischarge,
			s.NewDischarge,
			s.DischargeUnits,
			s.ScheduledLoad,
			s.RealPower,
			s.GenerationUnits,
		)...); err != nil {
			return err
		}
	}
	return nil
}

// existingDatesChunk bounds the IN list of one ExistingChanges query.
const existingDatesChunk = 1000

// ExistingChanges returns the stored changes at dates with their protection.
func (r *ChangeRepository) ExistingChanges(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, dates []time.Time) ([]timeline.ExistingChange, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("change repo: nil db")
	}

	var found []timeline.ExistingChange
	for lo := 0; lo < len(dates); lo += existingDatesChunk {
		hi := lo + existingDatesChunk
		if hi > len(dates) {
			hi = len(dates)
		}
		chunk, err := r.existingChanges(ctx, kind, projectID, dates[lo:hi])
		if err != nil {
			return nil, err
		}
		found = append(found, chunk...)
	}
	return found, nil
}

func (r *ChangeRepository) existingChanges(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, dates []time.Time) ([]timeline.ExistingChange, error) {
	args := []any{string(kind), projectID.OfficeID, projectID.Name}
	for _, at := range dates {
		args = append(args, at.UTC())
	}
	query := fmt.Sprintf(`
SELECT change_date, protected
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date IN (%s)
ORDER BY change_date ASC`, r.changesTable, placeholders(4, len(dates)))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []timeline.ExistingChange
	for rows.Next() {
		var existing timeline.ExistingChange
		if err := rows.Scan(&existing.ChangeDate, &existing.Protected); err != nil {
			return nil, err
		}
		existing.ChangeDate = existing.ChangeDate.UTC()
		found = append(found, existing)
	}
	return found, rows.Err()
}

// List loads the window's changes ascending, trimmed by a signed page size.
func (r *ChangeRepository) List(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, pageSize int) ([]timeline.Change, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("change repo: nil db")
	}

	where, windowArgs := windowClause("change_date", window, 4)
	page, reverse := pageClause("change_date", pageSize)
	query := fmt.Sprintf(`
SELECT change_date, protected, discharge_computation_type, reason_type,
	new_total_discharge_override, old_total_discharge_override, discharge_units,
	pool_elevation, tailwater_elevation, elevation_units, notes
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND %s
%s`, r.changesTable, where, page)

	args := append([]any{string(kind), projectID.OfficeID, projectID.Name}, windowArgs...)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []timeline.Change{}
	for rows.Next() {
		change := timeline.Change{Kind: kind, ProjectID: projectID}
		var computation, reason []byte
		if err := rows.Scan(
			&change.ChangeDate,
			&change.Protected,
			&computation,
			&reason,
			&change.NewTotalDischargeOverride,
			&change.OldTotalDischargeOverride,
			&change.DischargeUnits,
			&change.PoolElevation,
			&change.TailwaterElevation,
			&change.ElevationUnits,
			&change.Notes,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(computation, &change.DischargeComputationType); err != nil {
			return nil, fmt.Errorf("change repo: decode computation type: %w", err)
		}
		if err := json.Unmarshal(reason, &change.ReasonType); err != nil {
			return nil, fmt.Errorf("change repo: decode reason type: %w", err)
		}
		change.ChangeDate = change.ChangeDate.UTC()
		result = append(result, change)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if reverse {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}
	if len(result) == 0 {
		return result, nil
	}
	if err := r.attachSettings(ctx, kind, projectID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// attachSettings loads settings for the ascending changes in one query.
func (r *ChangeRepository) attachSettings(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, changes []timeline.Change) error {
	query := fmt.Sprintf(`
SELECT change_date, location_name,
	opening, opening_parameter, opening_units, invert_elevation,
	old_discharge, new_discharge, discharge_units,
	scheduled_load, real_power, generation_units
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date >= $4 AND change_date <= $5`, r.settingsTable)

	first, last := changes[0].ChangeDate, changes[len(changes)-1].ChangeDate
	rows, err := r.db.QueryContext(ctx, query, string(kind), projectID.OfficeID, projectID.Name, first, last)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[int64]int, len(changes))
	for i, change := range changes {
		index[change.ChangeDate.UnixNano()] = i
	}
	for rows.Next() {
		var (
			at       time.Time
			location string
			s        timeline.Setting
		)
		if err := rows.Scan(
			&at,
			&location,
			&s.Opening,
			&s.OpeningParameter,
			&s.OpeningUnits,
			&s.InvertElevation,
			&s.OldDischarge,
			&s.NewDischarge,
			&s.DischargeUnits,
			&s.ScheduledLoad,
			&s.RealPower,
			&s.GenerationUnits,
		); err != nil {
			return err
		}
		i, ok := index[at.UnixNano()]
		if !ok {
			// Paged out of this result.
			continue
		}
		s.LocationID = outlets.NewLocationID(projectID.OfficeID, location)
		changes[i].Settings = append(changes[i].Settings, s)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range changes {
		if changes[i].Settings == nil {
			changes[i].Settings = []timeline.Setting{}
		}
		changes[i].Normalize()
	}
	return nil
}

// Delete removes the window's changes. Protected rows are counted and kept
// unless overrideProtection is set.
func (r *ChangeRepository) Delete(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, window timeline.Window, overrideProtection bool) (timeline.DeleteResult, error) {
	if r == nil || r.db == nil {
		return timeline.DeleteResult{}, errors.New("change repo: nil db")
	}

	where, windowArgs := windowClause("change_date", window, 4)
	args := append([]any{string(kind), projectID.OfficeID, projectID.Name}, windowArgs...)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return timeline.DeleteResult{}, err
	}
	var result timeline.DeleteResult
	if !overrideProtection {
		countQuery := fmt.Sprintf(`
SELECT COUNT(*)
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND %s AND protected`, r.changesTable, where)
		if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&result.Protected); err != nil {
			_ = tx.Rollback()
			return timeline.DeleteResult{}, err
		}
	}

	deleteQuery := fmt.Sprintf(`
DELETE FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND %s AND (NOT protected OR $6)`, r.changesTable, where)
	res, err := tx.ExecContext(ctx, deleteQuery, append(args, overrideProtection)...)
	if err != nil {
		_ = tx.Rollback()
		return timeline.DeleteResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return timeline.DeleteResult{}, err
	}
	result.Deleted = int(affected)
	if err := tx.Commit(); err != nil {
		return timeline.DeleteResult{}, err
	}
	return result, nil
}

// DeleteOne removes a single change.
func (r *ChangeRepository) DeleteOne(ctx context.Context, kind timeline.Kind, projectID outlets.LocationID, changeDate time.Time, overrideProtection bool) error {
	if r == nil || r.db == nil {
		return errors.New("change repo: nil db")
	}
	key := []any{string(kind), projectID.OfficeID, projectID.Name, changeDate.UTC()}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	lockQuery := fmt.Sprintf(`
SELECT protected
FROM %s
WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date = $4
FOR UPDATE`, r.changesTable)
	var protected bool
	if err := tx.QueryRowContext(ctx, lockQuery, key...).Scan(&protected); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s change at %s", timeline.ErrNotFound, kind, changeDate.UTC().Format(time.RFC3339))
		}
		return err
	}
	if protected && !overrideProtection {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s change at %s", timeline.ErrProtectedRecord, kind, changeDate.UTC().Format(time.RFC3339))
	}
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE kind = $1 AND office_id = $2 AND project_name = $3 AND change_date = $4`, r.changesTable)
	if _, err := tx.ExecContext(ctx, deleteQuery, key...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
