package postgres

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB. Repositories open their own transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	defaultOutletsTable        = "outlets"
	defaultVirtualOutletsTable = "virtual_outlets"
	defaultEdgesTable          = "virtual_outlet_edges"
	defaultSettingsTable       = "operational_change_settings"
)

// Tables names the tables the repositories touch.
type Tables struct {
	Outlets        string
	VirtualOutlets string
	Edges          string
	Settings       string
}

func defaultTables() Tables {
	return Tables{
		Outlets:        defaultOutletsTable,
		VirtualOutlets: defaultVirtualOutletsTable,
		Edges:          defaultEdgesTable,
		Settings:       defaultSettingsTable,
	}
}

// Option configures table names.
type Option func(*Tables)

// WithOutletTable overrides the outlets table.
func WithOutletTable(table string) Option {
	return func(t *Tables) {
		if table != "" {
			t.Outlets = table
		}
	}
}

// WithVirtualOutletTable overrides the virtual outlet header table.
func WithVirtualOutletTable(table string) Option {
	return func(t *Tables) {
		if table != "" {
			t.VirtualOutlets = table
		}
	}
}

// WithEdgeTable overrides the edge table.
func WithEdgeTable(table string) Option {
	return func(t *Tables) {
		if table != "" {
			t.Edges = table
		}
	}
}

// WithSettingTable overrides the change settings table consulted on delete
// and rename.
func WithSettingTable(table string) Option {
	return func(t *Tables) {
		if table != "" {
			t.Settings = table
		}
	}
}

func buildTables(opts []Option) Tables {
	tables := defaultTables()
	for _, opt := range opts {
		opt(&tables)
	}
	return tables
}

func inTx(ctx context.Context, db DBTX, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
