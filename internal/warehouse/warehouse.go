package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/models"
)

// Column is a column as reported by the engine catalog.
type Column struct {
	Name    string `bun:"name"`
	RawType string `bun:"data_type"`
}

// Type maps the engine type back to a warehouse type. ok is false for types
// this package never creates.
func (c Column) Type() (models.WarehouseType, bool) {
	return normalizeType(c.RawType)
}

// Warehouse executes table, load and merge statements against one engine.
type Warehouse struct {
	db     bun.IDB
	flavor flavor
	logger *zap.Logger
}

// New wraps a connection opened by database.NewDB.
func New(db bun.IDB, driver database.Driver, logger *zap.Logger) *Warehouse {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warehouse{db: db, flavor: flavorFor(driver), logger: logger}
}

// Columns returns the table's columns. A missing table yields no columns.
func (w *Warehouse) Columns(ctx context.Context, table string) ([]Column, error) {
	var cols []Column
	if err := w.db.NewRaw(w.flavor.columnsQuery(), table).Scan(ctx, &cols); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	return cols, nil
}

// TableExists reports whether the table is present.
func (w *Warehouse) TableExists(ctx context.Context, table string) (bool, error) {
	cols, err := w.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	return len(cols) > 0, nil
}

// CreateTable creates the table with exactly specs. The id column becomes the primary key.
func (w *Warehouse) CreateTable(ctx context.Context, table string, specs []models.ColumnSpec) error {
	var b strings.Builder
	args := []any{bun.Ident(table)}

	b.WriteString("CREATE TABLE IF NOT EXISTS ? (")
	for i, spec := range specs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("? ")
		b.WriteString(w.flavor.columnType(spec.Type))
		if spec.Name == models.IDColumn {
			b.WriteString(" NOT NULL PRIMARY KEY")
		} else if !spec.Nullable {
			b.WriteString(" NOT NULL")
		}
		args = append(args, bun.Ident(spec.Name))
	}
	b.WriteString(")")

	if _, err := w.db.NewRaw(b.String(), args...).Exec(ctx); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// AddColumn appends a nullable column to an existing table.
func (w *Warehouse) AddColumn(ctx context.Context, table string, spec models.ColumnSpec) error {
	q := "ALTER TABLE ? ADD COLUMN ? " + w.flavor.columnType(spec.Type)
	if _, err := w.db.NewRaw(q, bun.Ident(table), bun.Ident(spec.Name)).Exec(ctx); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, spec.Name, err)
	}
	return nil
}

// Truncate removes every row from the table.
func (w *Warehouse) Truncate(ctx context.Context, table string) error {
	if _, err := w.db.NewRaw(w.flavor.truncate(), bun.Ident(table)).Exec(ctx); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// Count returns the number of rows in the table.
func (w *Warehouse) Count(ctx context.Context, table string) (int, error) {
	var n int
	if err := w.db.NewRaw("SELECT COUNT(*) FROM ?", bun.Ident(table)).Scan(ctx, &n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Merge upserts every staged row into master in one statement: rows matched by id
// get every other column overwritten, unmatched rows are inserted. columns must
// exist in both tables. Returns the engine-reported affected rows.
func (w *Warehouse) Merge(ctx context.Context, master, staging string, columns []string) (int64, error) {
	all := withID(columns)
	update := make([]string, 0, len(all)-1)
	for _, c := range all {
		if c != models.IDColumn {
			update = append(update, c)
		}
	}

	q := w.flavor.merge(len(update), len(all))
	args := w.flavor.mergeArgs(master, staging, update, all)

	res, err := w.db.NewRaw(q, args...).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("merge %s into %s: %w", staging, master, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("merge rows affected: %w", err)
	}
	return n, nil
}

// DeleteMissing deletes master rows whose id does not appear in keys (anti-join delete).
func (w *Warehouse) DeleteMissing(ctx context.Context, master, keys string) (int64, error) {
	id := bun.Ident(models.IDColumn)
	res, err := w.db.NewRaw("DELETE FROM ? WHERE ? NOT IN (SELECT ? FROM ?)",
		bun.Ident(master), id, id, bun.Ident(keys)).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete from %s missing in %s: %w", master, keys, err)
	}
	return res.RowsAffected()
}

// DeleteIDs deletes master rows with the given ids.
func (w *Warehouse) DeleteIDs(ctx context.Context, master string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := w.db.NewRaw("DELETE FROM ? WHERE ? IN (?)",
		bun.Ident(master), bun.Ident(models.IDColumn), bun.In(ids)).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete ids from %s: %w", master, err)
	}
	return res.RowsAffected()
}

// withID returns columns with id first and duplicates removed.
func withID(columns []string) []string {
	out := []string{models.IDColumn}
	seen := map[string]bool{models.IDColumn: true}
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone)
}
