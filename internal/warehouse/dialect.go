package warehouse

import (
	"strings"

	"github.com/uptrace/bun"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/models"
)

// flavor captures the statements that differ between engines.
type flavor interface {
	columnType(t models.WarehouseType) string
	columnsQuery() string
	truncate() string
	merge(updateCols, allCols int) string
	mergeArgs(master, staging string, updateCols, allCols []string) []any
}

func flavorFor(d database.Driver) flavor {
	switch d {
	case database.DriverPostgres:
		return postgresFlavor{}
	case database.DriverDuckDB:
		return duckdbFlavor{}
	default:
		return sqliteFlavor{}
	}
}

type sqliteFlavor struct{}

func (sqliteFlavor) columnType(t models.WarehouseType) string {
	switch t {
	case models.WarehouseFloat:
		return "REAL"
	case models.WarehouseTimestamp:
		return "TIMESTAMP"
	case models.WarehouseDate:
		return "DATE"
	case models.WarehouseBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (sqliteFlavor) columnsQuery() string {
	return "SELECT name AS name, type AS data_type FROM pragma_table_info(?) ORDER BY cid"
}

func (sqliteFlavor) truncate() string { return "DELETE FROM ?" }

// SQLite has no MERGE; an upsert from a SELECT is a single atomic statement.
// WHERE true disambiguates the ON CONFLICT clause from a join constraint.
func (sqliteFlavor) merge(updateCols, allCols int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ? (")
	b.WriteString(placeholders(allCols))
	b.WriteString(") SELECT ")
	b.WriteString(placeholders(allCols))
	b.WriteString(" FROM ? WHERE true ON CONFLICT (?) DO ")
	if updateCols == 0 {
		b.WriteString("NOTHING")
		return b.String()
	}
	b.WriteString("UPDATE SET ")
	for i := 0; i < updateCols; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("? = excluded.?")
	}
	return b.String()
}

func (sqliteFlavor) mergeArgs(master, staging string, updateCols, allCols []string) []any {
	args := []any{bun.Ident(master)}
	args = appendIdents(args, allCols...)
	args = appendIdents(args, allCols...)
	args = append(args, bun.Ident(staging), bun.Ident(models.IDColumn))
	for _, c := range updateCols {
		args = appendIdents(args, c, c)
	}
	return args
}

type postgresFlavor struct{}

func (postgresFlavor) columnType(t models.WarehouseType) string {
	switch t {
	case models.WarehouseFloat:
		return "DOUBLE PRECISION"
	case models.WarehouseTimestamp:
		return "TIMESTAMPTZ"
	case models.WarehouseDate:
		return "DATE"
	case models.WarehouseBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (postgresFlavor) columnsQuery() string {
	return `SELECT column_name AS name, data_type
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`
}

func (postgresFlavor) truncate() string { return "TRUNCATE TABLE ?" }

func (postgresFlavor) merge(updateCols, allCols int) string {
	var b strings.Builder
	b.WriteString("MERGE INTO ? AS m USING ? AS s ON m.? = s.?")
	if updateCols > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		for i := 0; i < updateCols; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("? = s.?")
		}
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(placeholders(allCols))
	b.WriteString(") VALUES (")
	for i := 0; i < allCols; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("s.?")
	}
	b.WriteString(")")
	return b.String()
}

func (postgresFlavor) mergeArgs(master, staging string, updateCols, allCols []string) []any {
	args := []any{bun.Ident(master), bun.Ident(staging), bun.Ident(models.IDColumn), bun.Ident(models.IDColumn)}
	for _, c := range updateCols {
		args = appendIdents(args, c, c)
	}
	args = appendIdents(args, allCols...)
	args = appendIdents(args, allCols...)
	return args
}

// duckdbFlavor supports MERGE INTO (DuckDB 1.4+) and the information_schema catalog.
type duckdbFlavor struct {
	postgresFlavor
}

func (duckdbFlavor) columnType(t models.WarehouseType) string {
	switch t {
	case models.WarehouseFloat:
		return "DOUBLE"
	case models.WarehouseTimestamp:
		return "TIMESTAMPTZ"
	case models.WarehouseDate:
		return "DATE"
	case models.WarehouseBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// normalizeType maps an engine-reported column type back to a warehouse type.
func normalizeType(raw string) (models.WarehouseType, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case t == "":
		return "", false
	case strings.HasPrefix(t, "timestamp"):
		return models.WarehouseTimestamp, true
	case t == "date":
		return models.WarehouseDate, true
	case strings.HasPrefix(t, "bool"):
		return models.WarehouseBoolean, true
	case strings.HasPrefix(t, "double"), t == "real", t == "float", strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "decimal"):
		return models.WarehouseFloat, true
	case t == "text", strings.HasPrefix(t, "varchar"), strings.HasPrefix(t, "character varying"), t == "string":
		return models.WarehouseString, true
	default:
		return "", false
	}
}

func appendIdents(args []any, names ...string) []any {
	for _, n := range names {
		args = append(args, bun.Ident(n))
	}
	return args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
