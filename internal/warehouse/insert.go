package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/models"
)

// Outcome classifies a batch insert.
type Outcome int

const (
	// Success means every row was written.
	Success Outcome = iota
	// Partial means some rows were rejected; see InsertResult.RowErrors.
	Partial
	// Fatal means the batch could not be attempted; see InsertResult.Err.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Partial:
		return "partial"
	default:
		return "fatal"
	}
}

// RowError describes one row the engine rejected.
type RowError struct {
	ID     string
	Reason string
}

// InsertResult is returned by InsertRows instead of an error so callers inspect
// row-level failures explicitly.
type InsertResult struct {
	Outcome   Outcome
	Inserted  int
	RowErrors []RowError
	Err       error
}

// InsertRows writes rows into table, keyed by id: a row whose id already exists
// replaces the stored one, so retried inserts never duplicate. When the batch
// statement fails, rows are retried one at a time and the rejected ones are
// reported in RowErrors.
func (w *Warehouse) InsertRows(ctx context.Context, table string, columns []string, rows []models.Row) InsertResult {
	if len(rows) == 0 {
		return InsertResult{Outcome: Success}
	}
	cols := withID(columns)

	err := w.insert(ctx, table, cols, rows)
	if err == nil {
		return InsertResult{Outcome: Success, Inserted: len(rows)}
	}
	if isFatal(err) {
		return InsertResult{Outcome: Fatal, Err: err}
	}

	w.logger.Debug("batch insert failed, isolating rows",
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Error(err))

	res := InsertResult{Outcome: Success}
	for _, row := range rows {
		if err := w.insert(ctx, table, cols, []models.Row{row}); err != nil {
			if isFatal(err) {
				return InsertResult{Outcome: Fatal, Inserted: res.Inserted, RowErrors: res.RowErrors, Err: err}
			}
			res.RowErrors = append(res.RowErrors, RowError{ID: row.ID, Reason: err.Error()})
			continue
		}
		res.Inserted++
	}
	if len(res.RowErrors) > 0 {
		res.Outcome = Partial
	}
	return res
}

func (w *Warehouse) insert(ctx context.Context, table string, cols []string, rows []models.Row) error {
	var b strings.Builder
	args := make([]any, 0, 1+len(cols)*(len(rows)+3))

	b.WriteString("INSERT INTO ? (")
	b.WriteString(placeholders(len(cols)))
	b.WriteString(") VALUES ")
	args = append(args, bun.Ident(table))
	args = appendIdents(args, cols...)

	rowTmpl := "(" + placeholders(len(cols)) + ")"
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowTmpl)
		for _, c := range cols {
			args = append(args, row.Get(c).SQLArg())
		}
	}

	b.WriteString(" ON CONFLICT (?) DO ")
	args = append(args, bun.Ident(models.IDColumn))
	if len(cols) == 1 {
		b.WriteString("NOTHING")
	} else {
		b.WriteString("UPDATE SET ")
		first := true
		for _, c := range cols {
			if c == models.IDColumn {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString("? = EXCLUDED.?")
			args = appendIdents(args, c, c)
		}
	}

	if _, err := w.db.NewRaw(b.String(), args...).Exec(ctx); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}
