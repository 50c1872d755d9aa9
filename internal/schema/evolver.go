package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/apperrors"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

// SchemaConflictError reports a requested column that already exists with another type.
type SchemaConflictError struct {
	Table     string
	Column    string
	Existing  models.WarehouseType
	Requested models.WarehouseType
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("column %s.%s exists as %s, requested %s; retyping must be done manually",
		e.Table, e.Column, e.Existing, e.Requested)
}

func (e *SchemaConflictError) Unwrap() error { return apperrors.ErrSchemaConflict }

// TableHandle describes a table after evolution.
type TableHandle struct {
	Name    string
	Created bool
	Added   []models.ColumnSpec
	// Columns is the number of columns the table has after Ensure.
	Columns int
}

// Evolver creates tables and appends missing columns. It never drops or retypes.
type Evolver struct {
	wh     *warehouse.Warehouse
	logger *zap.Logger
}

func NewEvolver(wh *warehouse.Warehouse, logger *zap.Logger) *Evolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evolver{wh: wh, logger: logger}
}

// Ensure makes table hold at least specs. A missing table is created with exactly
// specs; an existing one gets only the columns it lacks.
func (e *Evolver) Ensure(ctx context.Context, table string, specs []models.ColumnSpec) (*TableHandle, error) {
	existing, err := e.wh.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		if err := e.wh.CreateTable(ctx, table, specs); err != nil {
			return nil, err
		}
		e.logger.Info("created table", zap.String("table", table), zap.Int("columns", len(specs)))
		return &TableHandle{Name: table, Created: true, Columns: len(specs)}, nil
	}

	present := make(map[string]warehouse.Column, len(existing))
	for _, c := range existing {
		present[c.Name] = c
	}

	handle := &TableHandle{Name: table, Columns: len(existing)}
	for _, spec := range specs {
		col, ok := present[spec.Name]
		if ok {
			if have, known := col.Type(); known && have != spec.Type {
				return nil, &SchemaConflictError{Table: table, Column: spec.Name, Existing: have, Requested: spec.Type}
			}
			continue
		}

		if err := e.wh.AddColumn(ctx, table, spec); err != nil {
			return nil, err
		}
		present[spec.Name] = warehouse.Column{Name: spec.Name}
		handle.Added = append(handle.Added, spec)
		handle.Columns++
	}

	if len(handle.Added) > 0 {
		e.logger.Info("added columns",
			zap.String("table", table),
			zap.Int("added", len(handle.Added)),
			zap.Int("columns", handle.Columns))
	}

	return handle, nil
}
