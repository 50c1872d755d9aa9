//go:build integration

package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/migrations"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/testhelpers"
)

func newPostgresWarehouse(t *testing.T, schema string) (*Warehouse, *bun.DB) {
	t.Helper()
	pg := testhelpers.GetPostgres(t)
	ctx := context.Background()

	db, err := database.NewDB(ctx, database.Options{
		Driver: database.DriverPostgres,
		DSN:    pg.ConnStr,
		Schema: schema,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunMigrations(ctx, db, database.DriverPostgres, nil))
	return New(db, database.DriverPostgres, nil), db
}

func TestPostgresStageAndMerge(t *testing.T) {
	ctx := context.Background()
	wh, _ := newPostgresWarehouse(t, "merge_test")

	specs := append([]models.ColumnSpec{}, testSpecs...)
	specs = append(specs, models.ColumnSpec{Name: "createdate", Type: models.WarehouseTimestamp, Nullable: true})
	require.NoError(t, wh.CreateTable(ctx, "master", specs))
	require.NoError(t, wh.CreateTable(ctx, "staging", specs))

	cols, err := wh.Columns(ctx, "master")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	typ, ok := cols[3].Type()
	require.True(t, ok)
	assert.Equal(t, models.WarehouseTimestamp, typ)

	names := []string{"email", "score", "createdate"}
	rows := []models.Row{
		row("1", "a@x.io", 1),
		row("2", "b@x.io", 2),
		{ID: "3", Values: map[string]models.Value{"createdate": models.String("not a timestamp")}},
	}
	res := wh.InsertRows(ctx, "staging", names, rows)
	assert.Equal(t, Partial, res.Outcome)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, "3", res.RowErrors[0].ID)

	n, err := wh.Merge(ctx, "master", "staging", names)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = wh.Merge(ctx, "master", "staging", names)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "second merge matches and updates the same rows")

	count, err := wh.Count(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, wh.Truncate(ctx, "staging"))
	n, err = wh.DeleteIDs(ctx, "master", []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
