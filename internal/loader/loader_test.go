package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/testhelpers"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

var specs = []models.ColumnSpec{
	models.IDColumnSpec(),
	{Name: "email", Source: "email", Type: models.WarehouseString, Nullable: true},
}

func newTestLoader(t *testing.T, batch int) (*Loader, *warehouse.Warehouse) {
	t.Helper()
	db := testhelpers.NewSQLiteDB(t)
	wh := warehouse.New(db, database.DriverSQLite, nil)
	ev := schema.NewEvolver(wh, nil)
	_, err := ev.Ensure(context.Background(), "contacts", specs)
	require.NoError(t, err)
	return New(wh, ev, Config{Master: "contacts", Staging: "contacts_staging", BatchSize: batch}, nil), wh
}

func emailRow(id, email string) models.Row {
	return models.Row{ID: id, Values: map[string]models.Value{"email": models.String(email)}}
}

func TestLoadEmptyIsNoop(t *testing.T) {
	l, wh := newTestLoader(t, 0)
	res, err := l.Load(context.Background(), nil, specs)
	require.NoError(t, err)
	assert.True(t, res.NoChanges())

	exists, err := wh.TableExists(context.Background(), "contacts_staging")
	require.NoError(t, err)
	assert.False(t, exists, "staging must not be touched for an empty load")
}

func TestLoadUpsertsAndClearsStaging(t *testing.T) {
	ctx := context.Background()
	l, wh := newTestLoader(t, 2)

	res, err := l.Load(ctx, []models.Row{emailRow("1", "a"), emailRow("2", "b"), emailRow("3", "c")}, specs)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Staged)
	assert.Equal(t, int64(3), res.Upserted)

	res, err = l.Load(ctx, []models.Row{emailRow("1", "a2"), emailRow("1", "a3")}, specs)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Staged)

	n, err := wh.Count(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	staged, err := wh.Count(ctx, "contacts_staging")
	require.NoError(t, err)
	assert.Zero(t, staged)
}

func TestLoadToleratesRejectedRow(t *testing.T) {
	ctx := context.Background()
	l, wh := newTestLoader(t, 0)

	rows := []models.Row{emailRow("1", "a"), emailRow("2", "b"), emailRow("", "bad"), emailRow("4", "d"), emailRow("5", "e")}
	res, err := l.Load(ctx, rows, specs)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Staged)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.RowErrors, 1)

	n, err := wh.Count(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDedupeKeepsLast(t *testing.T) {
	out := Dedupe([]models.Row{emailRow("1", "a"), emailRow("2", "b"), emailRow("1", "c"), emailRow("", "x"), emailRow("", "y")})
	require.Len(t, out, 4)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, models.String("c"), out[0].Values["email"])
	assert.Equal(t, "2", out[1].ID)
}

func TestNewClampsBatchSize(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, New(nil, nil, Config{}, nil).cfg.BatchSize)
	assert.Equal(t, 1, New(nil, nil, Config{BatchSize: -5}, nil).cfg.BatchSize)
	assert.Equal(t, MaxBatchSize, New(nil, nil, Config{BatchSize: 5000}, nil).cfg.BatchSize)
}
