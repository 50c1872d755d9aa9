package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/crmsync/internal/database"
	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/schema"
	"github.com/mkoziy/crmsync/internal/testhelpers"
	"github.com/mkoziy/crmsync/internal/warehouse"
)

type fakeSource struct {
	live     []string
	archived []string
	err      error
}

func (f fakeSource) FetchLiveIDs(context.Context) ([]string, error)     { return f.live, f.err }
func (f fakeSource) FetchArchivedIDs(context.Context) ([]string, error) { return f.archived, f.err }

func newMaster(t *testing.T, ids ...string) (*warehouse.Warehouse, *schema.Evolver) {
	t.Helper()
	ctx := context.Background()
	db := testhelpers.NewSQLiteDB(t)
	wh := warehouse.New(db, database.DriverSQLite, nil)
	ev := schema.NewEvolver(wh, nil)

	_, err := ev.Ensure(ctx, "contacts", []models.ColumnSpec{models.IDColumnSpec()})
	require.NoError(t, err)
	rows := make([]models.Row, len(ids))
	for i, id := range ids {
		rows[i] = models.Row{ID: id}
	}
	require.Equal(t, warehouse.Success, wh.InsertRows(ctx, "contacts", nil, rows).Outcome)
	return wh, ev
}

func TestAntiJoinDeletesMissing(t *testing.T) {
	ctx := context.Background()
	wh, ev := newMaster(t, "1", "2", "3")

	r := New(fakeSource{live: []string{"1", "3"}}, wh, ev, "contacts", StrategyAntiJoin, nil)
	res, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, 2, res.Candidates)

	n, err := wh.Count(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	live, err := wh.Count(ctx, LiveTable("contacts"))
	require.NoError(t, err)
	assert.Zero(t, live, "live id table is cleared after the sweep")
}

func TestAntiJoinEmptyLiveSetDeletesNothing(t *testing.T) {
	ctx := context.Background()
	wh, ev := newMaster(t, "1", "2")

	res, err := New(fakeSource{}, wh, ev, "contacts", StrategyAntiJoin, nil).Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, res.Deleted)

	n, err := wh.Count(ctx, "contacts")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestArchivedDeletesListedIDs(t *testing.T) {
	ctx := context.Background()
	wh, ev := newMaster(t, "1", "2", "3")

	r := New(fakeSource{archived: []string{"2", "99"}}, wh, ev, "contacts", StrategyArchived, nil)
	res, err := r.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, int64(1), res.Deleted, "only rows actually removed are counted")
}

func TestReconcileMissingMaster(t *testing.T) {
	db := testhelpers.NewSQLiteDB(t)
	wh := warehouse.New(db, database.DriverSQLite, nil)

	res, err := New(fakeSource{live: []string{"1"}}, wh, schema.NewEvolver(wh, nil), "contacts", "", nil).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
}

func TestReconcileSourceErrorPropagates(t *testing.T) {
	wh, ev := newMaster(t, "1")
	boom := errors.New("boom")

	_, err := New(fakeSource{err: boom}, wh, ev, "contacts", StrategyAntiJoin, nil).Reconcile(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyAntiJoin, s)

	s, err = ParseStrategy("ARCHIVED")
	require.NoError(t, err)
	assert.Equal(t, StrategyArchived, s)

	_, err = ParseStrategy("nuke")
	assert.Error(t, err)
}
