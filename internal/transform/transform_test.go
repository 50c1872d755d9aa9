package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoziy/crmsync/internal/models"
)

func TestCoerce(t *testing.T) {
	ts := time.UnixMilli(1700000000000).UTC()

	cases := []struct {
		name  string
		field string
		raw   any
		typ   models.WarehouseType
		want  models.Value
	}{
		{"nil", "email", nil, models.WarehouseString, models.Null()},
		{"empty string", "score", "", models.WarehouseFloat, models.Null()},
		{"string", "email", "a@x.io", models.WarehouseString, models.String("a@x.io")},
		{"bool to string", "note", true, models.WarehouseString, models.String("true")},
		{"number to string", "note", 12.5, models.WarehouseString, models.String("12.5")},
		{"numeric string", "score", "1,234.50", models.WarehouseFloat, models.Number(1234.5)},
		{"currency string", "amount", "$-12", models.WarehouseFloat, models.Number(-12)},
		{"json number", "score", 7.0, models.WarehouseFloat, models.Number(7)},
		{"unparseable number", "score", "n/a", models.WarehouseFloat, models.Null()},
		{"bool true", "optin", "TRUE", models.WarehouseBoolean, models.Bool(true)},
		{"bool false", "optin", "false", models.WarehouseBoolean, models.Bool(false)},
		{"json bool", "optin", false, models.WarehouseBoolean, models.Bool(false)},
		{"bool garbage", "optin", "yes", models.WarehouseBoolean, models.Null()},
		{"iso datetime", "createdate", "2024-01-02T03:04:05Z", models.WarehouseTimestamp, models.String("2024-01-02T03:04:05Z")},
		{"epoch ms", "createdate", "1700000000000", models.WarehouseTimestamp, models.Timestamp(ts)},
		{"epoch ms number", "createdate", 1700000000000.0, models.WarehouseTimestamp, models.Timestamp(ts)},
		{"date", "birthday", "2024-01-02", models.WarehouseDate, models.String("2024-01-02")},
		{"optout stays string", "hs_email_optout_42", "true", models.WarehouseBoolean, models.String("true")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Coerce(tc.field, tc.raw, tc.typ))
		})
	}
}

func TestTransform(t *testing.T) {
	specs := []models.ColumnSpec{
		models.IDColumnSpec(),
		{Name: "firstname", Source: "FirstName", Type: models.WarehouseString, Nullable: true},
		{Name: "score", Source: "score", Type: models.WarehouseFloat, Nullable: true},
	}
	records := []models.Record{
		{ID: "1", Properties: map[string]any{"FirstName": "Ada", "score": "3", "unknown": "x", "id": "999"}},
		{ID: "2", Properties: map[string]any{"FirstName": ""}},
	}

	rows := Transform(records, specs)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", rows[0].ID)
	assert.Equal(t, models.String("Ada"), rows[0].Values["firstname"])
	assert.Equal(t, models.Number(3), rows[0].Values["score"])
	assert.NotContains(t, rows[0].Values, "unknown")
	assert.Equal(t, models.String("1"), rows[0].Get("id"))

	assert.True(t, rows[1].Get("firstname").IsNull())
	assert.True(t, rows[1].Get("score").IsNull())
}
