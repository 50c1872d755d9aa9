package transform

import (
	"strconv"
	"strings"
	"time"

	"github.com/mkoziy/crmsync/internal/models"
	"github.com/mkoziy/crmsync/internal/schema"
)

// Transform converts extracted records into typed rows for the given columns.
// Fields without a column are dropped. Empty strings and nulls become NULL.
func Transform(records []models.Record, specs []models.ColumnSpec) []models.Row {
	bySource := make(map[string]models.ColumnSpec, len(specs))
	for _, s := range specs {
		if s.Name == models.IDColumn {
			continue
		}
		bySource[s.Source] = s
	}

	rows := make([]models.Row, 0, len(records))
	for _, rec := range records {
		row := models.Row{ID: rec.ID, Values: make(map[string]models.Value, len(rec.Properties))}
		for field, raw := range rec.Properties {
			if field == models.IDColumn {
				continue
			}
			spec, ok := bySource[field]
			if !ok {
				continue
			}
			row.Values[spec.Name] = Coerce(field, raw, spec.Type)
		}
		rows = append(rows, row)
	}
	return rows
}

// Coerce converts a raw source value for a column of type t. It never fails:
// anything it cannot interpret becomes NULL.
func Coerce(field string, raw any, t models.WarehouseType) models.Value {
	if raw == nil {
		return models.Null()
	}
	if s, ok := raw.(string); ok && s == "" {
		return models.Null()
	}

	if schema.IsOptoutProperty(field) {
		return asString(raw)
	}

	switch t {
	case models.WarehouseFloat:
		return asNumber(raw)
	case models.WarehouseBoolean:
		return asBool(raw)
	case models.WarehouseTimestamp, models.WarehouseDate:
		return asTime(raw)
	default:
		return asString(raw)
	}
}

func asString(raw any) models.Value {
	switch v := raw.(type) {
	case string:
		return models.String(v)
	case bool:
		return models.String(strconv.FormatBool(v))
	case float64:
		return models.String(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return models.Null()
	}
}

func asNumber(raw any) models.Value {
	switch v := raw.(type) {
	case float64:
		return models.Number(v)
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, v)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return models.Null()
		}
		return models.Number(f)
	default:
		return models.Null()
	}
}

func asBool(raw any) models.Value {
	switch v := raw.(type) {
	case bool:
		return models.Bool(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return models.Bool(true)
		case "false":
			return models.Bool(false)
		}
	}
	return models.Null()
}

// asTime forwards datetime strings verbatim for the engine to parse. All-digit
// values are epoch milliseconds, which the CRM emits for some datetime properties.
func asTime(raw any) models.Value {
	switch v := raw.(type) {
	case string:
		if isDigits(v) {
			if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
				return models.Timestamp(time.UnixMilli(ms))
			}
		}
		return models.String(v)
	case float64:
		return models.Timestamp(time.UnixMilli(int64(v)))
	default:
		return models.Null()
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
