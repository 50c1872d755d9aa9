package schema

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/models"
)

// optoutPattern matches the per-subscription email opt-out properties. They are
// flags at heart but the CRM types them inconsistently, so they are always strings.
var optoutPattern = regexp.MustCompile(`^hs_email_optout_\d+$`)

// IsOptoutProperty reports whether name is a numbered opt-out property.
func IsOptoutProperty(name string) bool {
	return optoutPattern.MatchString(strings.ToLower(name))
}

// Sanitize turns a source property name into a warehouse-safe identifier
// matching ^[a-z][a-z0-9_]*$. It is idempotent.
func Sanitize(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower) + 2)
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := b.String()
	if out == "" || out[0] < 'a' || out[0] > 'z' {
		out = "p_" + out
	}
	return out
}

// MapType maps a declared source type to a warehouse column type.
func MapType(t models.PropertyType) models.WarehouseType {
	switch t {
	case models.PropertyString:
		return models.WarehouseString
	case models.PropertyNumber:
		return models.WarehouseFloat
	case models.PropertyDatetime:
		return models.WarehouseTimestamp
	case models.PropertyDate:
		return models.WarehouseDate
	case models.PropertyBool:
		return models.WarehouseBoolean
	default:
		return models.WarehouseString
	}
}

// MapColumns derives the column specs for a catalogue. The id column is always
// first. Properties whose sanitized name is already taken are skipped; input is
// sorted by source name so the same property wins on every run.
func MapColumns(props []models.PropertyDefinition, logger *zap.Logger) []models.ColumnSpec {
	if logger == nil {
		logger = zap.NewNop()
	}

	sorted := make([]models.PropertyDefinition, len(props))
	copy(sorted, props)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	specs := []models.ColumnSpec{models.IDColumnSpec()}
	taken := map[string]string{models.IDColumn: models.IDColumn}

	for _, p := range sorted {
		name := Sanitize(p.Name)
		if owner, ok := taken[name]; ok {
			if owner != p.Name {
				logger.Warn("skipping property with colliding column name",
					zap.String("property", p.Name),
					zap.String("column", name),
					zap.String("kept", owner))
			}
			continue
		}
		taken[name] = p.Name

		typ := MapType(p.Type)
		if IsOptoutProperty(p.Name) {
			typ = models.WarehouseString
		}
		specs = append(specs, models.ColumnSpec{Name: name, Source: p.Name, Type: typ, Nullable: true})
	}

	return specs
}
