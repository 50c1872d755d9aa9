package models

import "strings"

// PropertyType is the logical type the CRM declares for a property.
type PropertyType string

const (
	PropertyString   PropertyType = "string"
	PropertyNumber   PropertyType = "number"
	PropertyDatetime PropertyType = "datetime"
	PropertyDate     PropertyType = "date"
	PropertyBool     PropertyType = "bool"
	PropertyOther    PropertyType = "other"
)

// ParsePropertyType normalizes a source type name. Unknown names map to PropertyOther.
func ParsePropertyType(s string) PropertyType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return PropertyString
	case "number":
		return PropertyNumber
	case "datetime":
		return PropertyDatetime
	case "date":
		return PropertyDate
	case "bool", "boolean", "booleancheckbox":
		return PropertyBool
	default:
		return PropertyOther
	}
}

// WarehouseType is the column type used in the destination tables.
type WarehouseType string

const (
	WarehouseString    WarehouseType = "STRING"
	WarehouseFloat     WarehouseType = "FLOAT"
	WarehouseTimestamp WarehouseType = "TIMESTAMP"
	WarehouseDate      WarehouseType = "DATE"
	WarehouseBoolean   WarehouseType = "BOOLEAN"
)

// PropertyDefinition is a single field definition from the source catalogue.
// It is fetched fresh each run and never persisted.
type PropertyDefinition struct {
	Name string       `json:"name"`
	Type PropertyType `json:"type"`
}

// ColumnSpec describes one warehouse column derived from a property.
type ColumnSpec struct {
	Name     string        `json:"name"`
	Source   string        `json:"source"`
	Type     WarehouseType `json:"type"`
	Nullable bool          `json:"nullable"`
}

// IDColumn is the primary-key column present in every table.
const IDColumn = "id"

// IDColumnSpec returns the primary-key column spec.
func IDColumnSpec() ColumnSpec {
	return ColumnSpec{Name: IDColumn, Source: IDColumn, Type: WarehouseString, Nullable: false}
}

// ColumnNames returns the names of specs in order.
func ColumnNames(specs []ColumnSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}
