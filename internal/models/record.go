package models

// Record is one source object as returned by the CRM, keyed by source property name.
// Values are decoded JSON scalars (string, float64, bool or nil).
type Record struct {
	ID         string
	Properties map[string]any
}

// MergeRecords unions partial records by id. Later records win per field.
// Output order follows the first appearance of each id.
func MergeRecords(parts ...[]Record) []Record {
	index := make(map[string]int)
	merged := make([]Record, 0)

	for _, part := range parts {
		for _, rec := range part {
			if rec.ID == "" {
				continue
			}
			i, ok := index[rec.ID]
			if !ok {
				i = len(merged)
				index[rec.ID] = i
				merged = append(merged, Record{ID: rec.ID, Properties: make(map[string]any, len(rec.Properties))})
			}
			for k, v := range rec.Properties {
				merged[i].Properties[k] = v
			}
		}
	}

	return merged
}
