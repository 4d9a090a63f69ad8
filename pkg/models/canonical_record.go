package models

// ColumnMapping maps a canonical field name to the chosen source column.
// An empty value means the field is not mapped.
type ColumnMapping map[string]string

// CanonicalRecord is one row after mapping and coercion. Values are
// string for text fields, float64 for number fields, or nil when absent.
type CanonicalRecord map[string]any

// Value returns the value of field, nil when absent.
func (r CanonicalRecord) Value(field string) any {
	if r == nil {
		return nil
	}
	return r[field]
}
