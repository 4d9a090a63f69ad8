// Package mapping turns a parsed upload into canonical records using a
// user-chosen column mapping and the field types of the target schema.
package mapping

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

// selection is one canonical field bound to a source column index.
type selection struct {
	field schema.Field
	col   int
}

// Effective returns the usable part of mapping: entries naming a field of
// sch and a non-empty column that exists in ds.
func Effective(ds *models.ParsedDataset, sch *schema.Schema, mapping models.ColumnMapping) models.ColumnMapping {
	out := make(models.ColumnMapping)
	for _, sel := range resolve(ds, sch, mapping) {
		out[sel.field.Name] = ds.Columns[sel.col]
	}
	return out
}

func resolve(ds *models.ParsedDataset, sch *schema.Schema, mapping models.ColumnMapping) []selection {
	var sels []selection
	for _, f := range sch.Fields {
		source, ok := mapping[f.Name]
		if !ok || strings.TrimSpace(source) == "" {
			continue
		}
		col := ds.ColumnIndex(source)
		if col < 0 {
			continue
		}
		sels = append(sels, selection{field: f, col: col})
	}
	return sels
}

// Apply maps every row of ds onto sch. Each record carries every field of
// the schema; unmapped fields and values that cannot be coerced are nil.
// Rows are never rejected here.
func Apply(ds *models.ParsedDataset, sch *schema.Schema, mapping models.ColumnMapping) ([]models.CanonicalRecord, error) {
	if ds == nil || sch == nil {
		return nil, fmt.Errorf("dataset and schema are required")
	}

	sels := resolve(ds, sch, mapping)
	if len(sels) == 0 {
		return nil, apperrors.NoUsableMapping(noUsableMessage(ds, mapping))
	}

	records := make([]models.CanonicalRecord, ds.RowCount())
	for i := range ds.Rows {
		rec := make(models.CanonicalRecord, len(sch.Fields))
		for _, f := range sch.Fields {
			rec[f.Name] = nil
		}
		for _, sel := range sels {
			rec[sel.field.Name] = Coerce(ds.CellAt(i, sel.col), sel.field.Type)
		}
		records[i] = rec
	}
	return records, nil
}

// Coerce converts a cell to the canonical representation of typ:
// string or nil for text, float64 or nil for number.
func Coerce(c models.Cell, typ schema.FieldType) any {
	switch typ {
	case schema.TypeNumber:
		return coerceNumber(c)
	default:
		return coerceText(c)
	}
}

func coerceText(c models.Cell) any {
	if c.IsEmpty() || strings.TrimSpace(c.Text) == "" {
		return nil
	}
	return c.Text
}

func coerceNumber(c models.Cell) any {
	var f float64
	switch c.Kind {
	case models.CellNumber:
		f = c.Number
	case models.CellText:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(c.Text), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func noUsableMessage(ds *models.ParsedDataset, mapping models.ColumnMapping) string {
	var requested []string
	for _, source := range mapping {
		if strings.TrimSpace(source) != "" {
			requested = append(requested, strconv.Quote(source))
		}
	}
	if len(requested) == 0 {
		return "no fields were mapped, map at least one field to a column"
	}
	sort.Strings(requested)
	return fmt.Sprintf("none of the mapped columns %s exist in the uploaded file (available: %s)",
		strings.Join(requested, ", "), strings.Join(ds.Columns, ", "))
}
