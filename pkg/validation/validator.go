// Package validation checks canonical records against their schema.
package validation

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

// HeaderRows is the number of spreadsheet rows above the first data row.
// Row index i is reported to users as spreadsheet row i+HeaderRows+1.
const HeaderRows = 1

// Validator evaluates records row by row and stops at the first violation.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate returns records unchanged when every row conforms to sch. On the
// first failing row it returns an *apperrors.IngestError of kind
// ErrValidation carrying the row index and field; no later row is checked.
func (v *Validator) Validate(records []models.CanonicalRecord, sch *schema.Schema) ([]models.CanonicalRecord, error) {
	if sch == nil {
		return nil, fmt.Errorf("schema is required")
	}
	for i, rec := range records {
		for _, f := range sch.Fields {
			if err := v.checkField(i, rec.Value(f.Name), f); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

// SpreadsheetRow converts a zero-based data row index to the row number shown in a spreadsheet.
func SpreadsheetRow(index int) int {
	return index + HeaderRows + 1
}

func (v *Validator) checkField(row int, value any, f schema.Field) error {
	if value == nil {
		if f.Required {
			return fail(row, f, "is required but empty")
		}
		return nil
	}

	switch f.Type {
	case schema.TypeNumber:
		n, ok := value.(float64)
		if !ok {
			return fail(row, f, fmt.Sprintf("must be a number, got %q", fmt.Sprint(value)))
		}
		if f.Range == nil {
			return nil
		}
		tag := "gte=" + formatBound(f.Range.Min) + ",lte=" + formatBound(f.Range.Max)
		if err := v.validate.Var(n, tag); err != nil {
			return fail(row, f, fmt.Sprintf("must be between %s and %s, got %s",
				formatBound(f.Range.Min), formatBound(f.Range.Max), formatBound(n)))
		}
	default:
		s, ok := value.(string)
		if !ok {
			return fail(row, f, fmt.Sprintf("must be text, got %v", value))
		}
		if f.MinLength <= 0 {
			return nil
		}
		if err := v.validate.Var(s, "min="+strconv.Itoa(f.MinLength)); err != nil {
			return fail(row, f, fmt.Sprintf("must be at least %d characters, got %d",
				f.MinLength, utf8.RuneCountInString(s)))
		}
	}
	return nil
}

func fail(row int, f schema.Field, reason string) error {
	return apperrors.Validation(row, f.Name,
		fmt.Sprintf("row %d: %s %s", SpreadsheetRow(row), f.Name, reason))
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
