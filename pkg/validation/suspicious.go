package validation

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

// Reasons a text value is flagged.
const (
	ReasonSQLInjection = "sql_injection_pattern"
	ReasonFormula      = "formula_prefix"
)

// formulaPrefixes start a formula when a value is pasted back into a spreadsheet.
const formulaPrefixes = "=+-@"

// SuspiciousValue is a stored text value worth a security review. Flagged
// values are still committed; the sink writes them as parameters.
type SuspiciousValue struct {
	Row         int
	Field       string
	Reason      string
	Fingerprint string // libinjection fingerprint, empty for formulas
}

// ScanSuspicious reports text values that look like SQL injection or start a
// spreadsheet formula, returning at most limit findings (all when limit <= 0).
func ScanSuspicious(records []models.CanonicalRecord, sch *schema.Schema, limit int) []SuspiciousValue {
	var found []SuspiciousValue
	for i, rec := range records {
		for _, f := range sch.Fields {
			if f.Type != schema.TypeText {
				continue
			}
			s, ok := rec.Value(f.Name).(string)
			if !ok {
				continue
			}
			if hit, ok := checkText(s); ok {
				hit.Row = i
				hit.Field = f.Name
				found = append(found, hit)
				if limit > 0 && len(found) >= limit {
					return found
				}
			}
		}
	}
	return found
}

func checkText(s string) (SuspiciousValue, bool) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 1 && strings.ContainsRune(formulaPrefixes, rune(trimmed[0])) && !isSignedNumber(trimmed) {
		return SuspiciousValue{Reason: ReasonFormula}, true
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return SuspiciousValue{Reason: ReasonSQLInjection, Fingerprint: string(fingerprint)}, true
	}
	return SuspiciousValue{}, false
}

// isSignedNumber keeps values like "-12" or "+3.5" from being flagged as formulas.
func isSignedNumber(s string) bool {
	if s[0] != '-' && s[0] != '+' {
		return false
	}
	digits := 0
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
