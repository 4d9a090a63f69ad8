package mapping

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

// minFuzzyTermLength keeps short aliases like "id" out of subsequence matching.
const minFuzzyTermLength = 3

var separatorReplacer = strings.NewReplacer("_", " ", "-", " ", ".", " ", "/", " ")

// normalize folds case and separators so "Entity_ID", "entity id" and
// "ENTITY-ID" compare equal.
func normalize(s string) string {
	folded := cases.Fold().String(separatorReplacer.Replace(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Suggest proposes a mapping from the fields of sch to columns. Fields are
// matched in schema order, first on exact normalized names, then on aliases,
// then by fuzzy subsequence match ranked by edit distance. Each column is
// suggested at most once; fields without a plausible column are left out.
func Suggest(columns []string, sch *schema.Schema) models.ColumnMapping {
	out := make(models.ColumnMapping)
	if sch == nil || len(columns) == 0 {
		return out
	}

	normCols := make([]string, len(columns))
	for i, c := range columns {
		normCols[i] = normalize(c)
	}
	used := make([]bool, len(columns))

	assign := func(field string, col int) {
		out[field] = columns[col]
		used[col] = true
	}

	exact := func(terms []string) int {
		for _, term := range terms {
			for i, nc := range normCols {
				if !used[i] && nc != "" && nc == term {
					return i
				}
			}
		}
		return -1
	}

	// Pass 1: field name or sink column name.
	for _, f := range sch.Fields {
		if col := exact([]string{normalize(f.Name), normalize(f.Column)}); col >= 0 {
			assign(f.Name, col)
		}
	}

	// Pass 2: aliases.
	for _, f := range sch.Fields {
		if _, done := out[f.Name]; done {
			continue
		}
		if col := exact(normalizeAll(f.Aliases)); col >= 0 {
			assign(f.Name, col)
		}
	}

	// Pass 3: fuzzy.
	for _, f := range sch.Fields {
		if _, done := out[f.Name]; done {
			continue
		}
		terms := append([]string{normalize(f.Name)}, normalizeAll(f.Aliases)...)
		if col := closest(terms, normCols, used); col >= 0 {
			assign(f.Name, col)
		}
	}
	return out
}

// closest returns the unused column that fuzzily matches one of terms with
// the smallest edit distance, or -1. Ties go to the leftmost column.
func closest(terms, normCols []string, used []bool) int {
	best, bestDist := -1, 0
	for i, nc := range normCols {
		if used[i] || len(nc) < minFuzzyTermLength {
			continue
		}
		for _, term := range terms {
			if len(term) < minFuzzyTermLength {
				continue
			}
			if !fuzzy.MatchNormalizedFold(term, nc) && !fuzzy.MatchNormalizedFold(nc, term) {
				continue
			}
			dist := fuzzy.LevenshteinDistance(term, nc)
			if best < 0 || dist < bestDist {
				best, bestDist = i, dist
			}
		}
	}
	return best
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
