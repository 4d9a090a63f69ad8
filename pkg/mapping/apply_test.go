package mapping

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
)

func schemaFor(t *testing.T, kind models.DatasetKind) *schema.Schema {
	t.Helper()
	sch := schema.MustDefault().SchemaFor(kind)
	require.NotNil(t, sch)
	return sch
}

func entityDataset() *models.ParsedDataset {
	return &models.ParsedDataset{
		Columns: []string{"Co ID", "Co Name", "Country"},
		Rows: [][]models.Cell{
			{models.TextCell("E1"), models.TextCell("Acme"), models.TextCell("US")},
			{models.NumberCell(42), models.TextCell("Beta"), models.EmptyCell()},
			{models.TextCell("007"), models.TextCell("   ")},
		},
	}
}

func TestApply_MapsAndCoercesText(t *testing.T) {
	sch := schemaFor(t, models.DatasetEntities)

	records, err := Apply(entityDataset(), sch, models.ColumnMapping{
		"ENTITY_ID":   "Co ID",
		"ENTITY_NAME": "Co Name",
	})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "E1", records[0]["ENTITY_ID"])
	assert.Equal(t, "Acme", records[0]["ENTITY_NAME"])
	assert.Equal(t, "42", records[1]["ENTITY_ID"], "numbers become text for text fields")
	assert.Equal(t, "007", records[2]["ENTITY_ID"], "leading zeros survive")
	assert.Nil(t, records[2]["ENTITY_NAME"], "whitespace only text is null")

	// Unmapped field is present and null.
	v, ok := records[0]["ENTITY_TAX_JURISDICTION"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestApply_NumericCoercion(t *testing.T) {
	sch := schemaFor(t, models.DatasetOwnership)
	ds := &models.ParsedDataset{
		Columns: []string{"P", "C", "Pct"},
		Rows: [][]models.Cell{
			{models.TextCell("A"), models.TextCell("B"), models.NumberCell(50)},
			{models.TextCell("A"), models.TextCell("C"), models.TextCell(" 12.5 ")},
			{models.TextCell("A"), models.TextCell("D"), models.TextCell("fifty")},
			{models.TextCell("A"), models.TextCell("E"), models.EmptyCell()},
			{models.TextCell("A"), models.TextCell("F"), models.TextCell("NaN")},
			{models.TextCell("A"), models.TextCell("G"), models.NumberCell(math.Inf(1))},
		},
	}

	records, err := Apply(ds, sch, models.ColumnMapping{
		"PARENT_ID":      "P",
		"CHILD_ID":       "C",
		"OWNERSHIP_PERC": "Pct",
	})
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, 50.0, records[0]["OWNERSHIP_PERC"])
	assert.Equal(t, 12.5, records[1]["OWNERSHIP_PERC"])
	assert.Nil(t, records[2]["OWNERSHIP_PERC"], "unparseable numeric is null, not an error")
	assert.Nil(t, records[3]["OWNERSHIP_PERC"])
	assert.Nil(t, records[4]["OWNERSHIP_PERC"])
	assert.Nil(t, records[5]["OWNERSHIP_PERC"])
}

func TestApply_NoUsableMapping(t *testing.T) {
	sch := schemaFor(t, models.DatasetEntities)

	tests := []struct {
		name    string
		mapping models.ColumnMapping
	}{
		{name: "nil mapping", mapping: nil},
		{name: "all empty", mapping: models.ColumnMapping{"ENTITY_ID": "", "ENTITY_NAME": "  "}},
		{name: "unknown columns", mapping: models.ColumnMapping{"ENTITY_ID": "Nope", "ENTITY_NAME": "Missing"}},
		{name: "unknown fields only", mapping: models.ColumnMapping{"NOT_A_FIELD": "Co ID"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(entityDataset(), sch, tt.mapping)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrNoUsableMapping))
		})
	}
}

func TestApply_IgnoresUnusableEntriesWhenOneIsUsable(t *testing.T) {
	sch := schemaFor(t, models.DatasetEntities)

	records, err := Apply(entityDataset(), sch, models.ColumnMapping{
		"ENTITY_ID":   "Co ID",
		"ENTITY_NAME": "Missing",
		"EXTRA":       "Co Name",
	})
	require.NoError(t, err)
	assert.Nil(t, records[0]["ENTITY_NAME"])
	_, hasExtra := records[0]["EXTRA"]
	assert.False(t, hasExtra)
}

func TestApply_ShortRowsAreNull(t *testing.T) {
	sch := schemaFor(t, models.DatasetEntities)
	ds := &models.ParsedDataset{
		Columns: []string{"id", "name"},
		Rows:    [][]models.Cell{{models.TextCell("E1")}},
	}

	records, err := Apply(ds, sch, models.ColumnMapping{"ENTITY_ID": "id", "ENTITY_NAME": "name"})
	require.NoError(t, err)
	assert.Equal(t, "E1", records[0]["ENTITY_ID"])
	assert.Nil(t, records[0]["ENTITY_NAME"])
}

func TestApply_PreservesRowOrderAndCount(t *testing.T) {
	sch := schemaFor(t, models.DatasetPersons)
	ds := &models.ParsedDataset{Columns: []string{"PERSON_ID"}}
	for i := 0; i < 250; i++ {
		ds.Rows = append(ds.Rows, []models.Cell{models.NumberCell(float64(i))})
	}

	records, err := Apply(ds, sch, models.ColumnMapping{"PERSON_ID": "PERSON_ID"})
	require.NoError(t, err)
	require.Len(t, records, 250)
	assert.Equal(t, "0", records[0]["PERSON_ID"])
	assert.Equal(t, "249", records[249]["PERSON_ID"])
}

func TestEffective(t *testing.T) {
	sch := schemaFor(t, models.DatasetEntities)

	got := Effective(entityDataset(), sch, models.ColumnMapping{
		"ENTITY_ID":               "Co ID",
		"ENTITY_NAME":             "",
		"ENTITY_TAX_JURISDICTION": "Nope",
	})
	assert.Equal(t, models.ColumnMapping{"ENTITY_ID": "Co ID"}, got)
}
