package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CellKind is the loose type a cell carries after parsing.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

// Cell is one scalar from the uploaded sheet. Number cells keep their
// canonical text form so text fields can still read them.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

func EmptyCell() Cell { return Cell{Kind: CellEmpty} }

func TextCell(s string) Cell {
	if s == "" {
		return EmptyCell()
	}
	return Cell{Kind: CellText, Text: s}
}

func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f, Text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// IsEmpty reports whether the cell has no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// MarshalJSON encodes empty cells as null, numbers as JSON numbers and text as strings.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellEmpty:
		return []byte("null"), nil
	case CellNumber:
		return json.Marshal(c.Number)
	default:
		return json.Marshal(c.Text)
	}
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = EmptyCell()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextCell(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("cell is neither text nor number: %w", err)
	}
	*c = NumberCell(f)
	return nil
}

// ParsedDataset is the in-memory form of one uploaded sheet.
// Columns are distinct and in source order; each row is positional against Columns.
type ParsedDataset struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

// RowCount returns the number of data rows.
func (d *ParsedDataset) RowCount() int {
	return len(d.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (d *ParsedDataset) ColumnIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the dataset has a column with that name.
func (d *ParsedDataset) HasColumn(name string) bool {
	return d.ColumnIndex(name) >= 0
}

// CellAt returns the cell at (row, col). Short rows read as empty.
func (d *ParsedDataset) CellAt(row, col int) Cell {
	if row < 0 || row >= len(d.Rows) || col < 0 {
		return EmptyCell()
	}
	r := d.Rows[row]
	if col >= len(r) {
		return EmptyCell()
	}
	return r[col]
}
