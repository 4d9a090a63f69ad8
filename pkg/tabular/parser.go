// Package tabular turns uploaded .xlsx workbooks into ParsedDatasets.
package tabular

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/models"
)

// Extension is the only accepted upload file extension.
const Extension = ".xlsx"

// unnamedPrefix names columns whose header cell is blank.
const unnamedPrefix = "Unnamed: "

// Options tunes the workbook reader.
type Options struct {
	// UnzipSizeLimit caps the decompressed workbook size. Zero uses the excelize default.
	UnzipSizeLimit int64
}

// Parser reads the first worksheet of a workbook. The first row is the header.
type Parser struct {
	opts Options
}

// NewParser creates a Parser.
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

// HasSupportedExtension reports whether filename names an .xlsx file.
func HasSupportedExtension(filename string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), Extension)
}

// ParseBytes parses an in-memory workbook.
func (p *Parser) ParseBytes(data []byte) (*models.ParsedDataset, error) {
	return p.Parse(bytes.NewReader(data))
}

// Parse reads a workbook from r. Any failure is returned as an UnreadableFile IngestError.
func (p *Parser) Parse(r io.Reader) (*models.ParsedDataset, error) {
	opts := excelize.Options{}
	if p.opts.UnzipSizeLimit > 0 {
		opts.UnzipSizeLimit = p.opts.UnzipSizeLimit
		opts.UnzipXMLSizeLimit = p.opts.UnzipSizeLimit
	}

	f, err := excelize.OpenReader(r, opts)
	if err != nil {
		return nil, apperrors.UnreadableFile("failed to read the file", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.UnreadableFile("workbook has no worksheets", nil)
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperrors.UnreadableFile(fmt.Sprintf("failed to read worksheet %q", sheet), err)
	}
	rows = trimTrailingEmptyRows(rows)
	if len(rows) == 0 {
		return nil, apperrors.UnreadableFile(fmt.Sprintf("worksheet %q has no header row", sheet), nil)
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	ds := &models.ParsedDataset{
		Columns: headerNames(rows[0], width),
		Rows:    make([][]models.Cell, 0, len(rows)-1),
	}

	for r, row := range rows[1:] {
		cells := make([]models.Cell, width)
		for c := 0; c < width; c++ {
			raw := ""
			if c < len(row) {
				raw = row[c]
			}
			cell, err := p.readCell(f, sheet, c+1, r+2, raw)
			if err != nil {
				return nil, apperrors.UnreadableFile(fmt.Sprintf("failed to read row %d", r+2), err)
			}
			cells[c] = cell
		}
		ds.Rows = append(ds.Rows, cells)
	}

	return ds, nil
}

// readCell types a raw value using the cell's stored type. Cells without an
// explicit type attribute are numbers in OOXML.
func (p *Parser) readCell(f *excelize.File, sheet string, col, row int, raw string) (models.Cell, error) {
	if raw == "" {
		return models.EmptyCell(), nil
	}

	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return models.Cell{}, err
	}
	cellType, err := f.GetCellType(sheet, axis)
	if err != nil {
		return models.Cell{}, err
	}

	switch cellType {
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
			return models.NumberCell(n), nil
		}
		return models.TextCell(raw), nil
	case excelize.CellTypeBool:
		if raw == "1" {
			return models.TextCell("TRUE"), nil
		}
		return models.TextCell("FALSE"), nil
	default:
		return models.TextCell(raw), nil
	}
}

// headerNames builds unique column names. Blank headers become "Unnamed: <i>";
// repeats get the smallest ".<n>" suffix that is not already taken.
func headerNames(header []string, width int) []string {
	names := make([]string, width)
	taken := make(map[string]bool, width)

	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = unnamedPrefix + strconv.Itoa(i)
		}
		if taken[name] {
			base := name
			for n := 1; ; n++ {
				candidate := base + "." + strconv.Itoa(n)
				if !taken[candidate] && !inHeader(header, candidate) {
					name = candidate
					break
				}
			}
		}
		taken[name] = true
		names[i] = name
	}
	return names
}

// inHeader reports whether a later header cell already uses name, so a
// generated suffix never collides with a real column.
func inHeader(header []string, name string) bool {
	for _, h := range header {
		if strings.TrimSpace(h) == name {
			return true
		}
	}
	return false
}

func trimTrailingEmptyRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && isEmptyRow(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
