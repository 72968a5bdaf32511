package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadSource parses a lead file by extension (.csv or .xlsx) and returns the
// header row plus data rows.
func ReadSource(path string) (header []string, rows [][]string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path, 0)
	default:
		return nil, nil, eris.Errorf("ingest: unsupported source format %q", filepath.Ext(path))
	}
}

// ReadCSV parses CSV input. The first row is the header. Rows may have
// variable field counts; MapRows pads short rows.
func ReadCSV(r io.Reader) (header []string, rows [][]string, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: read csv row")
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	if header == nil {
		return nil, nil, eris.New("ingest: csv source is empty")
	}
	return header, rows, nil
}

// ReadXLSX parses the given sheet of an XLSX workbook. The sheet's first row
// is the header.
func ReadXLSX(path string, sheetIndex int) (header []string, rows [][]string, err error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if sheetIndex >= len(f.Sheets) {
		return nil, nil, eris.Errorf("ingest: sheet index %d out of range (workbook has %d sheets)", sheetIndex, len(f.Sheets))
	}

	for i, row := range f.Sheets[sheetIndex].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, nil, eris.New("ingest: xlsx sheet is empty")
	}
	return header, rows, nil
}
