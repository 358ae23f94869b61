// Package report renders tabular exports as xlsx workbooks.
package report

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of an xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const defaultSheet = "Sheet1"

// Column describes one column of a sheet.
type Column struct {
	Header string
	Width  float64
}

// Sheet is a titled table. Each row must have one value per column; values
// are written with their native cell type (numbers stay numeric).
type Sheet struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// AddRow appends a row.
func (s *Sheet) AddRow(values ...any) {
	s.Rows = append(s.Rows, values)
}

// Render writes the sheets into a single workbook.
func Render(sheets ...*Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("report: no sheets")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, s := range sheets {
		if err := writeSheet(f, s, headerStyle); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		if i == 0 {
			idx, err := f.GetSheetIndex(s.Name)
			if err != nil {
				return nil, err
			}
			f.SetActiveSheet(idx)
		}
	}
	if sheets[0].Name != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("delete default sheet: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s *Sheet, headerStyle int) error {
	if s.Name != defaultSheet {
		if _, err := f.NewSheet(s.Name); err != nil {
			return err
		}
	}
	for col, c := range s.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(s.Name, cell, c.Header); err != nil {
			return err
		}
		if err := f.SetCellStyle(s.Name, cell, cell, headerStyle); err != nil {
			return err
		}
		if c.Width > 0 {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return err
			}
			if err := f.SetColWidth(s.Name, name, name, c.Width); err != nil {
				return err
			}
		}
	}
	for r, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", r+1, len(row), len(s.Columns))
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
			return err
		}
	}
	if len(s.Columns) > 0 {
		if err := f.SetPanes(s.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return err
		}
	}
	return nil
}

// Filename returns base-YYYYMMDD.xlsx for t.
func Filename(base string, t time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", base, t.UTC().Format("20060102"))
}

// Send writes a rendered workbook as an attachment.
func Send(c echo.Context, filename string, data []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, ContentType, data)
}
