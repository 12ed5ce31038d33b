// Package export builds styled xlsx workbooks. It knows nothing about
// patients or investigations: callers hand it columns, rows and sections.
package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	// ContentType is the MIME type of the produced workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	headerFill  = "4472C4"
	sectionFill = "D9E1F2"
	columnFill  = "E7E6E6"
	white       = "FFFFFF"

	maxSheetName = 31
)

// Column is a table column with its display width in characters.
type Column struct {
	Header string
	Width  float64
}

// Section is a titled sub-table inside a report sheet.
type Section struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// Report is a sheet with a title banner, label/value lines and sections.
type Report struct {
	Title  string
	Meta   [][2]string
	Widths []float64

	Sections []Section
}

type styles struct {
	header, border, title, label, section, column int
}

// Workbook wraps an excelize file. The first sheet added replaces the
// default one.
type Workbook struct {
	f      *excelize.File
	st     styles
	sheets int
}

func New() (*Workbook, error) {
	f := excelize.NewFile()
	w := &Workbook{f: f}
	if err := w.initStyles(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func thinBorder() []excelize.Border {
	b := make([]excelize.Border, 0, 4)
	for _, side := range []string{"left", "top", "right", "bottom"} {
		b = append(b, excelize.Border{Type: side, Color: "000000", Style: 1})
	}
	return b
}

func solid(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
}

func (w *Workbook) initStyles() error {
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&w.st.header, &excelize.Style{
			Font: &excelize.Font{Bold: true, Color: white},
			Fill: solid(headerFill), Border: thinBorder(),
		}},
		{&w.st.border, &excelize.Style{Border: thinBorder()}},
		{&w.st.title, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 16, Color: white},
			Fill:      solid(headerFill),
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&w.st.label, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&w.st.section, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}, Fill: solid(sectionFill)}},
		{&w.st.column, &excelize.Style{Font: &excelize.Font{Bold: true}, Fill: solid(columnFill), Border: thinBorder()}},
	}
	for _, d := range defs {
		id, err := w.f.NewStyle(d.style)
		if err != nil {
			return fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return nil
}

// SheetName trims a name to the 31 characters a sheet name may hold.
func SheetName(name string) string {
	r := []rune(name)
	if len(r) > maxSheetName {
		r = r[:maxSheetName]
	}
	return string(r)
}

func (w *Workbook) addSheet(name string) (string, error) {
	name = SheetName(name)
	if w.sheets == 0 {
		if err := w.f.SetSheetName(w.f.GetSheetName(0), name); err != nil {
			return "", fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return "", fmt.Errorf("add sheet %q: %w", name, err)
	}
	w.sheets++
	return name, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func (w *Workbook) setWidths(sheet string, widths []float64) error {
	for i, width := range widths {
		if width <= 0 {
			continue
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := w.f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workbook) writeRow(sheet string, row int, values []interface{}) error {
	return w.f.SetSheetRow(sheet, cell(1, row), &values)
}

// Table adds a sheet with a styled header row and bordered data rows.
func (w *Workbook) Table(name string, cols []Column, rows [][]interface{}) error {
	sheet, err := w.addSheet(name)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}

	headers := make([]interface{}, len(cols))
	widths := make([]float64, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
		widths[i] = c.Width
	}
	if err := w.writeRow(sheet, 1, headers); err != nil {
		return err
	}
	if err := w.f.SetCellStyle(sheet, cell(1, 1), cell(len(cols), 1), w.st.header); err != nil {
		return err
	}
	for i, r := range rows {
		if err := w.writeRow(sheet, i+2, r); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		if err := w.f.SetCellStyle(sheet, cell(1, 2), cell(len(cols), len(rows)+1), w.st.border); err != nil {
			return err
		}
	}
	return w.setWidths(sheet, widths)
}

// AddReport adds a report sheet: a merged title banner, a blank line, the
// meta lines, then each non-empty section with its own column header row.
func (w *Workbook) AddReport(name string, r Report) error {
	sheet, err := w.addSheet(name)
	if err != nil {
		return err
	}

	span := 2
	for _, s := range r.Sections {
		if len(s.Columns) > span {
			span = len(s.Columns)
		}
	}
	if err := w.f.SetCellValue(sheet, "A1", r.Title); err != nil {
		return err
	}
	if err := w.f.MergeCell(sheet, "A1", cell(span, 1)); err != nil {
		return err
	}
	if err := w.f.SetCellStyle(sheet, "A1", cell(span, 1), w.st.title); err != nil {
		return err
	}

	row := 3
	for _, m := range r.Meta {
		if err := w.writeRow(sheet, row, []interface{}{m[0], m[1]}); err != nil {
			return err
		}
		if err := w.f.SetCellStyle(sheet, cell(1, row), cell(1, row), w.st.label); err != nil {
			return err
		}
		row++
	}
	row++

	for _, s := range r.Sections {
		if len(s.Rows) == 0 {
			continue
		}
		if err := w.f.SetCellValue(sheet, cell(1, row), s.Title); err != nil {
			return err
		}
		if err := w.f.SetCellStyle(sheet, cell(1, row), cell(1, row), w.st.section); err != nil {
			return err
		}
		row += 2

		cols := make([]interface{}, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = c
		}
		if err := w.writeRow(sheet, row, cols); err != nil {
			return err
		}
		if err := w.f.SetCellStyle(sheet, cell(1, row), cell(len(s.Columns), row), w.st.column); err != nil {
			return err
		}
		row++

		first := row
		for _, data := range s.Rows {
			vals := make([]interface{}, len(data))
			for i, v := range data {
				vals[i] = v
			}
			if err := w.writeRow(sheet, row, vals); err != nil {
				return err
			}
			row++
		}
		if err := w.f.SetCellStyle(sheet, cell(1, first), cell(len(s.Columns), row-1), w.st.border); err != nil {
			return err
		}
		row += 2
	}
	return w.setWidths(sheet, r.Widths)
}

// WriteTo writes the workbook as xlsx.
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	if w.sheets > 0 {
		w.f.SetActiveSheet(0)
	}
	return w.f.WriteTo(out)
}

// Bytes renders the workbook and releases it.
func (w *Workbook) Bytes() ([]byte, error) {
	defer w.Close()
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Workbook) Close() error {
	return w.f.Close()
}

// NA substitutes "N/A" for blank values.
func NA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// YesNo renders a flag the way report sheets show it.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
