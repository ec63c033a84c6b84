package report

import (
	"fmt"

	"receiving-backend/internal/receiving"

	"github.com/xuri/excelize/v2"
)

const (
	linesSheet     = "Recepción"
	incidentsSheet = "Incidencias"
	boxesSheet     = "Cajas"
)

var lineHeaders = []string{"Orden", "Artículo", "Código", "Descripción", "Unidad", "Esperado", "Ya recibido", "Devolución", "Escaneado", "Pendiente", "Backorder", "Costo unitario", "Valor recibido"}

// Build renders the session as a workbook: one sheet of lines with a totals
// row, plus incidents and boxes when there are any.
func Build(v receiving.SessionView) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", linesSheet); err != nil {
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	folios := make(map[string]string, len(v.Orders))
	for _, o := range v.Orders {
		folios[o.ID] = o.Folio
	}

	writeHeader(f, linesSheet, lineHeaders, header)
	row := 2
	for _, l := range v.Lines {
		cells := []any{
			folios[l.OrderID], l.ArticleID, l.Code, l.Description, l.Unit,
			l.Expected, l.AlreadyReceived, l.Devolution, l.Scanned, l.Remaining(),
			yesNo(l.Backorder), l.UnitCost.InexactFloat64(), l.ReceivedValue().InexactFloat64(),
		}
		if err := f.SetSheetRow(linesSheet, fmt.Sprintf("A%d", row), &cells); err != nil {
			return nil, err
		}
		row++
	}
	total := []any{"Total", "", "", fmt.Sprintf("%d artículos", len(v.Lines)), "", "", "", "", v.ScannedUnits, "", "", "", v.ReceivedValue.InexactFloat64()}
	if err := f.SetSheetRow(linesSheet, fmt.Sprintf("A%d", row), &total); err != nil {
		return nil, err
	}
	f.SetCellStyle(linesSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("M%d", row), bold)
	setWidths(f, linesSheet, []float64{14, 12, 16, 40, 8, 10, 12, 11, 11, 11, 10, 14, 15})

	if len(v.Incidents) > 0 {
		if _, err := f.NewSheet(incidentsSheet); err != nil {
			return nil, err
		}
		writeHeader(f, incidentsSheet, []string{"Orden", "Artículo", "Tipo", "Nota", "Fecha"}, header)
		for i, inc := range v.Incidents {
			cells := []any{folios[inc.OrderID], inc.ArticleID, string(inc.Kind), inc.Note, inc.CreatedAt.Format("2006-01-02 15:04")}
			if err := f.SetSheetRow(incidentsSheet, fmt.Sprintf("A%d", i+2), &cells); err != nil {
				return nil, err
			}
		}
		setWidths(f, incidentsSheet, []float64{14, 12, 16, 50, 18})
	}

	if len(v.Boxes) > 0 {
		if _, err := f.NewSheet(boxesSheet); err != nil {
			return nil, err
		}
		writeHeader(f, boxesSheet, []string{"Caja", "Estado", "Folio", "Artículos", "Unidades"}, header)
		for i, b := range v.Boxes {
			cells := []any{b.ID, b.State.String(), b.Folio, b.Articles, b.Units}
			if err := f.SetSheetRow(boxesSheet, fmt.Sprintf("A%d", i+2), &cells); err != nil {
				return nil, err
			}
		}
		setWidths(f, boxesSheet, []float64{10, 10, 16, 10, 10})
	}

	return f, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, style)
	}
}

func setWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

func yesNo(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}
