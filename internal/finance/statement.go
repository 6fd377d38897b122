package finance

import (
	"bytes"
	"fmt"

	"github.com/phpdave11/gofpdf"

	"ordem/internal/core"
)

var monthNames = [...]string{"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro"}

// MonthName returns the Portuguese name of m (1-12).
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m-1]
}

// Statement renders the month view as an A4 PDF.
func Statement(owner string, v MonthView) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(14, 14, 14)
	pdf.AddPage()

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("Extrato Ordem Essencial"))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Período: %s de %d", MonthName(v.Month.Month), v.Month.Year)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr("Titular: "+owner))
	pdf.Ln(10)

	pdf.SetDrawColor(200, 200, 200)
	pdf.SetFillColor(248, 248, 248)
	pdf.SetTextColor(20, 20, 20)

	sumW := []float64{62, 62, 62}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(sumW[0], 10, tr("Receitas"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[1], 10, tr("Saídas"), "1", 0, "C", true, 0, "")
	pdf.CellFormat(sumW[2], 10, tr("Saldo"), "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(sumW[0], 10, tr(v.Aggregate.Income.String()), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[1], 10, tr(v.Aggregate.Outflow().String()), "1", 0, "C", false, 0, "")
	pdf.CellFormat(sumW[2], 10, tr(v.Aggregate.Balance().String()), "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	catW := []float64{120, 66}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(catW[0], 8, tr("Categoria"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(catW[1], 8, tr("Total"), "1", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, c := range core.Categories {
		pdf.CellFormat(catW[0], 7, tr(c.Label()), "1", 0, "L", false, 0, "")
		pdf.CellFormat(catW[1], 7, tr(v.Aggregate.Total(c).String()), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(6)

	colW := []float64{24, 92, 34, 36}
	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(colW[0], 8, "Data", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[1], 8, tr("Descrição"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[2], 8, "Categoria", "1", 0, "L", true, 0, "")
		pdf.CellFormat(colW[3], 8, "Valor", "1", 1, "R", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
	}
	header()

	if len(v.Transactions) == 0 {
		pdf.CellFormat(0, 8, tr("Nenhuma transação neste mês."), "1", 1, "C", false, 0, "")
	}
	for _, t := range v.Transactions {
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header()
		}
		pdf.CellFormat(colW[0], 7, t.Date.Format("02/01/2006"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[1], 7, tr(truncate(t.Description, 52)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[2], 7, tr(t.Category.Label()), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colW[3], 7, tr(t.Amount.String()), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
