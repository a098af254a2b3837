package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

var csvHeader = []string{
	"id", "bill_id", "vendor", "category", "date",
	"subtotal", "tax", "amount", "validation_passed", "created_at",
}

// WriteCSV writes one row per receipt with the raw extracted values
func WriteCSV(w io.Writer, receipts []*Receipt) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range receipts {
		row := []string{
			r.ID,
			r.BillID.String(),
			r.Vendor.String(),
			r.Category.String(),
			r.Date.String(),
			r.Subtotal.String(),
			r.Tax.String(),
			r.Amount.String(),
			strconv.FormatBool(r.ValidationPassed),
			r.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// pdfColumn is one column of the receipts table
type pdfColumn struct {
	title string
	width float64
	align string
	value func(r *Receipt, currency string) string
}

var pdfColumns = []pdfColumn{
	{"Bill ID", 30, "L", func(r *Receipt, _ string) string { return truncate(r.BillID.String(), 16) }},
	{"Vendor", 45, "L", func(r *Receipt, _ string) string { return truncate(r.Vendor.String(), 26) }},
	{"Category", 30, "L", func(r *Receipt, _ string) string { return truncate(categoryName(r), 16) }},
	{"Date", 24, "C", func(r *Receipt, _ string) string { return r.Date.String() }},
	{"Tax", 22, "R", func(r *Receipt, c string) string { return money(c, r.TaxAmount()) }},
	{"Amount", 26, "R", func(r *Receipt, c string) string { return money(c, r.TotalAmount()) }},
	{"Valid", 13, "C", func(r *Receipt, _ string) string {
		if r.ValidationPassed {
			return "yes"
		}
		return "no"
	}},
}

func money(currency string, v float64) string {
	return fmt.Sprintf("%s %.2f", currency, v)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "~"
}

// WritePDFReport renders the summary metrics and the receipts table as an A4 PDF
func WritePDFReport(w io.Writer, receipts []*Receipt, currency string, generatedAt time.Time) error {
	summary := Summarize(receipts)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt Vault Report", true)
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(102, 126, 234)
	pdf.CellFormat(0, 12, "Receipt Vault Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 6, "Generated "+generatedAt.Format("January 2, 2006 at 3:04 PM"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	metrics := [][2]string{
		{"Total Spending", money(currency, summary.TotalSpending)},
		{"Total Tax Paid", money(currency, summary.TotalTax)},
		{"Receipts Scanned", strconv.Itoa(summary.ReceiptCount)},
		{"Average Transaction", money(currency, summary.AverageTransaction)},
		{"Passed Validation", strconv.Itoa(summary.PassedValidation)},
	}
	tableHeader(pdf, []string{"Metric", "Value"}, []float64{95, 95}, []string{"C", "C"})
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetFillColor(245, 245, 220)
	for _, m := range metrics {
		pdf.CellFormat(95, 8, m[0], "1", 0, "L", true, 0, "")
		pdf.CellFormat(95, 8, m[1], "1", 1, "R", true, 0, "")
	}
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Stored Receipts", "", 1, "L", false, 0, "")

	titles := make([]string, len(pdfColumns))
	widths := make([]float64, len(pdfColumns))
	aligns := make([]string, len(pdfColumns))
	for i, col := range pdfColumns {
		titles[i], widths[i], aligns[i] = col.title, col.width, "C"
	}
	tableHeader(pdf, titles, widths, aligns)

	pdf.SetFont("Helvetica", "", 9)
	for i, r := range receipts {
		fill := i%2 == 1
		pdf.SetFillColor(240, 240, 240)
		for _, col := range pdfColumns {
			pdf.CellFormat(col.width, 7, tr(col.value(r, currency)), "1", 0, col.align, fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}

func tableHeader(pdf *gofpdf.Fpdf, titles []string, widths []float64, aligns []string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(102, 126, 234)
	pdf.SetTextColor(255, 255, 255)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 8, title, "1", 0, aligns[i], true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

// ExportCSV writes every stored receipt as CSV
func (s *Service) ExportCSV(w io.Writer) error {
	receipts, err := s.ListReceipts()
	if err != nil {
		return err
	}
	return WriteCSV(w, receipts)
}

// ExportPDF writes the PDF report over every stored receipt
func (s *Service) ExportPDF(w io.Writer) error {
	receipts, err := s.ListReceipts()
	if err != nil {
		return err
	}
	return WritePDFReport(w, receipts, s.currency, s.timeSource.Now())
}
