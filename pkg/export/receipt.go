package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptLine is one labelled value printed on a receipt.
type ReceiptLine struct {
	Label string
	Value string
}

// Receipt is a single-page payment receipt for a class booking.
type Receipt struct {
	Title    string
	Number   string
	IssuedAt time.Time
	BilledTo string
	Lines    []ReceiptLine
	Total    string
	Footnote string
}

// RenderReceiptPDF lays out the receipt on an A4 page.
func RenderReceiptPDF(r Receipt) ([]byte, error) {
	if r.Number == "" {
		return nil, fmt.Errorf("receipt number required")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(r.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Receipt #"+r.Number), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Issued "+r.IssuedAt.UTC().Format("02 Jan 2006 15:04 MST"), "", 1, "L", false, 0, "")
	if r.BilledTo != "" {
		pdf.CellFormat(0, 6, tr("Billed to: "+r.BilledTo), "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	for _, line := range r.Lines {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(55, 8, tr(line.Label), "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 8, tr(line.Value), "B", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(55, 10, "Total", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 10, tr(r.Total), "", 1, "L", false, 0, "")

	if r.Footnote != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(0, 5, tr(r.Footnote), "", "L", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
