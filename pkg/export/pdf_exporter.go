package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// column width shares for the week table, normalized over the page width
var weekColumnWeights = map[string]float64{
	"Day":        1.1,
	"Slot":       0.5,
	"Time":       1.1,
	"Discipline": 3.0,
	"Kind":       0.9,
	"Teacher":    2.0,
	"Location":   1.4,
}

// PDFExporter renders a week dataset into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title line and the week table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(data.Headers, 277.0)

	pdf.SetFont("Arial", "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, record := range data.Records() {
		for i, cell := range record {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(headers []string, total float64) []float64 {
	weights := make([]float64, len(headers))
	var sum float64
	for i, header := range headers {
		w, ok := weekColumnWeights[header]
		if !ok {
			w = 1.0
		}
		weights[i] = w
		sum += w
	}
	widths := make([]float64, len(headers))
	for i, w := range weights {
		widths[i] = total * w / sum
	}
	return widths
}
