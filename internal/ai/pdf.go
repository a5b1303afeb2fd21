package ai

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// RenderPDF writes markdown analysis text to a PDF file. It handles
// the subset of markdown the analyzers emit: headings, bullet lists,
// horizontal rules and bold markers. Returns the output path.
func RenderPDF(markdown, title, outputPath string) (string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 20, 18)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "L", false)
	pdf.Ln(4)

	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimRight(line, " \t")
		switch {
		case line == "":
			pdf.Ln(2)
		case line == "---":
			pdf.Ln(2)
			x, y := pdf.GetX(), pdf.GetY()
			pageW, _ := pdf.GetPageSize()
			pdf.SetDrawColor(180, 180, 180)
			pdf.Line(x, y, pageW-18, y)
			pdf.Ln(4)
		case strings.HasPrefix(line, "### "):
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 6, tr(stripBold(line[4:])), "", "L", false)
			pdf.Ln(1)
		case strings.HasPrefix(line, "## "):
			pdf.SetFont("Helvetica", "B", 14)
			pdf.MultiCell(0, 7, tr(stripBold(line[3:])), "", "L", false)
			pdf.Ln(1)
		case strings.HasPrefix(line, "# "):
			pdf.SetFont("Helvetica", "B", 16)
			pdf.MultiCell(0, 8, tr(stripBold(line[2:])), "", "L", false)
			pdf.Ln(2)
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			pdf.SetFont("Helvetica", "", 10)
			pdf.SetX(22)
			pdf.MultiCell(0, 5, tr("• "+stripBold(line[2:])), "", "L", false)
			pdf.SetX(18)
		default:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(stripBold(line)), "", "L", false)
		}
	}

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return "", fmt.Errorf("writing pdf: %w", err)
	}
	return outputPath, nil
}

// stripBold removes ** emphasis markers; the renderer keeps body text
// in a single weight.
func stripBold(s string) string {
	return strings.ReplaceAll(s, "**", "")
}
