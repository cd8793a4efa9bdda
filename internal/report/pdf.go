package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/canlog/internal/pipeline"
)

const qrSizeMM = 32

// SaveSummaryPDF renders s into a PDF document. When the summary carries an
// output digest, a QR code of it is placed next to the title.
func SaveSummaryPDF(s Summary, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("CAN Log Conversion", false)
	pdf.SetAuthor("canlogctl", false)
	pdf.SetCreator("canlogctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	if err := addDigestQR(pdf, s.OutputSHA256); err != nil {
		return err
	}
	addPDFTitle(pdf, "CAN Log Conversion")
	addSummarySection(pdf, s)
	addFilesSection(pdf, s.Files)
	addChannelsSection(pdf, s.Channels)
	addIDListSection(pdf, "Unmappable Channels", "Every channel resolved to a catalogue entry.", s.Unmappable)
	if len(s.Duplicates) > 0 {
		addIDListSection(pdf, "Duplicate Header IDs", "", s.Duplicates)
	}

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addDigestQR(pdf *gofpdf.Fpdf, digest string) error {
	if strings.TrimSpace(digest) == "" {
		return nil
	}
	png, err := DigestToQR(digest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	_, _, right, _ := pdf.GetMargins()
	pdf.ImageOptions("digest-qr", pageW-right-qrSizeMM, 12, qrSizeMM, qrSizeMM, false, opts, 0, "")
	return nil
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addSummarySection(pdf *gofpdf.Fpdf, s Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Created", value: s.Created.Format(time.RFC3339)},
		{label: "Catalogue", value: emptyFallback(s.Catalog, "-")},
		{label: "Comments", value: emptyFallback(s.Comments, "-")},
		{label: "Grammar", value: s.Grammar},
		{label: "Resolution", value: s.Resolution},
		{label: "Channels", value: strconv.Itoa(len(s.Channels))},
		{label: "Derived Channels", value: strconv.Itoa(s.DerivedCount())},
		{label: "Samples", value: strconv.Itoa(s.Samples)},
		{label: "Annotations", value: strconv.Itoa(s.Annotations)},
		{label: "Malformed Lines", value: strconv.Itoa(s.Malformed)},
		{label: "Output", value: emptyFallback(s.Output, "-")},
	}
	for _, item := range items {
		pdf.CellFormat(50, 6, item.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
	}
	if s.OutputSHA256 != "" {
		pdf.CellFormat(50, 6, "Output SHA-256", "", 0, "L", false, 0, "")
		pdf.SetFont("Courier", "", 8)
		pdf.CellFormat(0, 6, s.OutputSHA256, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addFilesSection(pdf *gofpdf.Fpdf, files []pipeline.FileStats) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Log Files")
	pdf.Ln(9)

	headers := []string{"Path", "Samples", "Malformed", "Midnight"}
	widths := []float64{110, 24, 24, 22}
	addTableHeader(pdf, headers, widths)

	pdf.SetFont("Helvetica", "", 9)
	for _, f := range files {
		values := []string{
			f.Path,
			strconv.Itoa(f.Samples),
			strconv.Itoa(f.Malformed),
			yesNo(f.Rollover),
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

func addChannelsSection(pdf *gofpdf.Fpdf, channels []ChannelSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Channels")
	pdf.Ln(9)

	if len(channels) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No samples recorded.", "", "L", false)
		pdf.Ln(4)
		return
	}

	headers := []string{"ID", "Name", "Unit", "Scale", "Samples", "First", "Last"}
	widths := []float64{24, 50, 18, 16, 18, 27, 27}
	addTableHeader(pdf, headers, widths)

	pdf.SetFont("Helvetica", "", 8)
	for _, c := range channels {
		name := emptyFallback(c.Name, "-")
		if c.Derived {
			name += " *"
		}
		values := []string{
			c.Hex,
			name,
			emptyFallback(c.Unit, "-"),
			scaleLabel(c.Scale),
			strconv.Itoa(c.Samples),
			strconv.FormatUint(c.FirstTs, 10),
			strconv.FormatUint(c.LastTs, 10),
		}
		renderTableRow(pdf, widths, values, 4.5)
	}
	pdf.SetFont("Helvetica", "I", 8)
	pdf.MultiCell(0, 4, "* derived from a catalogue entry by device masking", "", "L", false)
	pdf.Ln(4)
}

func addIDListSection(pdf *gofpdf.Fpdf, title, emptyText string, ids []string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 10)
	if len(ids) == 0 {
		pdf.MultiCell(0, 5, emptyText, "", "L", false)
		return
	}
	pdf.MultiCell(0, 5, strings.Join(ids, ", "), "", "L", false)
	pdf.Ln(2)
}

func addTableHeader(pdf *gofpdf.Fpdf, headers []string, widths []float64) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if yStart+rowHeight > pageH-bottom {
		pdf.AddPage()
		yStart = pdf.GetY()
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func scaleLabel(scale *float32) string {
	if scale == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *scale)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
