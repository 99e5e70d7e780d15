package certificate

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Fields is the data bundle a certificate is rendered from.
type Fields struct {
	StudentName string
	CourseTitle string
	Role        string
	IssuedDate  string
	Location    string
	Signers     []Signer
}

// Signer is a name/position pair printed under a signature line.
type Signer struct {
	Name     string
	Position string
}

// Renderer produces certificate documents from a field bundle. The core only
// needs stable bytes to store; layout is this package's concern.
type Renderer interface {
	Render(fields Fields) ([]byte, error)
}

// PDFRenderer lays out a landscape A4 certificate with gofpdf.
type PDFRenderer struct{}

// NewPDFRenderer constructs a PDF certificate renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render creates the certificate document.
func (r *PDFRenderer) Render(fields Fields) ([]byte, error) {
	if fields.StudentName == "" {
		return nil, fmt.Errorf("certificate requires a student name")
	}
	if fields.CourseTitle == "" {
		return nil, fmt.Errorf("certificate requires a course title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(25, 30, 25)
	pdf.AddPage()

	pdf.SetFont("Times", "B", 30)
	pdf.CellFormat(0, 16, "Certificate of Participation", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "B", 22)
	pdf.CellFormat(0, 12, fields.StudentName, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "", 14)
	line := "has participated in"
	if fields.Role != "" {
		line = fmt.Sprintf("has participated as %s in", fields.Role)
	}
	pdf.CellFormat(0, 8, line, "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Times", "B", 18)
	pdf.MultiCell(0, 10, fields.CourseTitle, "", "C", false)
	pdf.Ln(6)

	pdf.SetFont("Times", "", 13)
	when := fields.IssuedDate
	if fields.Location != "" {
		when = fmt.Sprintf("%s, %s", fields.IssuedDate, fields.Location)
	}
	pdf.CellFormat(0, 8, when, "", 1, "C", false, 0, "")

	if len(fields.Signers) > 0 {
		pdf.Ln(20)
		width := (297.0 - 50.0) / float64(len(fields.Signers))
		for _, s := range fields.Signers {
			pdf.SetFont("Times", "B", 12)
			pdf.CellFormat(width, 6, s.Name, "T", 0, "C", false, 0, "")
		}
		pdf.Ln(6)
		for _, s := range fields.Signers {
			pdf.SetFont("Times", "", 10)
			pdf.CellFormat(width, 5, s.Position, "", 0, "C", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
