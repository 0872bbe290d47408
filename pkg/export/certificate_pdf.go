package export

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData is the content printed on a course certificate.
type CertificateData struct {
	CertificateID string
	LearnerName   string
	CourseTitle   string
	IssuedAt      time.Time
}

// CertificatePDF renders landscape A4 certificates.
type CertificatePDF struct {
	issuer string
}

// NewCertificatePDF constructs the renderer. issuer is printed in the footer.
func NewCertificatePDF(issuer string) *CertificatePDF {
	if issuer == "" {
		issuer = "SQL Academy"
	}
	return &CertificatePDF{issuer: issuer}
}

// Render produces the PDF bytes for one certificate.
func (r *CertificatePDF) Render(data CertificateData) ([]byte, error) {
	if data.LearnerName == "" || data.CourseTitle == "" {
		return nil, errors.New("certificate requires learner name and course title")
	}
	if data.IssuedAt.IsZero() {
		data.IssuedAt = time.Now().UTC()
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetDrawColor(40, 70, 140)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetY(40)
	pdf.SetFont("Helvetica", "B", 30)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 12, tr(data.LearnerName), "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "has successfully completed", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(data.CourseTitle), "", 1, "C", false, 0, "")

	pdf.SetY(165)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued %s by %s", data.IssuedAt.Format("January 2, 2006"), r.issuer), "", 1, "C", false, 0, "")
	if data.CertificateID != "" {
		pdf.CellFormat(0, 6, "Certificate ID: "+data.CertificateID, "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
