package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificatePDFRender(t *testing.T) {
	out, err := NewCertificatePDF("").Render(CertificateData{
		CertificateID: "cert-1",
		LearnerName:   "Ada Lovelace",
		CourseTitle:   "Window Functions in Retail Analytics",
		IssuedAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestCertificatePDFRequiresNames(t *testing.T) {
	_, err := NewCertificatePDF("").Render(CertificateData{CourseTitle: "x"})
	assert.Error(t, err)
}
