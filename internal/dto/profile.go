package dto

import (
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/progress"
)

// ProfileResponse is the payload of GET /me.
type ProfileResponse struct {
	User         models.UserInfo            `json:"user"`
	Permissions  models.ResolvedPermissions `json:"permissions"`
	TotalXP      int                        `json:"total_xp"`
	Stats        progress.Stats             `json:"stats"`
	Achievements []progress.Achievement     `json:"achievements"`
}

// CertificateResponse enriches a certificate with download links.
type CertificateResponse struct {
	models.Certificate
	DownloadURL string `json:"download_url,omitempty"`
	PDFURL      string `json:"pdf_url,omitempty"`
}
