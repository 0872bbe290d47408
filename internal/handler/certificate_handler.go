package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sql-academy-api/internal/dto"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
	"github.com/noah-isme/sql-academy-api/pkg/response"
	"github.com/noah-isme/sql-academy-api/pkg/storage"
)

type certificateService interface {
	Issue(ctx context.Context, userID, courseID string) (*dto.CertificateResponse, error)
	List(ctx context.Context, userID string) ([]dto.CertificateResponse, error)
	Get(ctx context.Context, userID, id string) (*dto.CertificateResponse, error)
	PDF(ctx context.Context, userID, id string) ([]byte, string, error)
	OpenAsset(ctx context.Context, key string) (io.ReadCloser, error)
}

type tokenVerifier interface {
	Verify(token string) (string, error)
}

// CertificateHandler issues certificates and serves their files.
type CertificateHandler struct {
	service  certificateService
	verifier tokenVerifier
}

// NewCertificateHandler constructs the handler. verifier may be nil when assets are not served locally.
func NewCertificateHandler(svc certificateService, verifier tokenVerifier) *CertificateHandler {
	return &CertificateHandler{service: svc, verifier: verifier}
}

// Issue godoc
// @Summary Request a course certificate
// @Description Rendering is asynchronous; the certificate starts pending
// @Tags Certificates
// @Produce json
// @Param id path string true "Course ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /courses/{id}/certificate [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	cert, err := h.service.Issue(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, cert)
}

// List godoc
// @Summary Caller's certificates
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	certs, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, certs)
}

// Get godoc
// @Summary One certificate
// @Tags Certificates
// @Produce json
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	cert, err := h.service.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cert)
}

// PDF godoc
// @Summary Printable certificate
// @Tags Certificates
// @Produce application/pdf
// @Param id path string true "Certificate ID"
// @Success 200 {file} binary
// @Failure 412 {object} response.Envelope
// @Router /certificates/{id}/pdf [get]
func (h *CertificateHandler) PDF(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	data, filename, err := h.service.PDF(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Asset godoc
// @Summary Download a stored certificate image
// @Tags Certificates
// @Produce image/png
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /assets [get]
func (h *CertificateHandler) Asset(c *gin.Context) {
	if h.verifier == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "assets are not served by this instance"))
		return
	}
	key, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired"))
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link"))
		return
	}
	rc, err := h.service.OpenAsset(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", path.Base(key)))
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, "image/png", rc, nil)
}
