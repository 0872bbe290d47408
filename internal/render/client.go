// Package render turns certificate markup into images through an external
// HTML-to-image service.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/pkg/config"
)

// ErrNotConfigured is returned when no renderer endpoint is set.
var ErrNotConfigured = errors.New("certificate renderer not configured")

// Certificate is the content placed on a rendered certificate.
type Certificate struct {
	CertificateID string
	LearnerName   string
	CourseTitle   string
	IssuedAt      time.Time
}

// Client posts HTML to the renderer and downloads the resulting image.
type Client struct {
	http     *resty.Client
	url      string
	sanitize *bluemonday.Policy
	logger   *zap.Logger
}

// NewClient builds a renderer client from configuration.
func NewClient(cfg config.RendererConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserID != "" {
		httpClient.SetBasicAuth(cfg.UserID, cfg.APIKey)
	}
	return &Client{
		http:     httpClient,
		url:      strings.TrimSpace(cfg.URL),
		sanitize: bluemonday.StrictPolicy(),
		logger:   logger,
	}
}

var certificateTemplate = template.Must(template.New("certificate").Parse(`<div class="certificate">
  <p class="label">Certificate of Completion</p>
  <h1>{{.LearnerName}}</h1>
  <p>has successfully completed</p>
  <h2>{{.CourseTitle}}</h2>
  <p class="meta">{{.Issued}} &middot; {{.CertificateID}}</p>
</div>`))

const certificateCSS = `.certificate{width:1200px;height:850px;padding:80px;font-family:Georgia,serif;text-align:center;border:12px solid #1f3a5f}
h1{font-size:56px;margin:40px 0}h2{font-size:40px;color:#1f3a5f}.label{letter-spacing:4px;text-transform:uppercase}.meta{margin-top:80px;color:#666}`

// HTML renders the certificate markup. Learner supplied text is stripped of any markup first.
func (c *Client) HTML(cert Certificate) (string, error) {
	data := struct {
		CertificateID string
		LearnerName   string
		CourseTitle   string
		Issued        string
	}{
		CertificateID: cert.CertificateID,
		LearnerName:   c.plain(cert.LearnerName),
		CourseTitle:   c.plain(cert.CourseTitle),
		Issued:        cert.IssuedAt.UTC().Format("January 2, 2006"),
	}
	if data.LearnerName == "" {
		data.LearnerName = "SQL Academy Learner"
	}
	var buf bytes.Buffer
	if err := certificateTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render certificate template: %w", err)
	}
	return buf.String(), nil
}

// plain strips markup and undoes the policy's entity escaping; the template escapes again.
func (c *Client) plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(c.sanitize.Sanitize(s)))
}

type renderRequest struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render produces the certificate image and returns its temporary URL.
func (c *Client) Render(ctx context.Context, cert Certificate) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}
	markup, err := c.HTML(cert)
	if err != nil {
		return "", err
	}

	var result renderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(renderRequest{HTML: markup, CSS: certificateCSS}).
		SetResult(&result).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("call renderer: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("renderer returned status %d", resp.StatusCode())
	}
	if result.URL == "" {
		return "", errors.New("renderer returned no image url")
	}
	c.logger.Debug("certificate rendered", zap.String("certificate_id", cert.CertificateID))
	return result.URL, nil
}

// Fetch downloads a rendered image.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("fetch rendered image: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("fetch rendered image: status %d", resp.StatusCode())
	}
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return resp.Body(), contentType, nil
}
