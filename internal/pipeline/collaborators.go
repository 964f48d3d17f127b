package pipeline

import (
	"context"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

// DataSource fetches the rows a report's template renders, scoped to a
// query spec and a resolved date range. The upstream analytics system
// itself is out of scope; this is the seam a concrete adapter plugs into.
type DataSource interface {
	Fetch(ctx context.Context, querySpec map[string]any, window Range) (map[string]any, error)
}

// TemplateRenderer turns a report's data payload into an HTML document
// using the ReportDefinition's named template (§4.7 step 5b).
type TemplateRenderer interface {
	Render(ctx context.Context, templateRef, reportName string, data map[string]any) ([]byte, error)
}

// PdfRenderer converts a rendered HTML document into a PDF's bytes.
type PdfRenderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// BlobStore persists a finished artifact's bytes under a store-chosen path
// and returns a signed URL for retrieval, valid until expiresAt (§4.7
// step 6: 24h default expiry is the caller's concern, not the store's).
type BlobStore interface {
	Upload(ctx context.Context, tenantID, executionID string, data []byte, format domain.OutputFormat) (path string, err error)
	SignedURL(ctx context.Context, path string, expiry time.Duration) (url string, expiresAt time.Time, err error)
	Delete(ctx context.Context, path string) error
}

// Recipient is one delivery target resolved from a schedule's delivery
// config.
type Recipient struct {
	Channel domain.Channel
	Address string
}

// Sender delivers a finished artifact to one recipient over its channel
// (§4.7 step 7: "Email.send(subject, html_body, text_body, url)", widened
// to the other delivery channels §3 defines). A non-nil error marks that
// recipient's DeliveryReceipt as failed; it never aborts delivery to the
// other recipients.
type Sender interface {
	Send(ctx context.Context, recipient Recipient, subject, htmlBody, textBody, artifactURL string) error
}
