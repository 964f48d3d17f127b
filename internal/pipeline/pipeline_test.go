package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ganeshmittapally/ReportScheduler/internal/burst"
	"github.com/ganeshmittapally/ReportScheduler/internal/cache"
	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/queue"
	"github.com/redis/go-redis/v9"
)

type fakeExecutions struct {
	created   []*domain.ExecutionRun
	completed []string
	failed    []string
}

func (f *fakeExecutions) Create(ctx context.Context, r *domain.ExecutionRun) (*domain.ExecutionRun, error) {
	f.created = append(f.created, r)
	return r, nil
}
func (f *fakeExecutions) Find(ctx context.Context, id, tenantID string) (*domain.ExecutionRun, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeExecutions) MarkCompleted(ctx context.Context, id string, completedAt time.Time, duration time.Duration, metadata map[string]any) error {
	f.completed = append(f.completed, id)
	return nil
}
func (f *fakeExecutions) MarkFailed(ctx context.Context, id string, completedAt time.Time, duration time.Duration, errMsg string) error {
	f.failed = append(f.failed, id)
	return nil
}
func (f *fakeExecutions) RunningCountsByTenant(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}
func (f *fakeExecutions) LastCompletedByReportDefinition(ctx context.Context, reportDefinitionID, tenantID string) (*time.Time, error) {
	return nil, nil
}

type fakeDefinitions struct {
	def *domain.ReportDefinition
}

func (f *fakeDefinitions) Find(ctx context.Context, id, tenantID string) (*domain.ReportDefinition, error) {
	if f.def == nil {
		return nil, domain.ErrNotFound
	}
	return f.def, nil
}

type fakeArtifacts struct {
	created []*domain.Artifact
}

func (f *fakeArtifacts) Create(ctx context.Context, a *domain.Artifact) (*domain.Artifact, error) {
	f.created = append(f.created, a)
	return a, nil
}
func (f *fakeArtifacts) Find(ctx context.Context, id, tenantID string) (*domain.Artifact, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeArtifacts) FindByExecutionRun(ctx context.Context, executionRunID, tenantID string) (*domain.Artifact, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeArtifacts) UpdateSignedURL(ctx context.Context, id string, url string, expiresAt time.Time) error {
	return nil
}
func (f *fakeArtifacts) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Artifact, error) {
	return nil, nil
}
func (f *fakeArtifacts) Delete(ctx context.Context, id string) error { return nil }

type fakeDeliveries struct {
	created []*domain.DeliveryReceipt
}

func (f *fakeDeliveries) Create(ctx context.Context, d *domain.DeliveryReceipt) (*domain.DeliveryReceipt, error) {
	f.created = append(f.created, d)
	return d, nil
}
func (f *fakeDeliveries) ListByArtifact(ctx context.Context, artifactID string) ([]*domain.DeliveryReceipt, error) {
	return nil, nil
}

type fakeDataSource struct{ err error }

func (f *fakeDataSource) Fetch(ctx context.Context, querySpec map[string]any, window Range) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"rows": 3}, nil
}

type fakeTemplateRenderer struct{}

func (f *fakeTemplateRenderer) Render(ctx context.Context, templateRef, reportName string, data map[string]any) ([]byte, error) {
	return []byte("<html></html>"), nil
}

type fakePdfRenderer struct{ calls int }

func (f *fakePdfRenderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	f.calls++
	return []byte("%PDF-1.4 fake"), nil
}

type fakeBlobStore struct{}

func (f *fakeBlobStore) Upload(ctx context.Context, tenantID, executionID string, data []byte, format domain.OutputFormat) (string, error) {
	return "tenants/" + tenantID + "/" + executionID + ".pdf", nil
}
func (f *fakeBlobStore) SignedURL(ctx context.Context, path string, expiry time.Duration) (string, time.Time, error) {
	return "https://blob.example/" + path, time.Now().Add(expiry), nil
}
func (f *fakeBlobStore) Delete(ctx context.Context, path string) error { return nil }

type fakeSender struct {
	sent []Recipient
	err  error
}

func (f *fakeSender) Send(ctx context.Context, recipient Recipient, subject, htmlBody, textBody, artifactURL string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

func newTestPipeline(t *testing.T, def *domain.ReportDefinition, pdf *fakePdfRenderer, sender *fakeSender) (*Pipeline, *fakeExecutions, *fakeArtifacts, *fakeDeliveries) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	executions := &fakeExecutions{}
	definitions := &fakeDefinitions{def: def}
	artifacts := &fakeArtifacts{}
	deliveries := &fakeDeliveries{}
	reportCache := cache.New(client, logger)
	limiter := burst.NewLimiter(client, executions, logger)

	p := New(
		executions, definitions, artifacts, deliveries,
		reportCache, limiter,
		&fakeDataSource{}, &fakeTemplateRenderer{}, pdf, &fakeBlobStore{},
		map[domain.Channel]Sender{domain.ChannelEmail: sender},
		logger,
	)
	return p, executions, artifacts, deliveries
}

func testDefinition(cacheTTL int) *domain.ReportDefinition {
	return &domain.ReportDefinition{
		ID:              "rd-1",
		TenantID:        "tenant-1",
		Name:            "Weekly Sales",
		QuerySpec:       map[string]any{"range_type": "last_7_days", "timezone": "UTC"},
		TemplateRef:     "weekly_sales",
		OutputFormat:    domain.FormatPDF,
		CacheTTLSeconds: cacheTTL,
	}
}

func TestPipeline_RunSucceedsAndDelivers(t *testing.T) {
	pdf := &fakePdfRenderer{}
	sender := &fakeSender{}
	p, executions, artifacts, deliveries := newTestPipeline(t, testDefinition(3600), pdf, sender)

	d := queue.Descriptor{
		TaskID:              "task-1",
		TenantID:            "tenant-1",
		ReportDefinitionID:  "rd-1",
		EnqueuedAt:          time.Now().UTC(),
		EmailDeliveryConfig: map[string]any{"recipients": []string{"a@example.com"}, "subject": "Your report"},
	}

	if err := p.Run(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executions.completed) != 1 {
		t.Fatalf("expected one completed execution, got %d", len(executions.completed))
	}
	if len(artifacts.created) != 1 {
		t.Fatalf("expected one artifact, got %d", len(artifacts.created))
	}
	if len(deliveries.created) != 1 || deliveries.created[0].Status != domain.DeliverySent {
		t.Fatalf("expected one sent delivery receipt, got %+v", deliveries.created)
	}
	if pdf.calls != 1 {
		t.Fatalf("expected pdf render to run once on cache miss, got %d", pdf.calls)
	}
}

func TestPipeline_SecondRunHitsCache(t *testing.T) {
	pdf := &fakePdfRenderer{}
	sender := &fakeSender{}
	p, _, _, _ := newTestPipeline(t, testDefinition(3600), pdf, sender)

	// The two scans are minutes apart, exactly as consecutive scheduler
	// ticks are (scan.go stamps EnqueuedAt with the scan's own "now").
	// The cache fingerprint must not move between them.
	first := queue.Descriptor{
		TaskID:             "task-1",
		TenantID:           "tenant-1",
		ReportDefinitionID: "rd-1",
		EnqueuedAt:         time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
	}
	second := first
	second.TaskID = "task-2"
	second.EnqueuedAt = first.EnqueuedAt.Add(5 * time.Minute)

	if err := p.Run(context.Background(), first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := p.Run(context.Background(), second); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if pdf.calls != 1 {
		t.Fatalf("expected pdf render to run exactly once across both executions, got %d", pdf.calls)
	}
}

func TestPipeline_DeliveryFailureDoesNotFailRun(t *testing.T) {
	pdf := &fakePdfRenderer{}
	sender := &fakeSender{err: errors.New("smtp down")}
	p, executions, _, deliveries := newTestPipeline(t, testDefinition(0), pdf, sender)

	d := queue.Descriptor{
		TaskID:              "task-1",
		TenantID:            "tenant-1",
		ReportDefinitionID:  "rd-1",
		EnqueuedAt:          time.Now().UTC(),
		EmailDeliveryConfig: map[string]any{"recipients": []string{"a@example.com"}},
	}

	if err := p.Run(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executions.completed) != 1 {
		t.Fatal("expected the run to still complete despite delivery failure")
	}
	if len(deliveries.created) != 1 || deliveries.created[0].Status != domain.DeliveryFailed {
		t.Fatalf("expected one failed delivery receipt, got %+v", deliveries.created)
	}
}

func TestPipeline_MissingDefinitionFailsRunWithoutRetry(t *testing.T) {
	pdf := &fakePdfRenderer{}
	sender := &fakeSender{}
	p, executions, _, _ := newTestPipeline(t, nil, pdf, sender)

	d := queue.Descriptor{
		TaskID:             "task-1",
		TenantID:           "tenant-1",
		ReportDefinitionID: "missing",
		EnqueuedAt:         time.Now().UTC(),
	}

	// DefinitionMissing is a terminal failure (§7/§4.7 step 3): Run must
	// return immediately on the first attempt, never entering the
	// retry/backoff loop. No deadline needed — this must not block at all.
	if err := p.Run(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executions.failed) != 1 {
		t.Fatalf("expected exactly one failed execution attempt, got %d", len(executions.failed))
	}
}
