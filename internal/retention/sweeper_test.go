package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
)

type fakeArtifactRepo struct {
	artifacts []*domain.Artifact
	deleted   []string
}

func (f *fakeArtifactRepo) Create(ctx context.Context, a *domain.Artifact) (*domain.Artifact, error) {
	f.artifacts = append(f.artifacts, a)
	return a, nil
}

func (f *fakeArtifactRepo) Find(ctx context.Context, id, tenantID string) (*domain.Artifact, error) {
	for _, a := range f.artifacts {
		if a.ID == id && a.TenantID == tenantID {
			return a, nil
		}
	}
	return nil, domain.ErrArtifactNotFound
}

func (f *fakeArtifactRepo) FindByExecutionRun(ctx context.Context, executionRunID, tenantID string) (*domain.Artifact, error) {
	for _, a := range f.artifacts {
		if a.ExecutionRunID == executionRunID && a.TenantID == tenantID {
			return a, nil
		}
	}
	return nil, domain.ErrArtifactNotFound
}

func (f *fakeArtifactRepo) UpdateSignedURL(ctx context.Context, id string, url string, expiresAt time.Time) error {
	for _, a := range f.artifacts {
		if a.ID == id {
			a.SignedURL = url
			a.SignedURLExpires = expiresAt
			return nil
		}
	}
	return domain.ErrArtifactNotFound
}

func (f *fakeArtifactRepo) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Artifact, error) {
	var out []*domain.Artifact
	for _, a := range f.artifacts {
		if a.CreatedAt.Before(cutoff) {
			out = append(out, a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeArtifactRepo) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	var remaining []*domain.Artifact
	for _, a := range f.artifacts {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	f.artifacts = remaining
	return nil
}

type fakeBlobStore struct {
	deleted []string
	failOn  string
}

func (f *fakeBlobStore) Upload(ctx context.Context, tenantID, executionID string, data []byte, format domain.OutputFormat) (string, error) {
	return "", nil
}
func (f *fakeBlobStore) SignedURL(ctx context.Context, path string, expiry time.Duration) (string, time.Time, error) {
	return "", time.Time{}, nil
}
func (f *fakeBlobStore) Delete(ctx context.Context, path string) error {
	if path == f.failOn {
		return context.DeadlineExceeded
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweeper_DeletesBlobThenRow(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -100)
	artifacts := &fakeArtifactRepo{artifacts: []*domain.Artifact{
		{ID: "a1", BlobPath: "reports/t1/a1.pdf", FileSizeBytes: 1000, CreatedAt: old},
	}}
	blobs := &fakeBlobStore{}

	sweeper := NewSweeper(artifacts, blobs, newLogger(), time.Hour, 90, false)
	result := sweeper.Sweep(context.Background())

	if result.DeletedCount != 1 || result.FailedCount != 0 {
		t.Fatalf("expected 1 deleted, 0 failed, got %+v", result)
	}
	if len(artifacts.artifacts) != 0 {
		t.Fatalf("expected artifact row removed, got %d remaining", len(artifacts.artifacts))
	}
}

func TestSweeper_BlobFailureSkipsRowDeletion(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -100)
	artifacts := &fakeArtifactRepo{artifacts: []*domain.Artifact{
		{ID: "a1", BlobPath: "reports/t1/a1.pdf", FileSizeBytes: 1000, CreatedAt: old},
	}}
	blobs := &fakeBlobStore{failOn: "reports/t1/a1.pdf"}

	sweeper := NewSweeper(artifacts, blobs, newLogger(), time.Hour, 90, false)
	result := sweeper.Sweep(context.Background())

	if result.FailedCount != 1 || result.DeletedCount != 0 {
		t.Fatalf("expected 1 failed, 0 deleted, got %+v", result)
	}
	if len(artifacts.artifacts) != 1 {
		t.Fatal("expected artifact row to survive a blob deletion failure")
	}
}

func TestSweeper_DryRunDoesNotMutate(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -100)
	artifacts := &fakeArtifactRepo{artifacts: []*domain.Artifact{
		{ID: "a1", BlobPath: "reports/t1/a1.pdf", FileSizeBytes: 2000, CreatedAt: old},
	}}
	blobs := &fakeBlobStore{}

	sweeper := NewSweeper(artifacts, blobs, newLogger(), time.Hour, 90, true)
	result := sweeper.Sweep(context.Background())

	if result.DeletedCount != 1 || result.TotalSizeBytes != 2000 {
		t.Fatalf("unexpected dry run result: %+v", result)
	}
	if len(artifacts.artifacts) != 1 || len(blobs.deleted) != 0 {
		t.Fatal("dry run must not mutate artifacts or blobs")
	}
}

func TestSweeper_SkipsArtifactsNewerThanCutoff(t *testing.T) {
	recent := time.Now().UTC().AddDate(0, 0, -1)
	artifacts := &fakeArtifactRepo{artifacts: []*domain.Artifact{
		{ID: "a1", BlobPath: "reports/t1/a1.pdf", CreatedAt: recent},
	}}
	blobs := &fakeBlobStore{}

	sweeper := NewSweeper(artifacts, blobs, newLogger(), time.Hour, 90, false)
	result := sweeper.Sweep(context.Background())

	if result.TotalExpired != 0 {
		t.Fatalf("expected no expired artifacts, got %+v", result)
	}
}
