package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ArtifactRepository is the Postgres-backed store for C7's terminal output.
type ArtifactRepository struct {
	pool *pgxpool.Pool
}

func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepository {
	return &ArtifactRepository{pool: pool}
}

func (r *ArtifactRepository) Create(ctx context.Context, a *domain.Artifact) (*domain.Artifact, error) {
	query := `
		INSERT INTO artifacts (
			tenant_id, execution_run_id, blob_path, file_size_bytes, file_format,
			signed_url, signed_url_expires
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, tenant_id, execution_run_id, blob_path, file_size_bytes,
		          file_format, signed_url, signed_url_expires, created_at`

	row := r.pool.QueryRow(ctx, query,
		a.TenantID, a.ExecutionRunID, a.BlobPath, a.FileSizeBytes, a.FileFormat,
		a.SignedURL, a.SignedURLExpires,
	)
	created, err := scanArtifact(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("artifact for execution run %s: %w", a.ExecutionRunID, domain.ErrNameConflict)
		}
		return nil, err
	}
	return created, nil
}

func (r *ArtifactRepository) Find(ctx context.Context, id, tenantID string) (*domain.Artifact, error) {
	query := `
		SELECT id, tenant_id, execution_run_id, blob_path, file_size_bytes,
		       file_format, signed_url, signed_url_expires, created_at
		FROM artifacts
		WHERE id = $1 AND tenant_id = $2`

	row := r.pool.QueryRow(ctx, query, id, tenantID)
	return scanArtifact(row)
}

func (r *ArtifactRepository) FindByExecutionRun(ctx context.Context, executionRunID, tenantID string) (*domain.Artifact, error) {
	query := `
		SELECT id, tenant_id, execution_run_id, blob_path, file_size_bytes,
		       file_format, signed_url, signed_url_expires, created_at
		FROM artifacts
		WHERE execution_run_id = $1 AND tenant_id = $2`

	row := r.pool.QueryRow(ctx, query, executionRunID, tenantID)
	return scanArtifact(row)
}

func (r *ArtifactRepository) UpdateSignedURL(ctx context.Context, id string, url string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifacts SET signed_url = $2, signed_url_expires = $3 WHERE id = $1`,
		id, url, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("update signed url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrArtifactNotFound
	}
	return nil
}

// OlderThan feeds the retention sweeper (§4.8); results are ordered oldest
// first so a capped batch always makes forward progress.
func (r *ArtifactRepository) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Artifact, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT id, tenant_id, execution_run_id, blob_path, file_size_bytes,
		       file_format, signed_url, signed_url_expires, created_at
		FROM artifacts
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (r *ArtifactRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func scanArtifact(row rowScanner) (*domain.Artifact, error) {
	var a domain.Artifact
	err := row.Scan(
		&a.ID, &a.TenantID, &a.ExecutionRunID, &a.BlobPath, &a.FileSizeBytes,
		&a.FileFormat, &a.SignedURL, &a.SignedURLExpires, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	return &a, nil
}
