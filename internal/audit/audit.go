// Package audit is C9: an append-only record of user-visible actions on
// artifacts (viewed, downloaded, shared), plus the read-side aggregations
// built on top of it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ganeshmittapally/ReportScheduler/internal/domain"
	"github.com/ganeshmittapally/ReportScheduler/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

func New(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// TrackView records a report_viewed event — the signed URL was accessed.
func (s *Service) TrackView(ctx context.Context, tenantID, artifactID string, userID *string, ipAddress, userAgent string) error {
	return s.insert(ctx, tenantID, domain.EventReportViewed, artifactID, userID, map[string]any{
		"ip_address": ipAddress,
		"user_agent": userAgent,
	})
}

// TrackDownload records a report_downloaded event.
func (s *Service) TrackDownload(ctx context.Context, tenantID, artifactID string, userID *string, downloadMethod string) error {
	if downloadMethod == "" {
		downloadMethod = "direct_link"
	}
	return s.insert(ctx, tenantID, domain.EventReportDownloaded, artifactID, userID, map[string]any{
		"download_method": downloadMethod,
	})
}

// TrackShare records a report_shared event.
func (s *Service) TrackShare(ctx context.Context, tenantID, artifactID, sharedByUserID string, sharedWith []string, shareMethod string) error {
	if shareMethod == "" {
		shareMethod = "email"
	}
	userID := sharedByUserID
	return s.insert(ctx, tenantID, domain.EventReportShared, artifactID, &userID, map[string]any{
		"shared_with":     sharedWith,
		"share_method":    shareMethod,
		"recipient_count": len(sharedWith),
	})
}

func (s *Service) insert(ctx context.Context, tenantID string, eventType domain.AuditEventType, artifactID string, userID *string, data map[string]any) error {
	_, err := s.repo.Insert(ctx, &domain.AuditEvent{
		TenantID:     tenantID,
		EventType:    eventType,
		ResourceType: "artifact",
		ResourceID:   artifactID,
		UserID:       userID,
		EventData:    data,
	})
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ArtifactTrail returns the latest 100 events for an artifact (§4.9).
func (s *Service) ArtifactTrail(ctx context.Context, tenantID, artifactID string) ([]*domain.AuditEvent, error) {
	events, err := s.repo.ListByArtifact(ctx, tenantID, artifactID)
	if err != nil {
		return nil, fmt.Errorf("artifact trail: %w", err)
	}
	return events, nil
}

// UserActivity returns a user's recent activity within a tenant.
func (s *Service) UserActivity(ctx context.Context, tenantID, userID string, limit int) ([]*domain.AuditEvent, error) {
	events, err := s.repo.ListByUser(ctx, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("user activity: %w", err)
	}
	return events, nil
}

// ComplianceReport is the §4.9 aggregation shape:
// {total_events, by_type{...}, unique_users, unique_artifacts, events[]}.
type ComplianceReport struct {
	TenantID        string                 `json:"tenant_id"`
	StartDate       time.Time              `json:"start_date"`
	EndDate         time.Time              `json:"end_date"`
	TotalEvents     int                    `json:"total_events"`
	ByType          map[string]int         `json:"by_type"`
	UniqueUsers     int                    `json:"unique_users"`
	UniqueArtifacts int                    `json:"unique_artifacts"`
	Events          []*domain.AuditEvent   `json:"events"`
}

// ComplianceReport aggregates events in [from, to) into the counts a
// compliance audit needs, computed in memory over the repository's raw
// event list rather than pushed down into SQL.
func (s *Service) ComplianceReport(ctx context.Context, tenantID string, from, to time.Time) (*ComplianceReport, error) {
	events, err := s.repo.ListByDateRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("compliance report: %w", err)
	}

	byType := make(map[string]int)
	uniqueUsers := make(map[string]struct{})
	uniqueArtifacts := make(map[string]struct{})

	for _, e := range events {
		byType[string(e.EventType)]++
		if e.UserID != nil && *e.UserID != "" {
			uniqueUsers[*e.UserID] = struct{}{}
		}
		if e.ResourceID != "" {
			uniqueArtifacts[e.ResourceID] = struct{}{}
		}
	}

	return &ComplianceReport{
		TenantID:        tenantID,
		StartDate:       from,
		EndDate:         to,
		TotalEvents:     len(events),
		ByType:          byType,
		UniqueUsers:     len(uniqueUsers),
		UniqueArtifacts: len(uniqueArtifacts),
		Events:          events,
	}, nil
}
