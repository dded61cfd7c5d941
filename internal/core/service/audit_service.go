package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/port"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 200

	DefaultRecentHours   = 24
	DashboardRecentHours = 168
	maxRecentHours       = 24 * 365

	DefaultTrendDays = 30
	maxTrendDays     = 365
)

const dayLayout = "2006-01-02"

type requestMetaKey struct{}

// RequestMeta describes the client behind a mutation, for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

type AuditService struct {
	repo   port.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditService(repo port.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger, now: utcNow}
}

// Record appends an entry. Failures are logged and never reach the caller: the
// mutation being audited has already been committed.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry) {
	meta := requestMetaFrom(ctx)
	entry.ID = uuid.NewString()
	entry.Timestamp = s.now()
	entry.IPAddress = meta.IPAddress
	entry.UserAgent = meta.UserAgent

	if err := s.repo.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record audit entry",
			zap.String("owner_id", entry.OwnerID),
			zap.String("entity_type", string(entry.EntityType)),
			zap.String("entity_id", entry.EntityID),
			zap.String("operation", string(entry.Operation)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("audit entry recorded",
		zap.String("operation", string(entry.Operation)),
		zap.String("entity_id", entry.EntityID),
	)
}

func (s *AuditService) RecentActivity(ctx context.Context, ownerID string, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	filter.Limit = clampLimit(filter.Limit, defaultActivityLimit, maxActivityLimit)
	entries, err := s.repo.ListAudit(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Recent lists the owner's entries of the last hours hours, newest first.
// Zero hours means DefaultRecentHours.
func (s *AuditService) Recent(ctx context.Context, ownerID string, hours, limit int) ([]domain.AuditEntry, error) {
	if hours == 0 {
		hours = DefaultRecentHours
	}
	if hours < 0 || hours > maxRecentHours {
		return nil, domain.Validationf("hours must be between 1 and %d", maxRecentHours)
	}
	return s.RecentActivity(ctx, ownerID, domain.AuditFilter{
		Since: s.now().Add(-time.Duration(hours) * time.Hour),
		Limit: limit,
	})
}

// Trends counts the owner's entries of the last days days per UTC day and
// per operation. Zero days means DefaultTrendDays.
func (s *AuditService) Trends(ctx context.Context, ownerID string, days int) (domain.ActivityTrends, error) {
	days, err := trendDays(days)
	if err != nil {
		return domain.ActivityTrends{}, err
	}
	entries, err := s.repo.ListAudit(ctx, ownerID, domain.AuditFilter{Since: trendStart(s.now(), days)})
	if err != nil {
		return domain.ActivityTrends{}, fmt.Errorf("list audit entries: %w", err)
	}

	trends := domain.ActivityTrends{
		Days:        days,
		Daily:       make(map[string]int),
		ByOperation: make(map[domain.Operation]int),
		Total:       len(entries),
	}
	for _, e := range entries {
		trends.Daily[e.Timestamp.UTC().Format(dayLayout)]++
		trends.ByOperation[e.Operation]++
	}
	return trends, nil
}

func trendDays(days int) (int, error) {
	if days == 0 {
		return DefaultTrendDays, nil
	}
	if days < 0 || days > maxTrendDays {
		return 0, domain.Validationf("days must be between 1 and %d", maxTrendDays)
	}
	return days, nil
}

func trendStart(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}

func (s *AuditService) Summary(ctx context.Context, ownerID string) (domain.AuditSummary, error) {
	entries, err := s.repo.ListAudit(ctx, ownerID, domain.AuditFilter{})
	if err != nil {
		return domain.AuditSummary{}, fmt.Errorf("list audit entries: %w", err)
	}

	summary := domain.AuditSummary{ByEntity: make(map[domain.EntityType]int)}
	for _, e := range entries {
		switch e.Operation {
		case domain.OperationCreate:
			summary.Create++
		case domain.OperationUpdate:
			summary.Update++
		case domain.OperationDelete:
			summary.Delete++
		case domain.OperationStockAdd, domain.OperationStockRemove:
			summary.Stock++
		}
		summary.ByEntity[e.EntityType]++
		summary.Total++
	}
	return summary, nil
}
