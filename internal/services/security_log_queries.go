package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/models"
)

// listColumns excludes the sanitized payload columns from listings; they
// are only loaded when a single event is fetched by id.
var listColumns = []string{
	"id", "uuid", "source_address", "user_agent", "origin_header", "referer_header",
	"method", "path", "endpoint", "event_kind", "reason", "status_code",
	"risk_level", "is_blocked", "fingerprint", "timestamp",
}

// EventFilter narrows an event listing. Zero values mean "no filter".
type EventFilter struct {
	Kind      string
	RiskLevel string
	Address   string
	Start     time.Time
	End       time.Time
	Page      int
	Limit     int
}

// OffenderStat aggregates one source address's trailing activity.
type OffenderStat struct {
	SourceAddress string    `json:"source_address"`
	Count         int       `json:"count"`
	LastSeen      time.Time `json:"last_seen"`
}

// KindStat aggregates events of one kind.
type KindStat struct {
	EventKind       string `json:"event_kind"`
	Count           int    `json:"count"`
	UniqueAddresses int    `json:"unique_addresses"`
}

// BucketStat aggregates events into one time bucket for dashboards.
type BucketStat struct {
	Bucket          string `json:"bucket"`
	Count           int    `json:"count"`
	UniqueAddresses int    `json:"unique_addresses"`
}

// Pagination clamps the filter's page and limit to valid bounds. Both
// the listing query and its response envelope derive from it, so the two
// cannot drift.
func (f EventFilter) Pagination() (page, limit int) {
	page = f.Page
	if page < 1 {
		page = 1
	}
	limit = f.Limit
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return page, limit
}

// ListEvents returns a filtered, paginated page of events plus the total
// matching count, newest first.
func (s *SecurityLogService) ListEvents(f EventFilter) ([]models.SecurityEvent, int64, error) {
	q := s.db.Model(&models.SecurityEvent{})
	if f.Kind != "" {
		q = q.Where("event_kind = ?", f.Kind)
	}
	if f.RiskLevel != "" {
		q = q.Where("risk_level = ?", f.RiskLevel)
	}
	if f.Address != "" {
		q = q.Where("source_address LIKE ?", "%"+f.Address+"%")
	}
	if !f.Start.IsZero() {
		q = q.Where("timestamp >= ?", f.Start)
	}
	if !f.End.IsZero() {
		q = q.Where("timestamp <= ?", f.End)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	page, limit := f.Pagination()

	var events []models.SecurityEvent
	err := q.Select(listColumns).
		Order("timestamp desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

// GetEvent fetches one event by id, sanitized payloads included.
func (s *SecurityLogService) GetEvent(id uint) (*models.SecurityEvent, error) {
	var e models.SecurityEvent
	if err := s.db.First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// RecentEvents returns the latest events inside the window.
func (s *SecurityLogService) RecentEvents(limit int, window time.Duration) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	err := s.db.Select(listColumns).
		Where("timestamp >= ?", time.Now().Add(-window)).
		Order("timestamp desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

// TopOffenders returns the addresses with the most events inside the
// window, busiest first.
func (s *SecurityLogService) TopOffenders(limit int, window time.Duration) ([]OffenderStat, error) {
	var stats []OffenderStat
	err := s.db.Model(&models.SecurityEvent{}).
		Select("source_address, COUNT(*) as count, MAX(timestamp) as last_seen").
		Where("timestamp >= ?", time.Now().Add(-window)).
		Group("source_address").
		Order("count desc").
		Limit(limit).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("top offenders: %w", err)
	}
	return stats, nil
}

// KindBreakdown aggregates trailing events by kind, with the number of
// distinct addresses behind each kind.
func (s *SecurityLogService) KindBreakdown(window time.Duration) ([]KindStat, error) {
	var stats []KindStat
	err := s.db.Model(&models.SecurityEvent{}).
		Select("event_kind, COUNT(*) as count, COUNT(DISTINCT source_address) as unique_addresses").
		Where("timestamp >= ?", time.Now().Add(-window)).
		Group("event_kind").
		Order("count desc").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("kind breakdown: %w", err)
	}
	return stats, nil
}

// AddressBreakdown aggregates one address's trailing events by kind.
func (s *SecurityLogService) AddressBreakdown(address string, window time.Duration) ([]KindStat, error) {
	var stats []KindStat
	err := s.db.Model(&models.SecurityEvent{}).
		Select("event_kind, COUNT(*) as count").
		Where("source_address = ? AND timestamp >= ?", address, time.Now().Add(-window)).
		Group("event_kind").
		Order("count desc").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("address breakdown: %w", err)
	}
	return stats, nil
}

// AddressEvents returns one address's trailing events, newest first,
// capped at limit.
func (s *SecurityLogService) AddressEvents(address string, window time.Duration, limit int) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	err := s.db.Select(listColumns).
		Where("source_address = ? AND timestamp >= ?", address, time.Now().Add(-window)).
		Order("timestamp desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("address events: %w", err)
	}
	return events, nil
}

// TimeBuckets groups trailing events into hourly or daily buckets for
// dashboard charts. hourly selects hour-granularity buckets.
func (s *SecurityLogService) TimeBuckets(window time.Duration, hourly bool) ([]BucketStat, error) {
	format := "%Y-%m-%d"
	if hourly {
		format = "%Y-%m-%d %H:00"
	}

	var stats []BucketStat
	err := s.db.Model(&models.SecurityEvent{}).
		Select("strftime(?, timestamp) as bucket, COUNT(*) as count, COUNT(DISTINCT source_address) as unique_addresses", format).
		Where("timestamp >= ?", time.Now().Add(-window)).
		Group("bucket").
		Order("bucket asc").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("time buckets: %w", err)
	}
	return stats, nil
}

// UniqueAddresses counts distinct source addresses inside the window.
func (s *SecurityLogService) UniqueAddresses(window time.Duration) (int64, error) {
	var count int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("timestamp >= ?", time.Now().Add(-window)).
		Distinct("source_address").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("unique addresses: %w", err)
	}
	return count, nil
}

// CountEvents counts all events inside the window, optionally restricted
// to the given risk levels.
func (s *SecurityLogService) CountEvents(window time.Duration, levels ...models.RiskLevel) (int64, error) {
	q := s.db.Model(&models.SecurityEvent{}).
		Where("timestamp >= ?", time.Now().Add(-window))
	if len(levels) > 0 {
		q = q.Where("risk_level IN ?", levels)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}
