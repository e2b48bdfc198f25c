package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/metrics"
	"github.com/0xabdo/the-market/internal/models"
)

var ErrEventNotFound = errors.New("security event not found")

// riskWindow is the trailing period the classifier counts events over.
const riskWindow = time.Hour

// blockWindow is how far back the automatic feedback loop flags events
// when an address crosses the high-risk threshold.
const blockWindow = time.Hour

// manualBlockWindow is how far back an explicit admin block reaches.
const manualBlockWindow = 24 * time.Hour

// RiskThresholds are the event counts at which an address is promoted to
// each risk level within the trailing hour.
type RiskThresholds struct {
	Medium   int
	High     int
	Critical int
}

// BlockNotifier is told when an address is auto-blocked. Delivery is best
// effort; failures never affect the admission path.
type BlockNotifier interface {
	NotifyBlocked(address string, level models.RiskLevel)
}

// SecurityLogService owns the append-only security event store: recording,
// risk classification, the block feedback loop and the admin query surface.
type SecurityLogService struct {
	db         *gorm.DB
	thresholds RiskThresholds
	notifier   BlockNotifier
}

// NewSecurityLogService returns a SecurityLogService using the provided DB.
// notifier may be nil.
func NewSecurityLogService(db *gorm.DB, thresholds RiskThresholds, notifier BlockNotifier) *SecurityLogService {
	return &SecurityLogService{db: db, thresholds: thresholds, notifier: notifier}
}

// Record persists one security event. The stored risk level reflects the
// post-insert count for the source address, and recording a high or
// critical event immediately runs the block feedback loop.
func (s *SecurityLogService) Record(e *models.SecurityEvent) error {
	if e == nil {
		return nil
	}
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	prior, err := s.countSince(e.SourceAddress, e.Timestamp.Add(-riskWindow))
	if err != nil {
		return fmt.Errorf("count recent events: %w", err)
	}
	e.RiskLevel = s.levelFor(prior + 1)

	if err := s.db.Create(e).Error; err != nil {
		return fmt.Errorf("create security event: %w", err)
	}

	if e.RiskLevel == models.RiskHigh || e.RiskLevel == models.RiskCritical {
		if err := s.blockRecent(e.SourceAddress, blockWindow); err != nil {
			return fmt.Errorf("block feedback: %w", err)
		}
		metrics.IncAutoBlocked()
		if s.notifier != nil {
			s.notifier.NotifyBlocked(e.SourceAddress, e.RiskLevel)
		}
	}

	return nil
}

// Classify derives the risk level of a source address from its trailing
// hour of recorded events. It is stateless and recomputed on demand.
func (s *SecurityLogService) Classify(address string) (models.RiskLevel, error) {
	count, err := s.countSince(address, time.Now().Add(-riskWindow))
	if err != nil {
		return models.RiskLow, fmt.Errorf("count recent events: %w", err)
	}
	return s.levelFor(count), nil
}

func (s *SecurityLogService) levelFor(count int) models.RiskLevel {
	switch {
	case count >= s.thresholds.Critical:
		return models.RiskCritical
	case count >= s.thresholds.High:
		return models.RiskHigh
	case count >= s.thresholds.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func (s *SecurityLogService) countSince(address string, since time.Time) (int, error) {
	var count int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("source_address = ? AND timestamp >= ?", address, since).
		Count(&count).Error
	return int(count), err
}

// blockRecent flags every event for the address inside the window. The
// update is idempotent.
func (s *SecurityLogService) blockRecent(address string, window time.Duration) error {
	return s.db.Model(&models.SecurityEvent{}).
		Where("source_address = ? AND timestamp >= ?", address, time.Now().Add(-window)).
		Update("is_blocked", true).Error
}

// Block is the manual admin override: it flags the address's trailing
// 24 hours of events.
func (s *SecurityLogService) Block(address string) error {
	if err := s.blockRecent(address, manualBlockWindow); err != nil {
		return fmt.Errorf("block address: %w", err)
	}
	return nil
}

// Unblock clears the blocked flag for every event of the address,
// regardless of age.
func (s *SecurityLogService) Unblock(address string) error {
	err := s.db.Model(&models.SecurityEvent{}).
		Where("source_address = ?", address).
		Update("is_blocked", false).Error
	if err != nil {
		return fmt.Errorf("unblock address: %w", err)
	}
	return nil
}

// IsBlocked reports whether the address has a currently-blocked event in
// the trailing 24 hours. The admission gate consults this before any
// other check.
func (s *SecurityLogService) IsBlocked(address string) (bool, error) {
	var count int64
	err := s.db.Model(&models.SecurityEvent{}).
		Where("source_address = ? AND is_blocked = ? AND timestamp >= ?",
			address, true, time.Now().Add(-manualBlockWindow)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("blocked lookup: %w", err)
	}
	return count > 0, nil
}
