package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/0xabdo/the-market/internal/models"
)

func setupEventTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SecurityEvent{}))
	return db
}

func testThresholds() RiskThresholds {
	return RiskThresholds{Medium: 10, High: 20, Critical: 50}
}

func seedEvents(t *testing.T, db *gorm.DB, address string, kind models.EventKind, n int, ts time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := models.SecurityEvent{
			UUID:          uuid.NewString(),
			SourceAddress: address,
			EventKind:     kind,
			Reason:        "seed",
			StatusCode:    403,
			RiskLevel:     models.RiskLow,
			Timestamp:     ts,
		}
		require.NoError(t, db.Create(&e).Error)
	}
}

type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) NotifyBlocked(address string, level models.RiskLevel) {
	f.calls = append(f.calls, address+":"+string(level))
}

func TestRecord_FillsDefaultsAndRisk(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	e := &models.SecurityEvent{
		SourceAddress: "1.2.3.4",
		EventKind:     models.EventInvalidOrigin,
		Reason:        "Invalid origin: http://evil.test",
		StatusCode:    403,
	}
	require.NoError(t, svc.Record(e))

	assert.NotEmpty(t, e.UUID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, models.RiskLow, e.RiskLevel)
	assert.False(t, e.IsBlocked)
}

func TestRecord_RiskReflectsPostInsertCount(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	// 9 prior events in the trailing hour; the 10th write crosses the
	// medium threshold and must be stored as medium.
	seedEvents(t, db, "1.2.3.4", models.EventRateLimitExceeded, 9, time.Now().Add(-10*time.Minute))

	e := &models.SecurityEvent{SourceAddress: "1.2.3.4", EventKind: models.EventRateLimitExceeded, StatusCode: 429}
	require.NoError(t, svc.Record(e))
	assert.Equal(t, models.RiskMedium, e.RiskLevel)
}

func TestRecord_IgnoresEventsOutsideRiskWindow(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	seedEvents(t, db, "1.2.3.4", models.EventInvalidAPIKey, 30, time.Now().Add(-2*time.Hour))

	e := &models.SecurityEvent{SourceAddress: "1.2.3.4", EventKind: models.EventInvalidAPIKey, StatusCode: 403}
	require.NoError(t, svc.Record(e))
	assert.Equal(t, models.RiskLow, e.RiskLevel, "stale events do not count toward risk")
}

func TestClassify_Monotonic(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	now := time.Now().Add(-time.Minute)
	seedEvents(t, db, "low", models.EventInvalidOrigin, 5, now)
	seedEvents(t, db, "medium", models.EventInvalidOrigin, 12, now)
	seedEvents(t, db, "high", models.EventInvalidOrigin, 25, now)
	seedEvents(t, db, "critical", models.EventInvalidOrigin, 60, now)

	order := map[models.RiskLevel]int{models.RiskLow: 0, models.RiskMedium: 1, models.RiskHigh: 2, models.RiskCritical: 3}

	prev := -1
	for _, addr := range []string{"low", "medium", "high", "critical"} {
		level, err := svc.Classify(addr)
		require.NoError(t, err)
		assert.Equal(t, models.RiskLevel(addr), level)
		assert.GreaterOrEqual(t, order[level], prev, "risk must not decrease with event count")
		prev = order[level]
	}
}

func TestRecord_FeedbackLoopBlocksTrailingHour(t *testing.T) {
	db := setupEventTestDB(t)
	notifier := &fakeNotifier{}
	svc := NewSecurityLogService(db, testThresholds(), notifier)

	seedEvents(t, db, "9.9.9.9", models.EventSuspiciousContent, 19, time.Now().Add(-30*time.Minute))
	// An event outside the feedback window must stay untouched.
	seedEvents(t, db, "9.9.9.9", models.EventSuspiciousContent, 1, time.Now().Add(-3*time.Hour))

	e := &models.SecurityEvent{SourceAddress: "9.9.9.9", EventKind: models.EventSuspiciousContent, StatusCode: 400}
	require.NoError(t, svc.Record(e))
	assert.Equal(t, models.RiskHigh, e.RiskLevel)

	var blocked, total int64
	require.NoError(t, db.Model(&models.SecurityEvent{}).Where("source_address = ? AND is_blocked = ?", "9.9.9.9", true).Count(&blocked).Error)
	require.NoError(t, db.Model(&models.SecurityEvent{}).Where("source_address = ?", "9.9.9.9").Count(&total).Error)
	assert.Equal(t, int64(20), blocked, "trailing hour flagged, stale event left alone")
	assert.Equal(t, int64(21), total)

	assert.Equal(t, []string{"9.9.9.9:high"}, notifier.calls)
}

func TestRecord_LowRiskDoesNotTriggerFeedback(t *testing.T) {
	db := setupEventTestDB(t)
	notifier := &fakeNotifier{}
	svc := NewSecurityLogService(db, testThresholds(), notifier)

	e := &models.SecurityEvent{SourceAddress: "8.8.8.8", EventKind: models.EventInvalidOrigin, StatusCode: 403}
	require.NoError(t, svc.Record(e))

	var blocked int64
	require.NoError(t, db.Model(&models.SecurityEvent{}).Where("is_blocked = ?", true).Count(&blocked).Error)
	assert.Zero(t, blocked)
	assert.Empty(t, notifier.calls)
}

func TestBlockAndUnblock(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	seedEvents(t, db, "1.2.3.4", models.EventInvalidAPIKey, 3, time.Now().Add(-time.Hour))
	seedEvents(t, db, "1.2.3.4", models.EventInvalidAPIKey, 2, time.Now().Add(-48*time.Hour))

	require.NoError(t, svc.Block("1.2.3.4"))

	var blocked int64
	require.NoError(t, db.Model(&models.SecurityEvent{}).Where("source_address = ? AND is_blocked = ?", "1.2.3.4", true).Count(&blocked).Error)
	assert.Equal(t, int64(3), blocked, "manual block reaches the trailing 24h only")

	ok, err := svc.IsBlocked("1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	// Unblock clears every row for the address, regardless of age.
	require.NoError(t, svc.Unblock("1.2.3.4"))
	require.NoError(t, db.Model(&models.SecurityEvent{}).Where("source_address = ? AND is_blocked = ?", "1.2.3.4", true).Count(&blocked).Error)
	assert.Zero(t, blocked)

	ok, err = svc.IsBlocked("1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsBlocked_IgnoresStaleFlags(t *testing.T) {
	db := setupEventTestDB(t)
	svc := NewSecurityLogService(db, testThresholds(), nil)

	e := models.SecurityEvent{
		UUID:          uuid.NewString(),
		SourceAddress: "7.7.7.7",
		EventKind:     models.EventBlockedRequest,
		IsBlocked:     true,
		Timestamp:     time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(&e).Error)

	ok, err := svc.IsBlocked("7.7.7.7")
	require.NoError(t, err)
	assert.False(t, ok, "blocks older than 24h have expired")
}
