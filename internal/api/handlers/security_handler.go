package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xabdo/the-market/internal/api/middleware"
	"github.com/0xabdo/the-market/internal/services"
)

// SecurityHandler exposes the admin query surface over the security
// event store: dashboards, event listings, per-address analysis and the
// manual block override.
type SecurityHandler struct {
	events *services.SecurityLogService
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(events *services.SecurityLogService) *SecurityHandler {
	return &SecurityHandler{events: events}
}

// Dashboard returns the trailing-24h security overview.
func (h *SecurityHandler) Dashboard(c *gin.Context) {
	const day = 24 * time.Hour

	stats, err := h.events.KindBreakdown(day)
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}
	topOffenders, err := h.events.TopOffenders(10, day)
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}
	recent, err := h.events.RecentEvents(20, day)
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}
	total, err := h.events.CountEvents(day)
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}
	critical, err := h.events.CountEvents(day, "high", "critical")
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}
	unique, err := h.events.UniqueAddresses(day)
	if err != nil {
		h.fail(c, err, "Error retrieving security data")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":         stats,
		"top_offenders": topOffenders,
		"recent_events": recent,
		"summary": gin.H{
			"total_events_24h":     total,
			"critical_events_24h":  critical,
			"unique_addresses_24h": unique,
		},
	})
}

// ListEvents returns a filtered, paginated event listing.
func (h *SecurityHandler) ListEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filter := services.EventFilter{
		Kind:      c.Query("kind"),
		RiskLevel: c.Query("risk_level"),
		Address:   c.Query("address"),
		Page:      page,
		Limit:     limit,
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, want RFC3339"})
			return
		}
		filter.Start = t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, want RFC3339"})
			return
		}
		filter.End = t
	}

	events, total, err := h.events.ListEvents(filter)
	if err != nil {
		h.fail(c, err, "Error retrieving security events")
		return
	}

	page, limit = filter.Pagination()
	pages := (total + int64(limit) - 1) / int64(limit)

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
			"pages": pages,
		},
	})
}

// GetEvent returns one event by id, sanitized payloads included.
func (h *SecurityHandler) GetEvent(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.events.GetEvent(uint(id))
	if err != nil {
		if errors.Is(err, services.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Security event not found"})
			return
		}
		h.fail(c, err, "Error retrieving security event")
		return
	}
	c.JSON(http.StatusOK, event)
}

// AnalyzeAddress returns one address's trailing events, current risk and
// per-kind breakdown.
func (h *SecurityHandler) AnalyzeAddress(c *gin.Context) {
	address := c.Param("address")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days < 1 {
		days = 7
	}
	window := time.Duration(days) * 24 * time.Hour

	events, err := h.events.AddressEvents(address, window, 100)
	if err != nil {
		h.fail(c, err, "Error retrieving address analysis")
		return
	}
	breakdown, err := h.events.AddressBreakdown(address, window)
	if err != nil {
		h.fail(c, err, "Error retrieving address analysis")
		return
	}
	risk, err := h.events.Classify(address)
	if err != nil {
		h.fail(c, err, "Error retrieving address analysis")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      address,
		"risk_level":   risk,
		"window_days":  days,
		"events":       events,
		"breakdown":    breakdown,
		"total_events": len(events),
	})
}

type blockRequest struct {
	Action string `json:"action"`
}

// BlockAddress applies or clears the manual block override.
func (h *SecurityHandler) BlockAddress(c *gin.Context) {
	address := c.Param("address")

	req := blockRequest{Action: "block"}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	switch req.Action {
	case "block":
		if err := h.events.Block(address); err != nil {
			h.fail(c, err, "Error processing address action")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Address " + address + " has been blocked"})
	case "unblock":
		if err := h.events.Unblock(address); err != nil {
			h.fail(c, err, "Error processing address action")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Address " + address + " has been unblocked"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": `invalid action, use "block" or "unblock"`})
	}
}

// Stats returns bucketed counts for charts over a named period.
func (h *SecurityHandler) Stats(c *gin.Context) {
	period := c.DefaultQuery("period", "24h")

	var window time.Duration
	switch period {
	case "1h":
		window = time.Hour
	case "24h":
		window = 24 * time.Hour
	case "7d":
		window = 7 * 24 * time.Hour
	case "30d":
		window = 30 * 24 * time.Hour
	default:
		period = "24h"
		window = 24 * time.Hour
	}

	buckets, err := h.events.TimeBuckets(window, period == "1h" || period == "24h")
	if err != nil {
		h.fail(c, err, "Error retrieving security statistics")
		return
	}
	byKind, err := h.events.KindBreakdown(window)
	if err != nil {
		h.fail(c, err, "Error retrieving security statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"period":         period,
		"breakdown":      buckets,
		"kind_breakdown": byKind,
	})
}

func (h *SecurityHandler) fail(c *gin.Context, err error, msg string) {
	middleware.GetRequestLogger(c).WithError(err).Error(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
