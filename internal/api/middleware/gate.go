package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xabdo/the-market/internal/config"
	"github.com/0xabdo/the-market/internal/logger"
	"github.com/0xabdo/the-market/internal/metrics"
	"github.com/0xabdo/the-market/internal/models"
	"github.com/0xabdo/the-market/internal/ratelimit"
	"github.com/0xabdo/the-market/internal/security"
	"github.com/0xabdo/the-market/internal/services"
)

const parsedBodyKey = "parsedBody"

// Gate is the admission decision point invoked before any business
// handler runs. Each stage either passes the request on or terminates it
// with a stable status code, recording a security event on the way out.
// Recording failures are swallowed: a broken audit trail must not deny
// or grant service on its own.
type Gate struct {
	cfg     config.Config
	counter ratelimit.Counter
	scanner *security.Scanner
	events  *services.SecurityLogService

	// sleep is swapped out in tests so delay assertions don't wait.
	sleep func(time.Duration)
}

// NewGate wires the admission gate from its collaborators.
func NewGate(cfg config.Config, counter ratelimit.Counter, scanner *security.Scanner, events *services.SecurityLogService) *Gate {
	return &Gate{
		cfg:     cfg,
		counter: counter,
		scanner: scanner,
		events:  events,
		sleep:   time.Sleep,
	}
}

// trusted reports whether the request carries the configured shared API
// key. Holding the key is treated as proof of being the first-party
// client, which exempts the request from rate and speed limiting.
func (g *Gate) trusted(c *gin.Context) bool {
	return g.cfg.APIKey != "" && apiKeyFrom(c) == g.cfg.APIKey
}

func apiKeyFrom(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// BlockedCheck rejects requests from addresses whose recent events are
// flagged as blocked. Lookup failures degrade to allow.
func (g *Gate) BlockedCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		blocked, err := g.events.IsBlocked(c.ClientIP())
		if err != nil {
			logger.WithError(err).Warn("blocked-address lookup failed, admitting request")
			c.Next()
			return
		}
		if blocked {
			g.reject(c, models.EventBlockedRequest, "Source address is blocked", http.StatusForbidden, gin.H{
				"error":   "Access denied",
				"message": "Requests from this address are currently blocked",
			})
			return
		}
		c.Next()
	}
}

// SizeLimit rejects oversized bodies before anything parses them. The
// rejection is cheap and deliberate noise, so it is not recorded as a
// security event.
func (g *Gate) SizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > g.cfg.MaxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "Request too large",
				"message": "Request size exceeds the maximum allowed limit",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, g.cfg.MaxBodyBytes)
		c.Next()
	}
}

// ValidateRequest scans body and query strings for injection signatures.
// The body is re-installed afterwards so handlers can read it normally.
func (g *Gate) ValidateRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.scanner.SuspiciousQuery(c.Request.URL.Query()) {
			g.rejectSuspicious(c)
			return
		}

		if c.Request.Body != nil && c.Request.ContentLength != 0 {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "Invalid request body",
					"message": "Request body could not be read",
				})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))

			var parsed interface{}
			if json.Unmarshal(raw, &parsed) == nil {
				c.Set(parsedBodyKey, parsed)
				if g.scanner.Suspicious(parsed) {
					g.rejectSuspicious(c)
					return
				}
			} else if g.scanner.Suspicious(string(raw)) {
				g.rejectSuspicious(c)
				return
			}
		}

		c.Next()
	}
}

func (g *Gate) rejectSuspicious(c *gin.Context) {
	g.reject(c, models.EventSuspiciousContent, "Request contains potentially malicious content", http.StatusBadRequest, gin.H{
		"error":   "Suspicious content detected",
		"message": "Request contains potentially malicious content",
	})
}

// ValidateAPIKey enforces the shared-secret check. With no secret
// configured the check is disabled. Only the first 10 characters of a
// wrong key are ever recorded.
func (g *Gate) ValidateAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.cfg.APIKey == "" {
			c.Next()
			return
		}

		key := apiKeyFrom(c)
		if key == "" {
			g.reject(c, models.EventUnauthorizedAccess, "No API key provided", http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "This API requires a valid API key",
			})
			return
		}
		if key != g.cfg.APIKey {
			prefix := key
			if len(prefix) > 10 {
				prefix = prefix[:10]
			}
			g.reject(c, models.EventInvalidAPIKey, fmt.Sprintf("Invalid API key provided: %s...", prefix), http.StatusForbidden, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}
		c.Next()
	}
}

// ValidateOrigin requires the Origin or Referer header to start with one
// of the allow-listed origins.
func (g *Gate) ValidateOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}

		if origin == "" {
			g.reject(c, models.EventInvalidOrigin, "No origin header provided", http.StatusForbidden, gin.H{
				"error":   "Origin required",
				"message": "Requests must include a valid origin header",
			})
			return
		}

		for _, allowed := range g.cfg.AllowedOrigins {
			if strings.HasPrefix(origin, allowed) {
				c.Next()
				return
			}
		}

		g.reject(c, models.EventInvalidOrigin, fmt.Sprintf("Invalid origin: %s", security.ForLog(origin)), http.StatusForbidden, gin.H{
			"error":   "Invalid origin",
			"message": "Requests from this origin are not allowed",
		})
	}
}

// RateLimit enforces one sliding-window budget keyed by budget class and
// source address, so stacked limiters (general + auth, general + upload)
// each keep their own window. Requests carrying the shared API key bypass
// it entirely.
func (g *Gate) RateLimit(budget config.RateBudget) gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.trusted(c) {
			c.Next()
			return
		}

		key := budget.Name + ":" + c.ClientIP()
		if !g.counter.Allow(c.Request.Context(), key, budget.Window, budget.Max) {
			retry := g.counter.RetryAfter(c.Request.Context(), key, budget.Window)
			g.reject(c, models.EventRateLimitExceeded,
				fmt.Sprintf("Rate limit exceeded: %d requests per %ds", budget.Max, int(budget.Window.Seconds())),
				http.StatusTooManyRequests, gin.H{
					"error":      "Too many requests from this address, please try again later",
					"message":    "Rate limit exceeded",
					"retryAfter": int(retry.Seconds()),
				})
			return
		}
		c.Next()
	}
}

// SpeedLimit inserts a graduated delay for callers approaching the quota
// instead of rejecting them outright. It reads the general-class counter
// state but never produces a verdict.
func (g *Gate) SpeedLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.trusted(c) {
			c.Next()
			return
		}

		key := g.cfg.GeneralLimit.Name + ":" + c.ClientIP()
		count := g.counter.Count(c.Request.Context(), key, g.cfg.SpeedLimit.Window)
		excess := count - g.cfg.SpeedLimit.DelayAfter
		if excess > 0 {
			delay := time.Duration(excess) * g.cfg.SpeedLimit.DelayStep
			if delay > g.cfg.SpeedLimit.MaxDelay {
				delay = g.cfg.SpeedLimit.MaxDelay
			}
			metrics.ObserveDelay(delay.Seconds())
			g.sleep(delay)
		}
		c.Next()
	}
}

// reject terminates the request and records a security event. The
// admission decision is returned to the caller regardless of whether
// recording succeeds.
func (g *Gate) reject(c *gin.Context, kind models.EventKind, reason string, status int, body gin.H) {
	metrics.IncRejected(string(kind))

	event := &models.SecurityEvent{
		SourceAddress: c.ClientIP(),
		UserAgent:     security.ForLog(c.GetHeader("User-Agent")),
		OriginHeader:  security.ForLog(c.GetHeader("Origin")),
		RefererHeader: security.ForLog(c.GetHeader("Referer")),

		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		Endpoint: security.ForLog(c.Request.RequestURI),

		EventKind:  kind,
		Reason:     reason,
		StatusCode: status,

		SanitizedHeaders: security.SanitizeHeaders(c.Request.Header),
		QueryParams:      security.SanitizeQuery(c.Request.URL.Query()),

		Fingerprint: security.Fingerprint(
			c.GetHeader("User-Agent"),
			c.GetHeader("Accept-Language"),
			c.GetHeader("Accept-Encoding"),
			c.ClientIP(),
		),
	}
	if parsed, ok := c.Get(parsedBodyKey); ok {
		event.SanitizedBody = security.SanitizeBody(parsed)
	}

	if err := g.events.Record(event); err != nil {
		GetRequestLogger(c).WithError(err).Error("failed to record security event")
	}

	c.AbortWithStatusJSON(status, body)
}
