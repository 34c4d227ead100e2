// Package alerting provides the shared Alert type and Sender abstraction
// used by both the Risk Budget Manager and the System Risk Controller.
// Grounded on system_risk_controller/alerting.py's AlertSender /
// ConsoleAlertSender split — only the console sender is implemented here,
// since webhook/Telegram transports are the kind of notification-transport
// concern this package places out of scope.
package alerting

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Severity mirrors the priority levels a halt or warning alert carries.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Alert is one notification, independent of transport.
type Alert struct {
	Severity      Severity
	Trigger       string
	Symbol        string
	Message       string
	At            time.Time
	CorrelationID string
}

// Sender delivers an Alert. Send must never block the control path and
// must never propagate a transport failure: "Transport failure
// (alerts): log and swallow; never block control path."
type Sender interface {
	Send(a Alert)
}

// ConsoleSender logs alerts via zap — the one in-repo AlertSender
// implementation. A Telegram/webhook sender would implement the same
// interface but lives outside this repository's scope.
type ConsoleSender struct {
	logger *zap.Logger
}

func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (c *ConsoleSender) Send(a Alert) {
	fields := []zap.Field{
		zap.String("severity", string(a.Severity)),
		zap.String("trigger", a.Trigger),
		zap.String("symbol", a.Symbol),
		zap.String("correlation_id", a.CorrelationID),
	}
	switch a.Severity {
	case SeverityEmergency, SeverityCritical:
		c.logger.Error(a.Message, fields...)
	case SeverityWarning:
		c.logger.Warn(a.Message, fields...)
	default:
		c.logger.Info(a.Message, fields...)
	}
}

// RateLimitedSender wraps a Sender with a bounded rate per (trigger,
// symbol) key and hands each admitted alert to the inner Sender on its own
// goroutine, so Send never blocks its caller. Alerts are not prioritised
// by severity. Uses golang.org/x/time/rate, one limiter per key, lazily
// created.
type RateLimitedSender struct {
	inner  Sender
	limit  rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimitedSender(inner Sender, eventsPerMinute float64, burst int) *RateLimitedSender {
	return &RateLimitedSender{
		inner:    inner,
		limit:    rate.Limit(eventsPerMinute / 60.0),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *RateLimitedSender) Send(a Alert) {
	key := a.Trigger + "|" + a.Symbol
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()

	if limiter.Allow() {
		go r.inner.Send(a)
	}
}

// NoopSender discards every alert; useful for tests that don't care about
// alerting side effects.
type NoopSender struct{}

func (NoopSender) Send(Alert) {}
