// Package audit persists the control plane's mutable state (position and
// daily risk ledgers, the drawdown high-water mark, resume requests) via
// GORM, and its immutable event history (halt events, state transitions,
// risk evaluations, equity snapshots, alerts, health snapshots) via
// hand-written sqlx append-only inserts, keeping the mutable/append-only
// concerns in separate repositories.
package audit

import "time"

// PositionRiskRecord mirrors one open position's risk bookkeeping row.
// Upserted in place as the position's stop/size changes.
type PositionRiskRecord struct {
	ID            uint   `gorm:"primaryKey"`
	PositionID    string `gorm:"uniqueIndex"`
	Symbol        string `gorm:"index"`
	Direction     string
	EntryPrice    float64
	CurrentStop   float64
	Size          float64
	RiskPct       float64
	EquityAtEntry float64
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

func (PositionRiskRecord) TableName() string { return "position_risk" }

// DailyRiskRecord is the single mutable row tracking the current trading
// day's cumulative risk usage; reset at day rollover.
type DailyRiskRecord struct {
	ID           uint `gorm:"primaryKey"`
	TradingDate  string `gorm:"uniqueIndex"`
	UsedPct      float64
	ConsecutiveLosses int
	UpdatedAt    time.Time
}

func (DailyRiskRecord) TableName() string { return "daily_risk" }

// DrawdownPeakRecord is the single mutable row holding the account's
// all-time equity high-water mark used for drawdown-from-peak math.
type DrawdownPeakRecord struct {
	ID        uint `gorm:"primaryKey"`
	PeakEquity float64
	ObservedAt time.Time
	UpdatedAt  time.Time
}

func (DrawdownPeakRecord) TableName() string { return "drawdown_peak" }

// ResumeRequestRecord is upserted per outstanding manual-resume request so
// an operator reconnecting to the API can see what's pending.
type ResumeRequestRecord struct {
	ID           uint `gorm:"primaryKey"`
	Operator     string
	Reason       string
	Acknowledged bool
	Confirmed    bool
	RequestedAt  time.Time
	ResolvedAt   *time.Time
}

func (ResumeRequestRecord) TableName() string { return "resume_requests" }

// AllModels lists every GORM-managed table for AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&PositionRiskRecord{},
		&DailyRiskRecord{},
		&DrawdownPeakRecord{},
		&ResumeRequestRecord{},
	}
}
