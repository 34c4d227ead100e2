package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/riskbudget"
	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// AppendOnlyRepository inserts immutable rows: halt events, state
// transitions, risk evaluations, equity snapshots, risk alerts, and health
// snapshots. Rows are never updated or deleted by application code — only
// archival compaction (see Archiver) ever touches old rows, and only to
// copy-then-compress them, never to mutate in place.
type AppendOnlyRepository struct {
	db *sqlx.DB
}

func NewAppendOnlyRepository(db *sqlx.DB) *AppendOnlyRepository {
	return &AppendOnlyRepository{db: db}
}

func (r *AppendOnlyRepository) InsertHaltEvent(ctx context.Context, e srcstate.HaltEvent) error {
	snapshot, err := json.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal halt event snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO halt_events (id, trigger_code, category, reason, level, monitor_id, occurred_at, snapshot, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Trigger.Code, e.Category, e.Reason, e.Level, e.MonitorID, e.Timestamp, snapshot, e.CorrelationID,
	)
	return err
}

func (r *AppendOnlyRepository) InsertStateTransition(ctx context.Context, t srcstate.StateTransition) error {
	var triggerCode string
	if t.Trigger != nil {
		triggerCode = t.Trigger.Code
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO state_transitions (id, from_state, to_state, trigger_code, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.From.String(), t.To.String(), triggerCode, t.Timestamp,
	)
	return err
}

func (r *AppendOnlyRepository) InsertRiskEvaluation(ctx context.Context, req riskbudget.TradeRiskRequest, resp riskbudget.TradeRiskResponse, evaluatedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_evaluations (request_id, symbol, decision, primary_reason, allowed_risk_pct, allowed_size, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.RequestID, req.Symbol, resp.Decision, resp.PrimaryReason, resp.AllowedRiskPct, resp.AllowedSize, evaluatedAt,
	)
	return err
}

func (r *AppendOnlyRepository) InsertEquitySnapshot(ctx context.Context, equity, peak, drawdownPct float64, observedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO equity_snapshots (equity, peak_equity, drawdown_pct, observed_at)
		VALUES ($1, $2, $3, $4)`,
		equity, peak, drawdownPct, observedAt,
	)
	return err
}

func (r *AppendOnlyRepository) InsertRiskAlert(ctx context.Context, severity, trigger, symbol, message string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_alerts (severity, trigger, symbol, message, sent_at)
		VALUES ($1, $2, $3, $4, $5)`,
		severity, trigger, symbol, message, sentAt,
	)
	return err
}

func (r *AppendOnlyRepository) InsertHealthSnapshot(ctx context.Context, sourceID string, score float64, state string, observedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO health_snapshots (source_id, score, state, observed_at)
		VALUES ($1, $2, $3, $4)`,
		sourceID, score, state, observedAt,
	)
	return err
}

// Schema returns the append-only tables' DDL, executed once at startup
// alongside the GORM AutoMigrate of the mutable tables.
const Schema = `
CREATE TABLE IF NOT EXISTS halt_events (
	id TEXT PRIMARY KEY,
	trigger_code TEXT NOT NULL,
	category TEXT NOT NULL,
	reason TEXT NOT NULL,
	level TEXT NOT NULL,
	monitor_id TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	snapshot JSONB,
	correlation_id TEXT
);
CREATE TABLE IF NOT EXISTS state_transitions (
	id TEXT PRIMARY KEY,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	trigger_code TEXT,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS risk_evaluations (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	decision TEXT NOT NULL,
	primary_reason TEXT,
	allowed_risk_pct DOUBLE PRECISION,
	allowed_size DOUBLE PRECISION,
	evaluated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS equity_snapshots (
	id BIGSERIAL PRIMARY KEY,
	equity DOUBLE PRECISION NOT NULL,
	peak_equity DOUBLE PRECISION NOT NULL,
	drawdown_pct DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS risk_alerts (
	id BIGSERIAL PRIMARY KEY,
	severity TEXT NOT NULL,
	trigger TEXT NOT NULL,
	symbol TEXT,
	message TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS health_snapshots (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	state TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema runs Schema's DDL. Safe to call on every startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
