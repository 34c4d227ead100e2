package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Archiver compacts append-only rows older than a retention window into
// zstd-compressed JSON blobs, then deletes the source rows. It never
// mutates a row in place — only copy-compress-delete, preserving the
// append-only table's write semantics up to the point of archival.
type Archiver struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewArchiver(db *sqlx.DB, logger *zap.Logger) *Archiver {
	return &Archiver{db: db, logger: logger}
}

type archivedHaltEvent struct {
	ID          string    `db:"id" json:"id"`
	TriggerCode string    `db:"trigger_code" json:"trigger_code"`
	Category    string    `db:"category" json:"category"`
	Reason      string    `db:"reason" json:"reason"`
	Level       string    `db:"level" json:"level"`
	MonitorID   string    `db:"monitor_id" json:"monitor_id"`
	OccurredAt  time.Time `db:"occurred_at" json:"occurred_at"`
}

// ArchiveHaltEventsBefore compresses every halt_events row older than
// cutoff into a single zstd blob and returns it alongside the count
// archived. The archived rows are deleted before this function returns, so
// the returned blob is the only remaining copy; storing it durably (e.g. to
// object storage) is left to the caller.
func (a *Archiver) ArchiveHaltEventsBefore(ctx context.Context, cutoff time.Time) ([]byte, int, error) {
	var rows []archivedHaltEvent
	if err := a.db.SelectContext(ctx, &rows, `
		SELECT id, trigger_code, category, reason, level, monitor_id, occurred_at
		FROM halt_events WHERE occurred_at < $1 ORDER BY occurred_at`, cutoff); err != nil {
		return nil, 0, fmt.Errorf("select halt events for archival: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal archived halt events: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, 0, fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return nil, 0, fmt.Errorf("compress archived halt events: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalize zstd stream: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, `DELETE FROM halt_events WHERE occurred_at < $1`, cutoff); err != nil {
		return nil, 0, fmt.Errorf("delete archived halt events: %w", err)
	}

	a.logger.Info("archived halt events",
		zap.Int("count", len(rows)),
		zap.Int("compressed_bytes", buf.Len()),
		zap.Time("cutoff", cutoff))

	return buf.Bytes(), len(rows), nil
}
