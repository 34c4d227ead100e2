package audit

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MutableRepository upserts the control plane's live, overwritable state —
// the complement of the append-only repositories. Rows are created,
// overwritten in place, or deleted (via gorm Create/Save/Delete, and
// FirstOrCreate for resume requests) so the audit database reflects the
// RiskTracker's current ledger, not its history.
type MutableRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMutableRepository(db *gorm.DB, logger *zap.Logger) *MutableRepository {
	return &MutableRepository{db: db, logger: logger}
}

func (r *MutableRepository) UpsertPositionRisk(ctx context.Context, rec PositionRiskRecord) error {
	var existing PositionRiskRecord
	result := r.db.WithContext(ctx).First(&existing, "position_id = ?", rec.PositionID)
	rec.UpdatedAt = time.Now()

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&rec).Error
	}
	if result.Error != nil {
		r.logger.Error("lookup position risk failed", zap.Error(result.Error), zap.String("position_id", rec.PositionID))
		return result.Error
	}
	rec.ID = existing.ID
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *MutableRepository) DeletePositionRisk(ctx context.Context, positionID string) error {
	return r.db.WithContext(ctx).Delete(&PositionRiskRecord{}, "position_id = ?", positionID).Error
}

func (r *MutableRepository) UpsertDailyRisk(ctx context.Context, rec DailyRiskRecord) error {
	var existing DailyRiskRecord
	result := r.db.WithContext(ctx).First(&existing, "trading_date = ?", rec.TradingDate)
	rec.UpdatedAt = time.Now()

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&rec).Error
	}
	if result.Error != nil {
		return result.Error
	}
	rec.ID = existing.ID
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *MutableRepository) UpsertDrawdownPeak(ctx context.Context, peakEquity float64, observedAt time.Time) error {
	var existing DrawdownPeakRecord
	result := r.db.WithContext(ctx).First(&existing)
	rec := DrawdownPeakRecord{PeakEquity: peakEquity, ObservedAt: observedAt, UpdatedAt: time.Now()}

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&rec).Error
	}
	if result.Error != nil {
		return result.Error
	}
	rec.ID = existing.ID
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *MutableRepository) UpsertResumeRequest(ctx context.Context, rec ResumeRequestRecord) error {
	return r.db.WithContext(ctx).
		Where(ResumeRequestRecord{Operator: rec.Operator, RequestedAt: rec.RequestedAt}).
		Assign(rec).
		FirstOrCreate(&rec).Error
}
