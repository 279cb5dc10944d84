package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ReportRepository stores BER analysis results
type ReportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new repository instance
func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save stores a report
func (r *ReportRepository) Save(report *BERReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	report.SanitizeFields()
	if report.Mode == "" {
		return fmt.Errorf("report has no coding mode")
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	return r.db.Create(report).Error
}

// Latest returns the newest report for a mode, or for any mode when mode is
// empty. It returns nil without error when there is none.
func (r *ReportRepository) Latest(mode string) (*BERReport, error) {
	var report BERReport
	query := r.db.Order("created_at DESC").Order("id DESC")
	if mode != "" {
		query = query.Where("mode = ?", mode)
	}

	err := query.First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}
