package database

import (
	"fmt"

	"gorm.io/gorm"
)

// TransmissionRepository provides database operations for transmit logs
type TransmissionRepository struct {
	db *gorm.DB
}

// NewTransmissionRepository creates a new repository instance
func NewTransmissionRepository(db *gorm.DB) *TransmissionRepository {
	return &TransmissionRepository{db: db}
}

// RecordBatch stores transmissions in one transaction per batch. Invalid
// records are skipped.
func (r *TransmissionRepository) RecordBatch(records []Transmission) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 500

	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}

		valid := make([]Transmission, 0, end-i)
		for _, t := range records[i:end] {
			if t.IsValid() {
				valid = append(valid, t)
			}
		}

		if len(valid) == 0 {
			continue
		}

		err := r.db.Transaction(func(tx *gorm.DB) error {
			return tx.Create(&valid).Error
		})
		if err != nil {
			return fmt.Errorf("batch insert failed at batch starting at index %d: %w", i, err)
		}
	}

	return nil
}

// CountByRun returns the number of transmissions logged for a run
func (r *TransmissionRepository) CountByRun(runID string) (int64, error) {
	var count int64
	err := r.db.Model(&Transmission{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}

// Recent returns the latest transmissions of a run, newest first
func (r *TransmissionRepository) Recent(runID string, limit int) ([]Transmission, error) {
	var records []Transmission
	err := r.db.Where("run_id = ?", runID).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// LatestRun returns the run ID of the newest transmission
func (r *TransmissionRepository) LatestRun() (string, error) {
	var t Transmission
	if err := r.db.Order("id DESC").First(&t).Error; err != nil {
		return "", err
	}
	return t.RunID, nil
}
