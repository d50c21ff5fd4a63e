package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsYearLocked reports whether a lock row exists for the year with IsLocked set.
func (r *Repository) IsYearLocked(ctx context.Context, year int) (bool, error) {
	lock, err := r.GetYearLock(ctx, year)
	if err != nil {
		return false, err
	}
	return lock != nil && lock.IsLocked, nil
}

// GetYearLock returns the lock row of the year, or nil when none was ever written.
func (r *Repository) GetYearLock(ctx context.Context, year int) (*models.YearLock, error) {
	var lock models.YearLock
	err := r.db.WithContext(ctx).Where("year = ?", year).First(&lock).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read year lock %d: %w", year, err)
	}
	return &lock, nil
}

// SaveYearLock inserts or overwrites the lock row of lock.Year.
func (r *Repository) SaveYearLock(ctx context.Context, lock *models.YearLock) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_locked", "locked_at", "locked_by"}),
	}).Create(lock).Error
	if err != nil {
		return fmt.Errorf("failed to save year lock %d: %w", lock.Year, err)
	}
	return nil
}

func (r *Repository) ListYearLocks(ctx context.Context) ([]models.YearLock, error) {
	var locks []models.YearLock
	if err := r.db.WithContext(ctx).Order("year DESC").Find(&locks).Error; err != nil {
		return nil, fmt.Errorf("failed to list year locks: %w", err)
	}
	return locks, nil
}

// EnsureSettings returns the settings row, creating it from defaults when missing.
func (r *Repository) EnsureSettings(ctx context.Context, defaults models.AppSetting) (*models.AppSetting, error) {
	defaults.ID = models.SettingsID
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&defaults).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure settings: %w", err)
	}
	var settings models.AppSetting
	if err := r.db.WithContext(ctx).First(&settings, "id = ?", models.SettingsID).Error; err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return &settings, nil
}

func (r *Repository) SaveSettings(ctx context.Context, settings *models.AppSetting) error {
	settings.ID = models.SettingsID
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
