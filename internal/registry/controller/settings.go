package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"go.uber.org/zap"
)

const settingsModel = "AppSetting"

// SettingsUpdate changes the working year. ReferenceYear follows
// WorkingYear when it is not given.
type SettingsUpdate struct {
	WorkingYear   *int
	ReferenceYear *int
}

func (s *Service) defaultSettings() models.AppSetting {
	year := s.opts.DefaultWorkingYear
	if year <= 0 {
		year = s.now().Year()
	}
	return models.AppSetting{
		ID:            models.SettingsID,
		WorkingYear:   year,
		ReferenceYear: year,
		UpdatedAt:     s.now(),
	}
}

// GetSettings returns the settings row, creating it with defaults on first use.
func (s *Service) GetSettings(ctx context.Context) (*models.AppSetting, error) {
	var settings *models.AppSetting
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		settings, err = tx.EnsureSettings(ctx, s.defaultSettings())
		return err
	})
	if err != nil {
		return nil, wrap("failed to get settings", err)
	}
	return settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, actor models.Actor, update SettingsUpdate) (*models.AppSetting, error) {
	if err := requireStaff(actor, "change settings"); err != nil {
		return nil, err
	}
	for _, y := range []*int{update.WorkingYear, update.ReferenceYear} {
		if y != nil && *y <= 0 {
			return nil, fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
		}
	}

	var settings *models.AppSetting
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		current, err := tx.EnsureSettings(ctx, s.defaultSettings())
		if err != nil {
			return err
		}
		if update.WorkingYear != nil {
			current.WorkingYear = *update.WorkingYear
			if update.ReferenceYear == nil {
				current.ReferenceYear = *update.WorkingYear
			}
		}
		if update.ReferenceYear != nil {
			current.ReferenceYear = *update.ReferenceYear
		}
		current.UpdatedBy = actor.Username
		current.UpdatedAt = s.now()
		if err := tx.SaveSettings(ctx, current); err != nil {
			return err
		}
		settings = current
		return s.audit(ctx, tx, settingsModel, fmt.Sprint(models.SettingsID), models.ActionUpdate, actor)
	})
	if err != nil {
		return nil, wrap("failed to update settings", err)
	}

	s.logger.Info("settings updated",
		zap.Int("working_year", settings.WorkingYear),
		zap.Int("reference_year", settings.ReferenceYear),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.SettingsUpdated, fmt.Sprint(models.SettingsID), actor.Username, settings)
	return settings, nil
}
