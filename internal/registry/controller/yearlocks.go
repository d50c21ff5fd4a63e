package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"go.uber.org/zap"
)

const yearLockModel = "YearLock"

func (s *Service) ListYearLocks(ctx context.Context) ([]models.YearLock, error) {
	locks, err := s.repo.ListYearLocks(ctx)
	if err != nil {
		return nil, wrap("failed to list year locks", err)
	}
	return locks, nil
}

// SetYearLock locks or unlocks a year. Locking records the actor and the
// time; unlocking clears both.
func (s *Service) SetYearLock(ctx context.Context, actor models.Actor, year int, locked bool) (*models.YearLock, error) {
	if err := requireSuperuser(actor, "lock or unlock years"); err != nil {
		return nil, err
	}
	if year <= 0 {
		return nil, fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
	}

	lock := &models.YearLock{Year: year, IsLocked: locked}
	action := models.ActionUnlock
	if locked {
		now := s.now()
		by := actor.Username
		lock.LockedAt = &now
		lock.LockedBy = &by
		action = models.ActionLock
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := tx.SaveYearLock(ctx, lock); err != nil {
			return err
		}
		return s.audit(ctx, tx, yearLockModel, strconv.Itoa(year), action, actor)
	})
	if err != nil {
		return nil, wrap("failed to set year lock", err)
	}

	s.logger.Info("year lock changed",
		zap.Int("year", year),
		zap.Bool("locked", locked),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.YearLockChanged, strconv.Itoa(year), actor.Username, lock)
	return lock, nil
}
