package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const contractModel = "Contract"

// CreateContract stores a new contract for an existing customer. The status
// always starts OPEN.
func (s *Service) CreateContract(ctx context.Context, actor models.Actor, contract *models.Contract) (*models.Contract, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if err := validatePeriod(contract.PeriodStartMonth, contract.PeriodStartYear, contract.PeriodEndMonth, contract.PeriodEndYear); err != nil {
		return nil, err
	}
	if contract.ContractDate != nil {
		d := dateOnly(*contract.ContractDate)
		contract.ContractDate = &d
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetCustomer(ctx, contract.CustomerID); err != nil {
			return err
		}
		contract.ID = uuid.New()
		contract.Status = models.ContractOpen
		contract.CreatedBy = actor.Username
		contract.UpdatedBy = actor.Username
		contract.IsArchived = false
		if err := tx.CreateContract(ctx, contract); err != nil {
			return err
		}
		return s.audit(ctx, tx, contractModel, contract.ID.String(), models.ActionCreate, actor)
	})
	if err != nil {
		return nil, wrap("failed to create contract", err)
	}

	s.producer.Produce(events.ContractCreated, contract.ID.String(), actor.Username, contract)
	return contract, nil
}

func (s *Service) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	contract, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, wrap("failed to get contract", err)
	}
	return contract, nil
}

func (s *Service) ListContracts(ctx context.Context, filter models.ContractFilter) ([]models.Contract, error) {
	contracts, err := s.repo.ListContracts(ctx, filter)
	if err != nil {
		return nil, wrap("failed to list contracts", err)
	}
	return contracts, nil
}

func (s *Service) UpdateContract(ctx context.Context, actor models.Actor, update *models.ContractUpdate) (*models.Contract, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid contract ID", e.ErrInvalidInput)
	}

	var updated *models.Contract
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		contract, err := tx.GetContract(ctx, update.ID)
		if err != nil {
			return err
		}
		setString(&contract.ContractNo, update.ContractNo)
		setString(&contract.ContractType, update.ContractType)
		setString(&contract.CardNote, update.CardNote)
		if update.ContractDate != nil {
			d := dateOnly(*update.ContractDate)
			contract.ContractDate = &d
		}
		setInt(&contract.PeriodStartMonth, update.PeriodStartMonth)
		setInt(&contract.PeriodStartYear, update.PeriodStartYear)
		setInt(&contract.PeriodEndMonth, update.PeriodEndMonth)
		setInt(&contract.PeriodEndYear, update.PeriodEndYear)
		if err := validatePeriod(contract.PeriodStartMonth, contract.PeriodStartYear, contract.PeriodEndMonth, contract.PeriodEndYear); err != nil {
			return err
		}

		contract.UpdatedBy = actor.Username
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}
		updated = contract
		return s.audit(ctx, tx, contractModel, contract.ID.String(), models.ActionUpdate, actor)
	})
	if err != nil {
		return nil, wrap("failed to update contract", err)
	}

	s.producer.Produce(events.ContractUpdated, updated.ID.String(), actor.Username, updated)
	return updated, nil
}

func (s *Service) ArchiveContract(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Contract, error) {
	if err := requireStaff(actor, "archive contracts"); err != nil {
		return nil, err
	}

	var archived *models.Contract
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		contract, err := tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		archived = contract
		if contract.IsArchived {
			return nil
		}
		contract.IsArchived = true
		contract.UpdatedBy = actor.Username
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}
		return s.audit(ctx, tx, contractModel, contract.ID.String(), models.ActionArchive, actor)
	})
	if err != nil {
		return nil, wrap("failed to archive contract", err)
	}

	s.producer.Produce(events.ContractArchived, archived.ID.String(), actor.Username, archived)
	return archived, nil
}

// SyncContractStatus recomputes the status of a contract on its own. Report
// mutations already do this inside their transactions; this entry point
// repairs rows touched outside the service.
func (s *Service) SyncContractStatus(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var (
		contract *models.Contract
		changed  bool
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		changed, err = s.syncContractStatus(ctx, tx, &id)
		if err != nil {
			return err
		}
		contract, err = tx.GetContract(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrap("failed to sync contract status", err)
	}
	if changed {
		s.publishStatusChange(contract, "")
	}
	return contract, nil
}

// syncContractStatus sets the contract DONE when at least one non-archived
// report references it and OPEN otherwise. It reports whether the stored
// status changed. A nil id is a no-op.
func (s *Service) syncContractStatus(ctx context.Context, tx *db.Repository, id *uuid.UUID) (bool, error) {
	if id == nil {
		return false, nil
	}
	contract, err := tx.GetContract(ctx, *id)
	if err != nil {
		return false, err
	}
	active, err := tx.CountActiveReportsForContract(ctx, *id)
	if err != nil {
		return false, err
	}

	status := models.ContractOpen
	if active > 0 {
		status = models.ContractDone
	}
	if contract.Status == status {
		return false, nil
	}
	if err := tx.SetContractStatus(ctx, *id, status); err != nil {
		return false, err
	}
	s.logger.Debug("contract status changed",
		zap.String("contract_id", id.String()),
		zap.String("from", string(contract.Status)),
		zap.String("to", string(status)),
	)
	return true, nil
}

// syncContracts runs syncContractStatus for each distinct non-nil id and
// returns the ids whose status flipped.
func (s *Service) syncContracts(ctx context.Context, tx *db.Repository, ids ...*uuid.UUID) ([]uuid.UUID, error) {
	var changed []uuid.UUID
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		flipped, err := s.syncContractStatus(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if flipped {
			changed = append(changed, *id)
		}
	}
	return changed, nil
}

// publishContractChanges emits contract_status_changed for committed flips.
func (s *Service) publishContractChanges(ctx context.Context, ids []uuid.UUID, actor string) {
	for _, id := range ids {
		contract, err := s.repo.GetContract(ctx, id)
		if err != nil {
			s.logger.Warn("failed to load contract for status event",
				zap.String("contract_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		s.publishStatusChange(contract, actor)
	}
}

func (s *Service) publishStatusChange(contract *models.Contract, actor string) {
	s.producer.Produce(events.ContractStatusChanged, contract.ID.String(), actor, contract)
}

func setInt(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
