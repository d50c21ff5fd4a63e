package db

import (
	"context"
	"fmt"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
)

func (r *Repository) CreateContract(ctx context.Context, contract *models.Contract) error {
	if err := r.db.WithContext(ctx).Create(contract).Error; err != nil {
		return duplicate(err, "contract")
	}
	return nil
}

func (r *Repository) GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).First(&contract, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "contract")
	}
	return &contract, nil
}

func (r *Repository) SaveContract(ctx context.Context, contract *models.Contract) error {
	result := r.db.WithContext(ctx).Model(contract).Select("*").Omit("id", "created_at", "created_by").Updates(contract)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// SetContractStatus updates only the status column.
func (r *Repository) SetContractStatus(ctx context.Context, id uuid.UUID, status models.ContractStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Contract{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) ListContracts(ctx context.Context, filter models.ContractFilter) ([]models.Contract, error) {
	q := r.db.WithContext(ctx).Model(&models.Contract{})
	if !filter.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var contracts []models.Contract
	if err := paginate(q.Order("created_at DESC"), filter.Limit, filter.Offset).Find(&contracts).Error; err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}
