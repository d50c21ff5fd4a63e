package db

import (
	"context"
	"fmt"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
)

func (r *Repository) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return duplicate(err, "customer identity number already registered")
	}
	return nil
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "customer")
	}
	return &customer, nil
}

func (r *Repository) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	result := r.db.WithContext(ctx).Model(customer).Select("*").Omit("id", "created_at", "created_by").Updates(customer)
	if result.Error != nil {
		return duplicate(result.Error, "customer identity number already registered")
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error) {
	q := r.db.WithContext(ctx).Model(&models.Customer{})
	if !filter.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("name LIKE ? OR tax_no LIKE ? OR national_id LIKE ?", like, like, like)
	}

	var customers []models.Customer
	if err := paginate(q.Order("name"), filter.Limit, filter.Offset).Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}
