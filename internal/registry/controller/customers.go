package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
)

const customerModel = "Customer"

func (s *Service) CreateCustomer(ctx context.Context, actor models.Actor, customer *models.Customer) (*models.Customer, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, fmt.Errorf("%w: customer name is required", e.ErrInvalidInput)
	}
	if err := normalizeIdentity(customer); err != nil {
		return nil, err
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		customer.ID = uuid.New()
		customer.CreatedBy = actor.Username
		customer.UpdatedBy = actor.Username
		customer.IsArchived = false
		if err := tx.CreateCustomer(ctx, customer); err != nil {
			return err
		}
		return s.audit(ctx, tx, customerModel, customer.ID.String(), models.ActionCreate, actor)
	})
	if err != nil {
		return nil, wrap("failed to create customer", err)
	}

	s.producer.Produce(events.CustomerCreated, customer.ID.String(), actor.Username, customer)
	return customer, nil
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, wrap("failed to get customer", err)
	}
	return customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx, filter)
	if err != nil {
		return nil, wrap("failed to list customers", err)
	}
	return customers, nil
}

// UpdateCustomer applies a partial update. Switching the identity type
// requires the matching identifier in the same request.
func (s *Service) UpdateCustomer(ctx context.Context, actor models.Actor, update *models.CustomerUpdate) (*models.Customer, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid customer ID", e.ErrInvalidInput)
	}

	var updated *models.Customer
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		customer, err := tx.GetCustomer(ctx, update.ID)
		if err != nil {
			return err
		}
		if update.Name != nil {
			customer.Name = strings.TrimSpace(*update.Name)
			if customer.Name == "" {
				return fmt.Errorf("%w: customer name is required", e.ErrInvalidInput)
			}
		}
		if update.IdentityType != nil {
			customer.IdentityType = *update.IdentityType
		}
		if update.TaxNo != nil {
			customer.TaxNo = update.TaxNo
		}
		if update.NationalID != nil {
			customer.NationalID = update.NationalID
		}
		if err := normalizeIdentity(customer); err != nil {
			return err
		}
		setString(&customer.TaxOffice, update.TaxOffice)
		setString(&customer.Address, update.Address)
		setString(&customer.Phone, update.Phone)
		setString(&customer.Email, update.Email)
		setString(&customer.ContactPerson, update.ContactPerson)
		setString(&customer.ContactEmail, update.ContactEmail)
		setString(&customer.ContactPhone, update.ContactPhone)
		setString(&customer.CardNote, update.CardNote)

		customer.UpdatedBy = actor.Username
		if err := tx.SaveCustomer(ctx, customer); err != nil {
			return err
		}
		updated = customer
		return s.audit(ctx, tx, customerModel, customer.ID.String(), models.ActionUpdate, actor)
	})
	if err != nil {
		return nil, wrap("failed to update customer", err)
	}

	s.producer.Produce(events.CustomerUpdated, updated.ID.String(), actor.Username, updated)
	return updated, nil
}

func (s *Service) ArchiveCustomer(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Customer, error) {
	if err := requireStaff(actor, "archive customers"); err != nil {
		return nil, err
	}

	var archived *models.Customer
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		customer, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return err
		}
		archived = customer
		if customer.IsArchived {
			return nil
		}
		customer.IsArchived = true
		customer.UpdatedBy = actor.Username
		if err := tx.SaveCustomer(ctx, customer); err != nil {
			return err
		}
		return s.audit(ctx, tx, customerModel, customer.ID.String(), models.ActionArchive, actor)
	})
	if err != nil {
		return nil, wrap("failed to archive customer", err)
	}

	s.producer.Produce(events.CustomerArchived, archived.ID.String(), actor.Username, archived)
	return archived, nil
}

// normalizeIdentity keeps exactly one identifier, the one matching the
// identity type: a 10 digit VKN or an 11 digit TCKN. The other is cleared.
func normalizeIdentity(c *models.Customer) error {
	switch c.IdentityType {
	case models.IdentityVKN:
		no, err := digits(c.TaxNo, 10, "tax number")
		if err != nil {
			return err
		}
		c.TaxNo, c.NationalID = &no, nil
	case models.IdentityTCKN:
		no, err := digits(c.NationalID, 11, "national ID")
		if err != nil {
			return err
		}
		c.NationalID, c.TaxNo = &no, nil
	default:
		return fmt.Errorf("%w: identity type must be %s or %s", e.ErrInvalidInput, models.IdentityVKN, models.IdentityTCKN)
	}
	return nil
}

func digits(v *string, n int, what string) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: %s is required", e.ErrInvalidInput, what)
	}
	s := strings.TrimSpace(*v)
	if len(s) != n {
		return "", fmt.Errorf("%w: %s must be %d digits", e.ErrInvalidInput, what, n)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %s must be %d digits", e.ErrInvalidInput, what, n)
		}
	}
	return s, nil
}
