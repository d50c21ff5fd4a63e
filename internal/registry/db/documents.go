package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return duplicate(err, fmt.Sprintf("document number %s already exists", doc.DocNo))
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "document")
	}
	return &doc, nil
}

// SaveDocument writes every column of an existing document.
func (r *Repository) SaveDocument(ctx context.Context, doc *models.Document) error {
	result := r.db.WithContext(ctx).Model(doc).Select("*").Omit("id", "created_at", "created_by").Updates(doc)
	if result.Error != nil {
		return duplicate(result.Error, "document")
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

// DeleteDocument removes the row for good. Archiving is SaveDocument with IsArchived set.
func (r *Repository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	q := r.db.WithContext(ctx).Model(&models.Document{})
	if !filter.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ContractID != nil {
		q = q.Where("contract_id = ?", *filter.ContractID)
	}
	if filter.DocType != "" {
		q = q.Where("doc_type = ?", string(filter.DocType))
	}
	if filter.Year > 0 {
		q = q.Where("year = ?", filter.Year)
	}

	var docs []models.Document
	err := paginate(q.Order("year DESC, doc_type, serial DESC"), filter.Limit, filter.Offset).Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// DocumentSerials returns every serial present in the scope in ascending order.
func (r *Repository) DocumentSerials(ctx context.Context, docType models.DocType, year int, activeOnly bool) ([]int, error) {
	q := r.db.WithContext(ctx).Model(&models.Document{}).Where("doc_type = ? AND year = ?", string(docType), year)
	if activeOnly {
		q = q.Where("is_archived = ?", false)
	}
	var serials []int
	if err := q.Order("serial").Pluck("serial", &serials).Error; err != nil {
		return nil, fmt.Errorf("failed to read document serials: %w", err)
	}
	return serials, nil
}

// FindDocumentDatedAfter returns an active document of the scope whose
// received date is after date and whose serial is below belowSerial.
// A belowSerial of zero or less means no serial bound. Nil when none exists.
func (r *Repository) FindDocumentDatedAfter(ctx context.Context, docType models.DocType, year int, date time.Time, belowSerial int) (*models.Document, error) {
	q := r.db.WithContext(ctx).
		Where("doc_type = ? AND year = ? AND is_archived = ?", string(docType), year, false).
		Where("received_date > ?", date)
	if belowSerial > 0 {
		q = q.Where("serial < ?", belowSerial)
	}
	return firstDocument(q.Order("received_date DESC, serial DESC"))
}

// FindDocumentDatedBefore returns an active document of the scope whose
// received date is before date and whose serial is above aboveSerial.
func (r *Repository) FindDocumentDatedBefore(ctx context.Context, docType models.DocType, year int, date time.Time, aboveSerial int) (*models.Document, error) {
	q := r.db.WithContext(ctx).
		Where("doc_type = ? AND year = ? AND is_archived = ?", string(docType), year, false).
		Where("received_date < ? AND serial > ?", date, aboveSerial)
	return firstDocument(q.Order("received_date, serial"))
}

func firstDocument(q *gorm.DB) (*models.Document, error) {
	var doc models.Document
	if err := q.First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

// DocumentScopes returns the distinct (doc_type, year) pairs holding documents.
func (r *Repository) DocumentScopes(ctx context.Context, year int) ([]DocumentScope, error) {
	q := r.db.WithContext(ctx).Model(&models.Document{}).Distinct("doc_type", "year")
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	var scopes []DocumentScope
	if err := q.Order("year, doc_type").Scan(&scopes).Error; err != nil {
		return nil, fmt.Errorf("failed to read document scopes: %w", err)
	}
	return scopes, nil
}

// DocumentScope is one (doc_type, year) numbering sequence.
type DocumentScope struct {
	DocType models.DocType
	Year    int
}

// DocumentNumberRow is the numbering projection of a document.
type DocumentNumberRow struct {
	DocType models.DocType
	Year    int
	Serial  int
	DocNo   string
}

// DocumentNumbers returns the numbering columns of every document of the
// year, archived ones included. A zero year returns all years.
func (r *Repository) DocumentNumbers(ctx context.Context, year int) ([]DocumentNumberRow, error) {
	q := r.db.WithContext(ctx).Model(&models.Document{}).Select("doc_type", "year", "serial", "doc_no")
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	var rows []DocumentNumberRow
	if err := q.Order("year, doc_type, serial").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read document numbers: %w", err)
	}
	return rows, nil
}
