package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const documentModel = "Document"

// CreateDocument numbers and stores a new document. A positive doc.Serial
// requests manual numbering, which only staff may use and only for years
// before the cutoff.
func (s *Service) CreateDocument(ctx context.Context, actor models.Actor, doc *models.Document) (*models.Document, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	manual := doc.Serial > 0
	if manual {
		if !actor.Privileged() {
			return nil, fmt.Errorf("%w: only staff may assign numbers manually", e.ErrManualOverrideForbidden)
		}
		if err := s.engine.CheckManualYear(doc.Year); err != nil {
			return nil, err
		}
	}
	if doc.Serial < 0 {
		return nil, fmt.Errorf("%w: serial must be positive", e.ErrInvalidInput)
	}
	if !doc.DocType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", e.ErrInvalidInput, doc.DocType)
	}
	if doc.Direction == "" {
		doc.Direction = models.DirectionIncoming
	}
	if err := validateRecordFields(doc.Direction, doc.DeliveryMethod, doc.Year, doc.ReceivedDate); err != nil {
		return nil, err
	}
	doc.ReceivedDate = dateOnly(doc.ReceivedDate)

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := s.checkYearUnlocked(ctx, tx, doc.Year); err != nil {
			return err
		}
		if !manual {
			if err := s.checkWorkingYear(ctx, tx, doc.ReceivedDate); err != nil {
				return err
			}
		}
		if err := checkLinks(ctx, tx, doc.CustomerID, doc.ContractID); err != nil {
			return err
		}
		// The counter row lock serializes the scope, so the chronology
		// check sees every committed record before a number is taken.
		if _, err := tx.LockDocumentCounter(ctx, doc.DocType, doc.Year); err != nil {
			return err
		}
		if err := s.checkDocumentChronology(ctx, tx, doc, manual); err != nil {
			return err
		}

		var (
			num numbering.DocumentNumber
			err error
		)
		if manual {
			num, err = s.engine.ReserveDocumentNumber(ctx, tx, doc.DocType, doc.Year, doc.Serial)
		} else {
			num, err = s.engine.AssignDocumentNumber(ctx, tx, doc.DocType, doc.Year)
		}
		if err != nil {
			return err
		}

		doc.ID = uuid.New()
		doc.Serial = num.Serial
		doc.DocNo = num.DocNo
		doc.ManuallyNumbered = manual
		doc.CreatedBy = actor.Username
		doc.UpdatedBy = actor.Username
		doc.IsArchived = false
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		return s.audit(ctx, tx, documentModel, doc.ID.String(), models.ActionCreate, actor)
	})
	if err != nil {
		return nil, wrap("failed to create document", err)
	}

	s.logger.Info("document numbered",
		zap.String("doc_no", doc.DocNo),
		zap.Bool("manual", manual),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.DocumentNumbered, doc.ID.String(), actor.Username, doc)
	return doc, nil
}

// GetDocument retrieves a document by ID, returning an error if not found.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, wrap("failed to get document", err)
	}
	return doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	docs, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, wrap("failed to list documents", err)
	}
	return docs, nil
}

// UpdateDocument changes the descriptive fields of a document. Numbering
// fields and the received date are immutable.
func (s *Service) UpdateDocument(ctx context.Context, actor models.Actor, update *models.DocumentUpdate) (*models.Document, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid document ID", e.ErrInvalidInput)
	}

	var updated *models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		doc, err := tx.GetDocument(ctx, update.ID)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, doc.Year); err != nil {
			return err
		}
		if err := rejectDocumentNumberingChange(doc, update); err != nil {
			return err
		}
		applyDocumentUpdate(doc, update)
		if err := validateRecordFields(doc.Direction, doc.DeliveryMethod, doc.Year, doc.ReceivedDate); err != nil {
			return err
		}
		if err := checkLinks(ctx, tx, doc.CustomerID, doc.ContractID); err != nil {
			return err
		}

		doc.UpdatedBy = actor.Username
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}
		updated = doc
		return s.audit(ctx, tx, documentModel, doc.ID.String(), models.ActionUpdate, actor)
	})
	if err != nil {
		return nil, wrap("failed to update document", err)
	}

	s.producer.Produce(events.DocumentUpdated, updated.ID.String(), actor.Username, updated)
	return updated, nil
}

// ArchiveDocument soft-deletes a document. Its number stays taken.
func (s *Service) ArchiveDocument(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Document, error) {
	if err := requireStaff(actor, "archive documents"); err != nil {
		return nil, err
	}

	var archived *models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		doc, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, doc.Year); err != nil {
			return err
		}
		archived = doc
		if doc.IsArchived {
			return nil
		}
		doc.IsArchived = true
		doc.UpdatedBy = actor.Username
		if err := tx.SaveDocument(ctx, doc); err != nil {
			return err
		}
		return s.audit(ctx, tx, documentModel, doc.ID.String(), models.ActionArchive, actor)
	})
	if err != nil {
		return nil, wrap("failed to archive document", err)
	}

	s.producer.Produce(events.DocumentArchived, archived.ID.String(), actor.Username, archived)
	return archived, nil
}

// DeleteDocument removes the most recent document of its scope and rewinds
// the scope counter so the serial is issued again.
func (s *Service) DeleteDocument(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := requireSuperuser(actor, "delete documents"); err != nil {
		return err
	}

	var deleted *models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		doc, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, doc.Year); err != nil {
			return err
		}

		if _, err := tx.LockDocumentCounter(ctx, doc.DocType, doc.Year); err != nil {
			return err
		}
		latest, err := tx.MaxActiveDocumentSerial(ctx, doc.DocType, doc.Year)
		if err != nil {
			return err
		}
		if doc.IsArchived || latest != doc.Serial {
			return fmt.Errorf("%w: %s is not the latest %s document of %d",
				e.ErrNotMostRecent, doc.DocNo, doc.DocType, doc.Year)
		}

		if err := tx.DeleteDocument(ctx, doc.ID); err != nil {
			return err
		}
		if err := s.engine.RewindDocumentCounter(ctx, tx, doc.DocType, doc.Year, doc.Serial); err != nil {
			return err
		}
		deleted = doc
		return s.audit(ctx, tx, documentModel, doc.ID.String(), models.ActionDelete, actor)
	})
	if err != nil {
		return wrap("failed to delete document", err)
	}

	s.logger.Info("document deleted",
		zap.String("doc_no", deleted.DocNo),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.DocumentDeleted, deleted.ID.String(), actor.Username, deleted)
	return nil
}

func rejectDocumentNumberingChange(doc *models.Document, u *models.DocumentUpdate) error {
	changed := (u.DocType != nil && *u.DocType != doc.DocType) ||
		(u.Year != nil && *u.Year != doc.Year) ||
		(u.Serial != nil && *u.Serial != doc.Serial) ||
		(u.DocNo != nil && *u.DocNo != doc.DocNo) ||
		(u.ReceivedDate != nil && !dateOnly(*u.ReceivedDate).Equal(dateOnly(doc.ReceivedDate)))
	if changed {
		return fmt.Errorf("%w: document number, type, year and received date cannot be changed", e.ErrInvalidInput)
	}
	return nil
}

func applyDocumentUpdate(doc *models.Document, u *models.DocumentUpdate) {
	if u.CustomerID != nil {
		doc.CustomerID = *u.CustomerID
	}
	if u.ContractID != nil {
		if *u.ContractID == uuid.Nil {
			doc.ContractID = nil
		} else {
			id := *u.ContractID
			doc.ContractID = &id
		}
	}
	if u.Direction != nil {
		doc.Direction = *u.Direction
	}
	setString(&doc.ReferenceNo, u.ReferenceNo)
	setString(&doc.Sender, u.Sender)
	setString(&doc.Recipient, u.Recipient)
	setString(&doc.Subject, u.Subject)
	setString(&doc.Description, u.Description)
	if u.DeliveryMethod != nil {
		doc.DeliveryMethod = *u.DeliveryMethod
	}
	setString(&doc.DeliveryKargoName, u.DeliveryKargoName)
	setString(&doc.DeliveryOtherDesc, u.DeliveryOtherDesc)
	setString(&doc.DeliveryEmail, u.DeliveryEmail)
	setString(&doc.CardNote, u.CardNote)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
