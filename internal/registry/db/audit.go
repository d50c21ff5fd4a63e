package db

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/models"
)

func (r *Repository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (r *Repository) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.Model != "" {
		q = q.Where("model = ?", filter.Model)
	}
	if filter.ObjectID != "" {
		q = q.Where("object_id = ?", filter.ObjectID)
	}

	var entries []models.AuditLog
	if err := paginate(q.Order("timestamp DESC, id DESC"), filter.Limit, 0).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
