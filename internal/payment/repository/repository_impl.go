package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var mutableColumns = []string{
	"cancelled", "cancel_reason", "cancelled_by", "cancelled_at",
	"invoiced", "invoice_id", "invoice_refs", "invoiced_at",
	"updated_at",
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *domain.Payment, prev domain.State) error {
	stmt := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ? AND id = ?", payment.OrgID, payment.ID)
	switch prev {
	case domain.StateActive:
		stmt = stmt.Where("cancelled = ? AND invoiced = ?", false, false)
	case domain.StateInvoiced:
		stmt = stmt.Where("cancelled = ? AND invoiced = ?", false, true)
	case domain.StateCancelled:
		stmt = stmt.Where("cancelled = ?", true)
	}

	result := stmt.Select(mutableColumns).Updates(payment)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("org_id = ?", orgID)
	if filter.StudentID != 0 {
		stmt = stmt.Where("student_id = ?", filter.StudentID)
	}
	if filter.ChargeID != 0 {
		stmt = stmt.Where("charge_id = ?", filter.ChargeID)
	}
	if filter.Cursor != nil {
		createdAt, id, err := filter.Cursor.Key()
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListByCharges(ctx context.Context, db *gorm.DB, orgID snowflake.ID, chargeIDs []snowflake.ID) ([]*domain.Payment, error) {
	if len(chargeIDs) == 0 {
		return nil, nil
	}
	var payments []*domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND charge_id IN ?", orgID, chargeIDs).
		Order("paid_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}
