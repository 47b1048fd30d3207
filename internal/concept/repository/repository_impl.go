package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/concept/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, concept *domain.PaymentConcept) error {
	return db.WithContext(ctx).Create(concept).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, concept *domain.PaymentConcept) error {
	return db.WithContext(ctx).
		Model(&domain.PaymentConcept{}).
		Where("org_id = ? AND id = ?", concept.OrgID, concept.ID).
		Select("name", "description", "base_amount", "active", "updated_at",
			"discount_enabled", "max_discount_percentage",
			"late_fee_enabled", "late_fee_percentage", "grace_days").
		Updates(concept).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.PaymentConcept, error) {
	var concept domain.PaymentConcept
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&concept).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &concept, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.PaymentConcept, error) {
	var concepts []*domain.PaymentConcept
	stmt := db.WithContext(ctx).
		Model(&domain.PaymentConcept{}).
		Where("org_id = ?", orgID)
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
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
	if err := stmt.Order("created_at desc, id desc").Find(&concepts).Error; err != nil {
		return nil, err
	}
	return concepts, nil
}

func (r *repo) ListActiveMonthly(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*domain.PaymentConcept, error) {
	var concepts []*domain.PaymentConcept
	err := db.WithContext(ctx).
		Where("org_id = ? AND active = ? AND category = ? AND periodicity = ?",
			orgID, true, domain.CategoryRecurring, domain.PeriodicityMonthly).
		Order("id asc").
		Find(&concepts).Error
	if err != nil {
		return nil, err
	}
	return concepts, nil
}

func (r *repo) ListOrgsWithActiveMonthly(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var orgIDs []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.PaymentConcept{}).
		Where("active = ? AND category = ? AND periodicity = ?",
			true, domain.CategoryRecurring, domain.PeriodicityMonthly).
		Distinct("org_id").
		Order("org_id asc").
		Pluck("org_id", &orgIDs).Error
	if err != nil {
		return nil, err
	}
	return orgIDs, nil
}
