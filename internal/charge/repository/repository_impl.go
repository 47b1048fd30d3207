package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/charge/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var mutableColumns = []string{
	"discount", "discount_percentage", "discount_reason",
	"final_amount", "late_fee", "amount_paid", "outstanding_balance",
	"status", "due_date", "due_date_reason", "paid_in_full_at",
	"cancelled_at", "cancel_reason", "cancelled_by",
	"version", "updated_at",
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	return db.WithContext(ctx).Create(charge).Error
}

func (r *repo) InsertIgnoreConflict(ctx context.Context, db *gorm.DB, charges []*domain.Charge) (int64, error) {
	if len(charges) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "org_id"}, {Name: "concept_id"}, {Name: "student_id"}, {Name: "period"},
			},
			DoNothing: true,
		}).
		CreateInBatches(charges, 200)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, charge *domain.Charge) error {
	expected := charge.Version
	charge.Version = expected + 1

	result := db.WithContext(ctx).
		Model(&domain.Charge{}).
		Where("org_id = ? AND id = ? AND version = ?", charge.OrgID, charge.ID, expected).
		Select(mutableColumns).
		Updates(charge)
	if result.Error != nil {
		charge.Version = expected
		return result.Error
	}
	if result.RowsAffected == 0 {
		charge.Version = expected
		return domain.ErrConcurrentUpdate
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Charge, error) {
	var charge domain.Charge
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	stmt := db.WithContext(ctx).
		Model(&domain.Charge{}).
		Where("org_id = ?", orgID)
	if filter.StudentID != 0 {
		stmt = stmt.Where("student_id = ?", filter.StudentID)
	}
	if filter.ConceptID != 0 {
		stmt = stmt.Where("concept_id = ?", filter.ConceptID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Period != "" {
		stmt = stmt.Where("period = ?", filter.Period)
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
	if err := stmt.Order("created_at desc, id desc").Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) ListOpenByStudent(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	err := db.WithContext(ctx).
		Where("org_id = ? AND student_id = ? AND status IN ?", orgID, studentID, domain.OpenStatuses).
		Order("due_date asc, id asc").
		Find(&charges).Error
	if err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) ListByStudent(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, period string) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	stmt := db.WithContext(ctx).
		Where("org_id = ? AND student_id = ?", orgID, studentID)
	if period != "" {
		stmt = stmt.Where("period = ?", period)
	}
	if err := stmt.Order("due_date asc, id asc").Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}

func (r *repo) ListPastDue(ctx context.Context, db *gorm.DB, asOf time.Time, afterID snowflake.ID, limit int) ([]*domain.Charge, error) {
	var charges []*domain.Charge
	stmt := db.WithContext(ctx).
		Where("status IN ? AND due_date < ? AND id > ?", domain.OpenStatuses, asOf, afterID).
		Order("id asc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&charges).Error; err != nil {
		return nil, err
	}
	return charges, nil
}
