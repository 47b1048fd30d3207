package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/statement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var aggregateColumns = []string{
	"total_charged", "total_discounted", "total_late_fees", "total_paid",
	"outstanding_balance", "credit_balance",
	"charge_count", "pending_count", "partial_count", "paid_count",
	"overdue_count", "cancelled_count", "payment_count",
	"oldest_due_date", "latest_charge_date", "last_payment_date",
	"is_current", "has_overdue", "needs_attention",
	"generated_at", "updated_at",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, statement *domain.AccountStatement) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "student_id"}, {Name: "period"}},
			DoUpdates: clause.AssignmentColumns(aggregateColumns),
		}).
		Create(statement).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, period string) (*domain.AccountStatement, error) {
	var statement domain.AccountStatement
	err := db.WithContext(ctx).
		Where("org_id = ? AND student_id = ? AND period = ?", orgID, studentID, period).
		First(&statement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &statement, nil
}
