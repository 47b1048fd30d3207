package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes statement, replacing the aggregates of an existing
	// snapshot for the same student and period.
	Upsert(ctx context.Context, db *gorm.DB, statement *AccountStatement) error
	FindByKey(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, period string) (*AccountStatement, error)
}
