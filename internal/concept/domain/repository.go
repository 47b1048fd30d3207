package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Active   *bool
	Category Category
	Cursor   *pagination.Cursor
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, concept *PaymentConcept) error
	Update(ctx context.Context, db *gorm.DB, concept *PaymentConcept) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*PaymentConcept, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*PaymentConcept, error)
	ListActiveMonthly(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*PaymentConcept, error)
	ListOrgsWithActiveMonthly(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}
