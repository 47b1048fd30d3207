package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	StudentID snowflake.ID
	ChargeID  snowflake.ID
	Cursor    *pagination.Cursor
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	// Update writes payment only if it is still in state prev.
	Update(ctx context.Context, db *gorm.DB, payment *Payment, prev State) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*Payment, error)
	ListByCharges(ctx context.Context, db *gorm.DB, orgID snowflake.ID, chargeIDs []snowflake.ID) ([]*Payment, error)
}
