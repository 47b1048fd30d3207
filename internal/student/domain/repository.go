package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListStudentFilter struct {
	Name   string
	Email  string
	Active *bool
	Cursor *pagination.Cursor
	Limit  int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, student *Student) error
	Update(ctx context.Context, db *gorm.DB, student *Student) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Student, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListStudentFilter) ([]*Student, error)
	// ListBillable returns active students enrolled on or before periodEnd.
	ListBillable(ctx context.Context, db *gorm.DB, orgID snowflake.ID, periodEnd time.Time) ([]*Student, error)
}
