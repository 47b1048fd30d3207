package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	StudentID snowflake.ID
	ConceptID snowflake.ID
	Status    Status
	Period    string
	Cursor    *pagination.Cursor
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, charge *Charge) error
	// InsertIgnoreConflict skips charges that already exist for the same
	// concept, student and period, and returns how many rows were written.
	InsertIgnoreConflict(ctx context.Context, db *gorm.DB, charges []*Charge) (int64, error)
	// Update writes charge if its version still matches and bumps the
	// version. A stale version returns ErrConcurrentUpdate.
	Update(ctx context.Context, db *gorm.DB, charge *Charge) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Charge, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]*Charge, error)
	ListOpenByStudent(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID) ([]*Charge, error)
	// ListByStudent returns every charge of the student; an empty period
	// means all periods.
	ListByStudent(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, period string) ([]*Charge, error)
	// ListPastDue returns open charges of every school due before asOf,
	// ordered by id and starting after afterID.
	ListPastDue(ctx context.Context, db *gorm.DB, asOf time.Time, afterID snowflake.ID, limit int) ([]*Charge, error)
}
