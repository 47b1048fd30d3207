package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateChargeRequest struct {
	ConceptID   string
	StudentID   string
	Period      string
	DueDate     *time.Time
	Description string
}

type ListChargeRequest struct {
	pagination.Pagination
	StudentID string
	ConceptID string
	Status    string
	Period    string
}

type ListChargeResponse struct {
	pagination.PageInfo
	Charges []Charge `json:"charges"`
}

type ApplyDiscountRequest struct {
	ID         string
	Percentage decimal.Decimal
	Reason     string
}

type CancelChargeRequest struct {
	ID     string
	Reason string
}

type ExtendDueDateRequest struct {
	ID      string
	DueDate time.Time
	Reason  string
}

type GenerateMonthlyRequest struct {
	Period string
}

type GenerateMonthlyResult struct {
	Period   string    `json:"period"`
	DueDate  time.Time `json:"due_date"`
	Inserted int64     `json:"inserted"`
	Skipped  int64     `json:"skipped"`
}

type RefreshResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

// MutateFunc changes charge inside tx. It runs once per attempt, so it must
// not keep state between calls.
type MutateFunc func(tx *gorm.DB, charge *Charge) error

type Service interface {
	Create(ctx context.Context, req CreateChargeRequest) (Charge, error)
	Get(ctx context.Context, id string) (Charge, error)
	List(ctx context.Context, req ListChargeRequest) (ListChargeResponse, error)
	// ListPending returns the student's open charges as of now, oldest due first.
	ListPending(ctx context.Context, studentID string) ([]Charge, error)
	ApplyDiscount(ctx context.Context, req ApplyDiscountRequest) (Charge, error)
	Cancel(ctx context.Context, req CancelChargeRequest) (Charge, error)
	Reactivate(ctx context.Context, id string) (Charge, error)
	ExtendDueDate(ctx context.Context, req ExtendDueDateRequest) (Charge, error)
	GenerateMonthly(ctx context.Context, req GenerateMonthlyRequest) (GenerateMonthlyResult, error)
	// RefreshOverdue persists late fees and statuses for past-due charges
	// of every school, reading batchSize charges at a time.
	RefreshOverdue(ctx context.Context, batchSize int) (RefreshResult, error)
	// Mutate loads the charge in the context's school, applies fn and
	// stores the result in one transaction, retrying on version conflicts.
	Mutate(ctx context.Context, chargeID snowflake.ID, action string, fn MutateFunc) (Charge, error)
}
