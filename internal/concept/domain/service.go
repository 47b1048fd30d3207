package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type CreateConceptRequest struct {
	Name        string
	Description string
	BaseAmount  decimal.Decimal
	Category    Category
	Periodicity *Periodicity
	Policy      Policy
}

type UpdateConceptRequest struct {
	ID          string
	Name        *string
	Description *string
	BaseAmount  *decimal.Decimal
	Policy      *Policy
}

type ListConceptRequest struct {
	pagination.Pagination
	Active   *bool
	Category string
}

type ListConceptResponse struct {
	pagination.PageInfo
	Concepts []PaymentConcept `json:"concepts"`
}

type Service interface {
	Create(ctx context.Context, req CreateConceptRequest) (PaymentConcept, error)
	Get(ctx context.Context, id string) (PaymentConcept, error)
	List(ctx context.Context, req ListConceptRequest) (ListConceptResponse, error)
	Update(ctx context.Context, req UpdateConceptRequest) (PaymentConcept, error)
	Deactivate(ctx context.Context, id string) (PaymentConcept, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("concept_not_found")
	ErrInvalidPercentage   = errors.New("invalid_percentage")
	ErrDiscountNotAllowed  = errors.New("discount_not_allowed")
	ErrDiscountExceedsMax  = errors.New("discount_exceeds_max")
	ErrInvalidCategory     = errors.New("invalid_category")
	ErrDuplicateCode       = errors.New("duplicate_concept_code")
	ErrConceptInactive     = errors.New("concept_inactive")
)
