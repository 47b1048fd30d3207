package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type ListStudentRequest struct {
	pagination.Pagination
	Name   string
	Email  string
	Active *bool
}

type ListStudentResponse struct {
	pagination.PageInfo
	Students []Student `json:"students"`
}

type CreateStudentRequest struct {
	Name       string
	Email      string
	EnrolledAt *time.Time
}

type Service interface {
	Create(context.Context, CreateStudentRequest) (Student, error)
	List(context.Context, ListStudentRequest) (ListStudentResponse, error)
	GetByID(context.Context, string) (Student, error)
	Deactivate(context.Context, string) (Student, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("student_not_found")
	ErrStudentInactive     = errors.New("student_inactive")
)
