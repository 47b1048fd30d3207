package domain

import "context"

type GetStatementRequest struct {
	StudentID string
	Period    string
}

type Service interface {
	// Get recomputes the statement from the stored charges and payments,
	// stores the snapshot and returns it.
	Get(ctx context.Context, req GetStatementRequest) (AccountStatement, error)
}
