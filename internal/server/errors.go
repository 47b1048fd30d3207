package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/bursar/internal/audit/domain"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	statementdomain "github.com/smallbiznis/bursar/internal/statement/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
	"github.com/smallbiznis/bursar/pkg/validation"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindError turns a binding failure into per-field errors when the request
// body parsed but failed its binding rules.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := toSnakeCase(fe.Field())
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: field + " failed " + fe.Tag(),
		})
	}
	return out
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var violations validation.Violations
	if errors.As(err, &violations) {
		out := make([]ValidationError, 0, len(violations))
		for _, v := range violations {
			out = append(out, ValidationError{Field: v.Field, Code: v.Code, Message: v.Message})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  out,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var reconErr *statementdomain.ReconciliationError
	if errors.As(err, &reconErr) {
		return http.StatusInternalServerError, errorPayload{
			Type:    "reconciliation_error",
			Message: reconErr.Error(),
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the (type, code) pair logged for a failed request.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if status != http.StatusInternalServerError {
		code = rootCode(err)
	}
	return payload.Type, code
}

func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isConceptValidationError(err),
		isStudentValidationError(err),
		isChargeValidationError(err),
		isPaymentValidationError(err),
		isStatementValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, chargedomain.ErrInvalidStateTransition),
		errors.Is(err, chargedomain.ErrConcurrentUpdate),
		errors.Is(err, chargedomain.ErrChargeBusy),
		errors.Is(err, chargedomain.ErrDuplicateCharge),
		errors.Is(err, paymentdomain.ErrInvalidStateTransition),
		errors.Is(err, paymentdomain.ErrConcurrentUpdate),
		errors.Is(err, conceptdomain.ErrDuplicateCode),
		errors.Is(err, conceptdomain.ErrConceptInactive),
		errors.Is(err, studentdomain.ErrStudentInactive):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	var chargeTransition *chargedomain.TransitionError
	if errors.As(err, &chargeTransition) {
		return chargeTransition.Error()
	}
	var paymentTransition *paymentdomain.TransitionError
	if errors.As(err, &paymentTransition) {
		return paymentTransition.Error()
	}
	return rootCode(err)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, conceptdomain.ErrNotFound),
		errors.Is(err, studentdomain.ErrNotFound),
		errors.Is(err, chargedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConceptValidationError(err error) bool {
	switch {
	case errors.Is(err, conceptdomain.ErrInvalidOrganization),
		errors.Is(err, conceptdomain.ErrInvalidID),
		errors.Is(err, conceptdomain.ErrInvalidPercentage),
		errors.Is(err, conceptdomain.ErrDiscountNotAllowed),
		errors.Is(err, conceptdomain.ErrDiscountExceedsMax),
		errors.Is(err, conceptdomain.ErrInvalidCategory):
		return true
	default:
		return false
	}
}

func isStudentValidationError(err error) bool {
	switch {
	case errors.Is(err, studentdomain.ErrInvalidOrganization),
		errors.Is(err, studentdomain.ErrInvalidName),
		errors.Is(err, studentdomain.ErrInvalidEmail),
		errors.Is(err, studentdomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isChargeValidationError(err error) bool {
	switch {
	case errors.Is(err, chargedomain.ErrInvalidOrganization),
		errors.Is(err, chargedomain.ErrInvalidID),
		errors.Is(err, chargedomain.ErrInvalidAmount),
		errors.Is(err, chargedomain.ErrAmountExceedsOutstanding),
		errors.Is(err, chargedomain.ErrAmountExceedsPaid),
		errors.Is(err, chargedomain.ErrInvalidDueDate),
		errors.Is(err, chargedomain.ErrInvalidPeriod),
		errors.Is(err, chargedomain.ErrReasonRequired),
		errors.Is(err, chargedomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidOrganization),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidPaidAt),
		errors.Is(err, paymentdomain.ErrReasonRequired),
		errors.Is(err, paymentdomain.ErrInvoiceIDRequired),
		errors.Is(err, paymentdomain.ErrChargeMismatch):
		return true
	default:
		return false
	}
}

func isStatementValidationError(err error) bool {
	switch {
	case errors.Is(err, statementdomain.ErrInvalidOrganization),
		errors.Is(err, statementdomain.ErrInvalidStudent):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	default:
		return rootCode(err)
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	switch code {
	case "amount_exceeds_outstanding", "amount_exceeds_paid":
		return "amount"
	case "discount_not_allowed", "discount_exceeds_max":
		return "percentage"
	case "reason_required":
		return "reason"
	case "invoice_id_required":
		return "invoice_id"
	default:
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "amount_exceeds_outstanding":
		return "amount exceeds the outstanding balance"
	case "amount_exceeds_paid":
		return "amount exceeds the amount paid"
	case "discount_not_allowed":
		return "discounts are not allowed for this concept"
	case "discount_exceeds_max":
		return "discount exceeds the concept maximum"
	case "reason_required":
		return "reason is required"
	default:
		return "invalid value"
	}
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
