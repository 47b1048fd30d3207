package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/bursar/internal/payment/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type registerPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" binding:"required"`
	PaidAt    string          `json:"paid_at"`
	Reference string          `json:"reference" binding:"max=200"`
	Notes     string          `json:"notes" binding:"max=2000"`
}

type markInvoicedRequest struct {
	InvoiceID string         `json:"invoice_id" binding:"required"`
	Refs      map[string]any `json:"refs"`
}

func (s *Server) RegisterPayment(c *gin.Context) {
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	paidAt, err := parseOptionalTime(req.PaidAt, false)
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPaidAt)
		return
	}

	resp, err := s.paymentSvc.Register(c.Request.Context(), paymentdomain.RegisterPaymentRequest{
		ChargeID:  strings.TrimSpace(c.Param("id")),
		Amount:    req.Amount,
		Method:    paymentdomain.Method(strings.TrimSpace(req.Method)),
		PaidAt:    paidAt,
		Reference: strings.TrimSpace(req.Reference),
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListChargePayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByCharge(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListStudentPayments(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	studentID := strings.TrimSpace(c.Param("id"))
	if _, err := s.studentSvc.GetByID(c.Request.Context(), studentID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		Pagination: query,
		StudentID:  studentID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelPayment(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.paymentSvc.Cancel(c.Request.Context(), paymentdomain.CancelPaymentRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkPaymentInvoiced(c *gin.Context) {
	var req markInvoicedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.paymentSvc.MarkInvoiced(c.Request.Context(), paymentdomain.MarkInvoicedRequest{
		ID:        strings.TrimSpace(c.Param("id")),
		InvoiceID: strings.TrimSpace(req.InvoiceID),
		Refs:      req.Refs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReversePaymentInvoice(c *gin.Context) {
	resp, err := s.paymentSvc.ReverseInvoice(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
