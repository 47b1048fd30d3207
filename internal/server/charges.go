package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	chargedomain "github.com/smallbiznis/bursar/internal/charge/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type createChargeRequest struct {
	ConceptID   string `json:"concept_id" binding:"required"`
	StudentID   string `json:"student_id" binding:"required"`
	Period      string `json:"period"`
	DueDate     string `json:"due_date"`
	Description string `json:"description" binding:"max=2000"`
}

type applyDiscountRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
	Reason     string          `json:"reason" binding:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type extendDueDateRequest struct {
	DueDate string `json:"due_date" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

type generateMonthlyRequest struct {
	Period string `json:"period" binding:"required"`
}

func (s *Server) CreateCharge(c *gin.Context) {
	var req createChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, chargedomain.ErrInvalidDueDate)
		return
	}

	resp, err := s.chargeSvc.Create(c.Request.Context(), chargedomain.CreateChargeRequest{
		ConceptID:   strings.TrimSpace(req.ConceptID),
		StudentID:   strings.TrimSpace(req.StudentID),
		Period:      strings.TrimSpace(req.Period),
		DueDate:     dueDate,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCharges(c *gin.Context) {
	var query struct {
		pagination.Pagination
		StudentID string `form:"student_id"`
		ConceptID string `form:"concept_id"`
		Status    string `form:"status"`
		Period    string `form:"period"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.chargeSvc.List(c.Request.Context(), chargedomain.ListChargeRequest{
		Pagination: query.Pagination,
		StudentID:  strings.TrimSpace(query.StudentID),
		ConceptID:  strings.TrimSpace(query.ConceptID),
		Status:     strings.TrimSpace(query.Status),
		Period:     strings.TrimSpace(query.Period),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Charges, "page_info": resp.PageInfo})
}

func (s *Server) GetChargeByID(c *gin.Context) {
	resp, err := s.chargeSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPendingCharges(c *gin.Context) {
	resp, err := s.chargeSvc.ListPending(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyChargeDiscount(c *gin.Context) {
	var req applyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.chargeSvc.ApplyDiscount(c.Request.Context(), chargedomain.ApplyDiscountRequest{
		ID:         strings.TrimSpace(c.Param("id")),
		Percentage: req.Percentage,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelCharge(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.chargeSvc.Cancel(c.Request.Context(), chargedomain.CancelChargeRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateCharge(c *gin.Context) {
	resp, err := s.chargeSvc.Reactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ExtendChargeDueDate(c *gin.Context) {
	var req extendDueDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil || dueDate == nil {
		AbortWithError(c, chargedomain.ErrInvalidDueDate)
		return
	}

	resp, err := s.chargeSvc.ExtendDueDate(c.Request.Context(), chargedomain.ExtendDueDateRequest{
		ID:      strings.TrimSpace(c.Param("id")),
		DueDate: *dueDate,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GenerateMonthlyCharges(c *gin.Context) {
	var req generateMonthlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	resp, err := s.chargeSvc.GenerateMonthly(c.Request.Context(), chargedomain.GenerateMonthlyRequest{
		Period: strings.TrimSpace(req.Period),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
