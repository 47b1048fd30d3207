package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	conceptdomain "github.com/smallbiznis/bursar/internal/concept/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type policyRequest struct {
	DiscountEnabled       bool             `json:"discount_enabled"`
	MaxDiscountPercentage *decimal.Decimal `json:"max_discount_percentage"`
	LateFeeEnabled        bool             `json:"late_fee_enabled"`
	LateFeePercentage     *decimal.Decimal `json:"late_fee_percentage"`
	GraceDays             *int             `json:"grace_days" binding:"omitempty,min=0"`
}

func (p policyRequest) toDomain() conceptdomain.Policy {
	return conceptdomain.Policy{
		DiscountEnabled:       p.DiscountEnabled,
		MaxDiscountPercentage: p.MaxDiscountPercentage,
		LateFeeEnabled:        p.LateFeeEnabled,
		LateFeePercentage:     p.LateFeePercentage,
		GraceDays:             p.GraceDays,
	}
}

type createConceptRequest struct {
	Name        string          `json:"name" binding:"required,max=200"`
	Description string          `json:"description" binding:"max=2000"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Category    string          `json:"category" binding:"required,oneof=one_time recurring"`
	Periodicity *string         `json:"periodicity" binding:"omitempty,oneof=monthly quarterly yearly"`
	Policy      policyRequest   `json:"policy"`
}

type updateConceptRequest struct {
	Name        *string          `json:"name" binding:"omitempty,max=200"`
	Description *string          `json:"description" binding:"omitempty,max=2000"`
	BaseAmount  *decimal.Decimal `json:"base_amount"`
	Policy      *policyRequest   `json:"policy"`
}

func (s *Server) CreateConcept(c *gin.Context) {
	var req createConceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	var periodicity *conceptdomain.Periodicity
	if req.Periodicity != nil {
		value := conceptdomain.Periodicity(strings.TrimSpace(*req.Periodicity))
		periodicity = &value
	}

	resp, err := s.conceptSvc.Create(c.Request.Context(), conceptdomain.CreateConceptRequest{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		BaseAmount:  req.BaseAmount,
		Category:    conceptdomain.Category(req.Category),
		Periodicity: periodicity,
		Policy:      req.Policy.toDomain(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListConcepts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Active   string `form:"active"`
		Category string `form:"category"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.conceptSvc.List(c.Request.Context(), conceptdomain.ListConceptRequest{
		Pagination: query.Pagination,
		Active:     active,
		Category:   strings.TrimSpace(query.Category),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Concepts, "page_info": resp.PageInfo})
}

func (s *Server) GetConceptByID(c *gin.Context) {
	resp, err := s.conceptSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateConcept(c *gin.Context) {
	var req updateConceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	update := conceptdomain.UpdateConceptRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Name:        req.Name,
		Description: req.Description,
		BaseAmount:  req.BaseAmount,
	}
	if req.Policy != nil {
		policy := req.Policy.toDomain()
		update.Policy = &policy
	}

	resp, err := s.conceptSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateConcept(c *gin.Context) {
	resp, err := s.conceptSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
