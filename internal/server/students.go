package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
	"github.com/smallbiznis/bursar/pkg/db/pagination"
)

type createStudentRequest struct {
	Name       string `json:"name" binding:"required,max=200"`
	Email      string `json:"email" binding:"omitempty,email"`
	EnrolledAt string `json:"enrolled_at"`
}

func (s *Server) CreateStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	enrolledAt, err := parseOptionalTime(req.EnrolledAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("enrolled_at", "invalid_enrolled_at", "invalid enrolled_at"))
		return
	}

	resp, err := s.studentSvc.Create(c.Request.Context(), studentdomain.CreateStudentRequest{
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		EnrolledAt: enrolledAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListStudents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name   string `form:"name"`
		Email  string `form:"email"`
		Active string `form:"active"`
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

	resp, err := s.studentSvc.List(c.Request.Context(), studentdomain.ListStudentRequest{
		Pagination: query.Pagination,
		Name:       strings.TrimSpace(query.Name),
		Email:      strings.TrimSpace(query.Email),
		Active:     active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Students, "page_info": resp.PageInfo})
}

func (s *Server) GetStudentByID(c *gin.Context) {
	resp, err := s.studentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateStudent(c *gin.Context) {
	resp, err := s.studentSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
