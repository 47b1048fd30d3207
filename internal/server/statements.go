package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	statementdomain "github.com/smallbiznis/bursar/internal/statement/domain"
)

func (s *Server) GetStudentStatement(c *gin.Context) {
	resp, err := s.statementSvc.Get(c.Request.Context(), statementdomain.GetStatementRequest{
		StudentID: strings.TrimSpace(c.Param("id")),
		Period:    strings.TrimSpace(c.Query("period")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
