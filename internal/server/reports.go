package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timberline-hq/timberline/internal/authorization"
	reportdomain "github.com/timberline-hq/timberline/internal/report/domain"
)

func (s *Server) ProjectReport(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, reportdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectReport, authorization.ActionReportView) {
		return
	}

	period, err := parseReportPeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.reportSvc.ProjectSummary(c.Request.Context(), projectID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) ExportProjectReportPDF(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("id"))
	if projectID == "" {
		AbortWithError(c, reportdomain.ErrInvalidProject)
		return
	}
	if !s.authorize(c, projectID, authorization.ObjectReport, authorization.ActionReportExport) {
		return
	}

	period, err := parseReportPeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.reportSvc.ExportPDF(c.Request.Context(), projectID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="progress-report.pdf"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
}

func parseReportPeriod(c *gin.Context) (reportdomain.Period, error) {
	var period reportdomain.Period

	if from := strings.TrimSpace(c.Query("from")); from != "" {
		parsed, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return period, newValidationError("from", "invalid_period", "must be RFC 3339")
		}
		period.From = parsed
	}
	if to := strings.TrimSpace(c.Query("to")); to != "" {
		parsed, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return period, newValidationError("to", "invalid_period", "must be RFC 3339")
		}
		period.To = parsed
	}
	return period, nil
}
