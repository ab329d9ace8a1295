package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/hr-requests/internal/domain/entity"
)

// CreateRequestBody is the body of POST /api/requests
type CreateRequestBody struct {
	WorkflowName string `json:"workflow_name" binding:"required"`
	entity.RequestPayload
}

// AdvanceStatusBody is the body of POST /api/requests/:id/status
type AdvanceStatusBody struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// CancellationBody is the body of POST /api/requests/:id/cancellation
type CancellationBody struct {
	Reason string `json:"reason"`
}

// ResolveCancellationBody is the body of POST /api/requests/:id/cancellation/resolve
type ResolveCancellationBody struct {
	Approved *bool  `json:"approved" binding:"required"`
	Notes    string `json:"notes"`
}

// RequestQuery holds the filters of GET /api/requests and /api/requests/export
type RequestQuery struct {
	Status       string `form:"status"`
	WorkflowName string `form:"workflow_name"`
	CompanyID    string `form:"company_id"`
	ContractID   string `form:"contract_id"`
	Protocol     string `form:"protocol"`
	StartDate    string `form:"start_date"`
	EndDate      string `form:"end_date"`
	Page         int    `form:"page"`
	Limit        int    `form:"limit"`
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.services.Requests.Create(c.Request.Context(), actorFrom(c), body.WorkflowName, body.RequestPayload)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	page, err := h.services.Requests.ListRequests(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, page)
}

// ExportRequests handles GET /api/requests/export
func (h *Handlers) ExportRequests(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.services.Requests.ExportRequests(c.Request.Context(), actorFrom(c), filter, &buf); err != nil {
		h.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("requests-%s.xlsx", time.Now().In(h.location).Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.services.Requests.GetRequest(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, req)
}

// AdvanceStatus handles POST /api/requests/:id/status
func (h *Handlers) AdvanceStatus(c *gin.Context) {
	var body AdvanceStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.services.Requests.AdvanceStatus(c.Request.Context(), actorFrom(c), c.Param("id"), body.Status, body.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, req)
}

// RequestCancellation handles POST /api/requests/:id/cancellation
func (h *Handlers) RequestCancellation(c *gin.Context) {
	var body CancellationBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	req, err := h.services.Requests.RequestCancellation(c.Request.Context(), actorFrom(c), c.Param("id"), body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, req)
}

// ResolveCancellation handles POST /api/requests/:id/cancellation/resolve
func (h *Handlers) ResolveCancellation(c *gin.Context) {
	var body ResolveCancellationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	req, err := h.services.Requests.ResolveCancellation(c.Request.Context(), actorFrom(c), c.Param("id"), *body.Approved, body.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, req)
}

// bindFilter parses the list query. It writes the 400 response itself and reports false on failure.
func (h *Handlers) bindFilter(c *gin.Context) (entity.RequestFilter, bool) {
	var q RequestQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return entity.RequestFilter{}, false
	}

	filter := entity.RequestFilter{
		Status:       q.Status,
		WorkflowName: q.WorkflowName,
		CompanyID:    q.CompanyID,
		ContractID:   q.ContractID,
		Protocol:     q.Protocol,
		Page:         q.Page,
		Limit:        q.Limit,
	}

	if q.StartDate != "" {
		start, _, err := parseDate(q.StartDate, h.location)
		if err != nil {
			badRequest(c, "invalid start_date: "+err.Error())
			return entity.RequestFilter{}, false
		}
		filter.StartDate = &start
	}
	if q.EndDate != "" {
		end, dateOnly, err := parseDate(q.EndDate, h.location)
		if err != nil {
			badRequest(c, "invalid end_date: "+err.Error())
			return entity.RequestFilter{}, false
		}
		// the end bound is exclusive, so a bare date includes the whole day
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		}
		filter.EndDate = &end
	}

	return filter, true
}

// parseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates, the latter at midnight in loc
func parseDate(raw string, loc *time.Location) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	return t, false, nil
}
