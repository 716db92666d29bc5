package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/internal/service"
	"github.com/okulsoft/absence-dispatch/pkg/response"
)

// NotificationHandler exposes the dispatch log and the day overview to the
// admin console.
type NotificationHandler struct {
	dispatch *service.DispatchService
	overview *service.OverviewService
}

func NewNotificationHandler(dispatch *service.DispatchService, overview *service.OverviewService) *NotificationHandler {
	return &NotificationHandler{
		dispatch: dispatch,
		overview: overview,
	}
}

// GetNotifications godoc
// @Summary Get the absence dispatch log
// @Description Paginated dispatch log for a date with optional status/class/text filters
// @Tags notifications
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for notifications"
// @Param date query string false "Date key YYYY-MM-DD (default: today, school-local)"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Param classId query int false "Filter by class id"
// @Param q query string false "Search in student/parent name and message text"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	filter := domain.QueryFilter{
		Search: c.QueryParam("q"),
	}

	if dateStr := c.QueryParam("date"); dateStr != "" {
		if _, err := time.Parse(domain.DateKeyLayout, dateStr); err != nil {
			return response.BadRequestWithMessage(c, "date must be formatted as YYYY-MM-DD")
		}
		filter.DateKey = dateStr
	}

	if statusStr := c.QueryParam("status"); statusStr != "" {
		status := domain.NotificationStatus(statusStr)
		switch status {
		case domain.StatusPending, domain.StatusSent, domain.StatusFailed:
			filter.Status = &status
		default:
			return response.BadRequestWithMessage(c, "status must be one of pending, sent, failed")
		}
	}

	if classStr := c.QueryParam("classId"); classStr != "" {
		classID, err := strconv.ParseInt(classStr, 10, 64)
		if err != nil {
			return response.BadRequestWithMessage(c, "classId must be an integer")
		}
		filter.ClassID = &classID
	}

	entries, totalCount, err := h.dispatch.GetLog(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, entries, page, pageSize, totalCount)
}

// GetOverview godoc
// @Summary Get the dispatch overview for a date
// @Description School-wide totals and per-class counts, split by cutoff, plus the next scheduled check
// @Tags notifications
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for notifications"
// @Param date query string false "Date key YYYY-MM-DD (default: today, school-local)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/notifications/overview [get]
func (h *NotificationHandler) GetOverview(c echo.Context) error {
	dateKey := c.QueryParam("date")
	if dateKey != "" {
		if _, err := time.Parse(domain.DateKeyLayout, dateKey); err != nil {
			return response.BadRequestWithMessage(c, "date must be formatted as YYYY-MM-DD")
		}
	}

	overview, err := h.overview.Overview(c.Request().Context(), dateKey)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, overview)
}

// GetCachedNotifications godoc
// @Summary Get cached sent markers from Redis
// @Description Returns the Redis-side sent markers for a date, keyed by student id
// @Tags notifications
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for notifications"
// @Param date query string false "Date key YYYY-MM-DD (default: today, school-local)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/notifications/cached [get]
func (h *NotificationHandler) GetCachedNotifications(c echo.Context) error {
	dateKey := c.QueryParam("date")
	if dateKey != "" {
		if _, err := time.Parse(domain.DateKeyLayout, dateKey); err != nil {
			return response.BadRequestWithMessage(c, "date must be formatted as YYYY-MM-DD")
		}
	}

	markers, err := h.dispatch.GetCachedSentMarkers(c.Request().Context(), dateKey)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, markers)
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
