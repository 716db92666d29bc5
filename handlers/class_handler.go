package handlers

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/okulsoft/absence-dispatch/internal/repository"
	"github.com/okulsoft/absence-dispatch/internal/service"
	"github.com/okulsoft/absence-dispatch/pkg/response"
	"github.com/okulsoft/absence-dispatch/pkg/validator"
)

// ClassHandler exposes per-class dispatch settings.
type ClassHandler struct {
	classes *service.ClassService
}

func NewClassHandler(classes *service.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

type UpdateClassConfigRequest struct {
	SendAfter     string `json:"sendAfter" validate:"required,hhmm"`
	NotifyEnabled bool   `json:"notifyEnabled"`
}

// ListClasses godoc
// @Summary List class dispatch settings
// @Description Every class with its send-after cutoff and notification switch, including disabled classes
// @Tags classes
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/classes [get]
func (h *ClassHandler) ListClasses(c echo.Context) error {
	classes, err := h.classes.ListClasses(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, classes)
}

// UpdateClassConfig godoc
// @Summary Update a class's dispatch settings
// @Description Sets the send-after cutoff (HH:MM, school-local) and the notification switch. Applies from the next dispatch cycle; notifications already sent are never revisited.
// @Tags classes
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Param id path int true "Class id"
// @Param request body UpdateClassConfigRequest true "New dispatch settings"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/classes/{id}/dispatch-config [put]
func (h *ClassHandler) UpdateClassConfig(c echo.Context) error {
	classID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return response.BadRequestWithMessage(c, "class id must be an integer")
	}

	var req UpdateClassConfigRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	config, err := h.classes.UpdateDispatchConfig(c.Request().Context(), classID, req.SendAfter, req.NotifyEnabled)
	if err != nil {
		if errors.Is(err, repository.ErrClassNotFound) {
			return response.NotFound(c, "Class not found")
		}
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Class dispatch config updated", config)
}
