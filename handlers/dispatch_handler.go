package handlers

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/okulsoft/absence-dispatch/internal/scheduler"
	"github.com/okulsoft/absence-dispatch/internal/service"
	"github.com/okulsoft/absence-dispatch/pkg/response"
	"github.com/okulsoft/absence-dispatch/pkg/validator"
)

// DispatchHandler exposes the manual trigger, the ad-hoc test send and
// scheduler control.
type DispatchHandler struct {
	dispatch  *service.DispatchService
	scheduler *scheduler.Scheduler
	ctx       context.Context // app lifetime, outlives individual requests
}

func NewDispatchHandler(dispatch *service.DispatchService, sched *scheduler.Scheduler, ctx context.Context) *DispatchHandler {
	return &DispatchHandler{
		dispatch:  dispatch,
		scheduler: sched,
		ctx:       ctx,
	}
}

type TestSendRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,e164"`
	Message     string `json:"message" validate:"required,max=500"`
}

// TriggerDispatch godoc
// @Summary Run one dispatch cycle now
// @Description Runs a full dispatch cycle synchronously and returns its result. The per-class cutoff still applies; not-yet-due students are skipped, not forced.
// @Tags dispatch
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Success 200 {object} response.SuccessResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/dispatch/trigger [post]
func (h *DispatchHandler) TriggerDispatch(c echo.Context) error {
	result, err := h.dispatch.RunCycle(c.Request().Context())
	if err != nil {
		if errors.Is(err, service.ErrCycleInProgress) {
			return response.Conflict(c, "A dispatch cycle is already in progress")
		}
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Dispatch cycle completed", result)
}

// TestSend godoc
// @Summary Send a single test SMS
// @Description Sends one ad-hoc SMS straight through the gateway for credential verification. Bypasses eligibility, cutoff and the dispatch log; no notification record is written.
// @Tags dispatch
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Param request body TestSendRequest true "Test message"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/v1/dispatch/test [post]
func (h *DispatchHandler) TestSend(c echo.Context) error {
	var req TestSendRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	providerMessageID, err := h.dispatch.SendTest(c.Request().Context(), req.PhoneNumber, req.Message)
	if err != nil {
		return response.BadGateway(c, err)
	}

	return response.OkWithMessage(c, "Test SMS sent", map[string]any{
		"providerMessageId": providerMessageID,
	})
}

// StartScheduler godoc
// @Summary Start the dispatch scheduler
// @Description Starts periodic dispatch cycles at the configured interval
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/start [post]
func (h *DispatchHandler) StartScheduler(c echo.Context) error {
	if h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already running", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Start(h.ctx); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler started successfully", h.scheduler.GetStatus())
}

// StopScheduler godoc
// @Summary Stop the dispatch scheduler
// @Description Stops periodic dispatch cycles; the manual trigger keeps working
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/scheduler/stop [post]
func (h *DispatchHandler) StopScheduler(c echo.Context) error {
	if !h.scheduler.IsRunning() {
		return response.OkWithMessage(c, "Scheduler is already stopped", h.scheduler.GetStatus())
	}

	if err := h.scheduler.Stop(); err != nil {
		return response.InternalServerError(c, err)
	}

	return response.OkWithMessage(c, "Scheduler stopped successfully", h.scheduler.GetStatus())
}

// GetSchedulerStatus godoc
// @Summary Get scheduler status
// @Description Returns run counters, the last cycle result and the next planned check
// @Tags scheduler
// @Accept json
// @Produce json
// @Param x-admin-api-key header string true "API key for dispatch"
// @Success 200 {object} response.SuccessResponse
// @Router /api/v1/scheduler/status [get]
func (h *DispatchHandler) GetSchedulerStatus(c echo.Context) error {
	return response.Ok(c, h.scheduler.GetStatus())
}
