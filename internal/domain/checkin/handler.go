package checkin

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careloop/careloop/internal/domain/tenant"
	"github.com/careloop/careloop/internal/platform/auth"
	"github.com/careloop/careloop/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinician := auth.RequireRole(auth.RoleAdmin, auth.RoleClinician)
	admin := auth.RequireRole(auth.RoleAdmin)

	api.GET("/care-plans/:id/check-ins", h.ListByCarePlan, clinician)
	api.GET("/alerts", h.ListAlerts, admin)
	api.POST("/alerts/:id/resolve", h.ResolveAlert, admin)
}

func (h *Handler) ListByCarePlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListByCarePlan(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	t := tenant.FromContext(c.Request().Context())
	if t == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant not resolved")
	}
	openOnly, _ := strconv.ParseBool(c.QueryParam("open"))
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAlerts(c.Request().Context(), t.ID, openOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ResolveAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	resolvedBy := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ResolveAlert(c.Request().Context(), id, resolvedBy); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
