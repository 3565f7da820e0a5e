package patient

import (
	"net/http"

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
	role := auth.RequireRole(auth.RoleAdmin, auth.RoleClinician)
	api.GET("/patients", h.List, role)
	api.GET("/patients/:id", h.Get, role)
}

func (h *Handler) List(c echo.Context) error {
	t := tenant.FromContext(c.Request().Context())
	if t == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant not resolved")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), t.ID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t := tenant.FromContext(c.Request().Context())
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if t != nil && p.TenantID != t.ID {
		return echo.NewHTTPError(http.StatusForbidden, "patient belongs to another tenant")
	}
	return c.JSON(http.StatusOK, p)
}
