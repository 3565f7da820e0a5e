package careplan

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careloop/careloop/internal/domain/patient"
	"github.com/careloop/careloop/internal/domain/tenant"
	"github.com/careloop/careloop/internal/platform/audit"
	"github.com/careloop/careloop/internal/platform/auth"
	"github.com/careloop/careloop/pkg/pagination"
)

type demoTokenIssuer interface {
	Issue(accessToken string) (string, time.Time, error)
}

type Handler struct {
	svc    *Service
	demo   demoTokenIssuer
	audits *audit.Logger
}

func NewHandler(svc *Service, demo demoTokenIssuer, audits *audit.Logger) *Handler {
	return &Handler{svc: svc, demo: demo, audits: audits}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinician := auth.RequireRole(auth.RoleAdmin, auth.RoleClinician)
	interpreter := auth.RequireRole(auth.RoleAdmin, auth.RoleInterpreter)

	api.POST("/care-plans", h.Create, clinician)
	api.GET("/care-plans", h.List, clinician)
	api.GET("/care-plans/:id", h.Get, clinician)
	api.DELETE("/care-plans/:id", h.Delete, clinician)
	api.POST("/care-plans/:id/process", h.Process, clinician)
	api.POST("/care-plans/:id/approve", h.Approve, clinician)
	api.POST("/care-plans/:id/send", h.Send, clinician)
	api.POST("/care-plans/:id/demo-token", h.DemoToken, clinician)

	api.POST("/care-plans/:id/interpreter/approve", h.InterpreterApprove, interpreter)
	api.POST("/care-plans/:id/interpreter/request-changes", h.RequestChanges, interpreter)

	api.GET("/care-plans/:id/audit", h.Audit, auth.RequireRole(auth.RoleAdmin))
}

func httpError(err error) error {
	var it *IllegalTransitionError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "care plan not found")
	case errors.As(err, &it):
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":  it.Error(),
			"status": it.From,
		})
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransformFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
}

// load resolves the path id and enforces tenant scoping.
func (h *Handler) load(c echo.Context) (*CarePlan, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "care plan not found")
	}
	if t := tenant.FromContext(c.Request().Context()); t != nil && cp.TenantID != t.ID {
		return nil, echo.NewHTTPError(http.StatusForbidden, "care plan belongs to another tenant")
	}
	return cp, nil
}

func (h *Handler) Create(c echo.Context) error {
	t := tenant.FromContext(c.Request().Context())
	if t == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant not resolved")
	}
	var cp CarePlan
	if err := c.Bind(&cp); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cp.TenantID = t.ID
	actor := ActorFromContext(c.Request().Context())
	if err := h.svc.Create(c.Request().Context(), &cp, actor); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, cp)
}

func (h *Handler) Get(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cp)
}

func (h *Handler) List(c echo.Context) error {
	t := tenant.FromContext(c.Request().Context())
	if t == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant not resolved")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), t.ID, Status(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Delete(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	actor := ActorFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), cp.ID, actor); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Process(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	actor := ActorFromContext(c.Request().Context())
	updated, err := h.svc.Process(c.Request().Context(), cp.ID, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type approveRequest struct {
	SkipInterpreterReview bool   `json:"skipInterpreterReview"`
	OverrideJustification string `json:"overrideJustification"`
}

func (h *Handler) Approve(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t := tenant.FromContext(c.Request().Context())
	actor := ActorFromContext(c.Request().Context())
	updated, err := h.svc.Approve(c.Request().Context(), cp.ID, t, actor,
		req.SkipInterpreterReview, req.OverrideJustification)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Send(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	var details patient.ContactDetails
	if err := c.Bind(&details); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := ActorFromContext(c.Request().Context())
	updated, err := h.svc.Send(c.Request().Context(), cp.ID, actor, details)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type interpreterApproveRequest struct {
	Edits *ReviewEdits `json:"edits,omitempty"`
	Notes string       `json:"notes"`
}

func (h *Handler) InterpreterApprove(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	var req interpreterApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := ActorFromContext(c.Request().Context())
	updated, err := h.svc.InterpreterApprove(c.Request().Context(), cp.ID, actor, req.Edits, req.Notes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type requestChangesRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RequestChanges(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	var req requestChangesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor := ActorFromContext(c.Request().Context())
	updated, err := h.svc.RequestChanges(c.Request().Context(), cp.ID, actor, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DemoToken issues a short-lived preview token bound to the plan's access
// token, letting the clinician see exactly what the patient will see.
func (h *Handler) DemoToken(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	if cp.AccessToken == nil {
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error":  "care plan has no access token; send it first",
			"status": cp.Status,
		})
	}
	token, expiresAt, err := h.demo.Issue(*cp.AccessToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	actor := ActorFromContext(c.Request().Context())
	h.svc.record(c.Request().Context(), cp, actor, audit.ActionDemoTokenIssued, audit.OutcomeSuccess, "")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"demoToken": token,
		"expiresAt": expiresAt,
	})
}

func (h *Handler) Audit(c echo.Context) error {
	cp, err := h.load(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.audits.ListByCarePlan(c.Request().Context(), cp.ID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
