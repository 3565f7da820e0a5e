package portal

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SessionCookie names the portal session cookie carrying the random id that
// scopes access grants.
const SessionCookie = "careloop_session"

type Handler struct {
	svc    *Service
	secure bool
}

func NewHandler(svc *Service, secureCookies bool) *Handler {
	return &Handler{svc: svc, secure: secureCookies}
}

// RegisterRoutes mounts the patient portal. These routes are public; access
// is gated by verification, not by clinician auth.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/portal", h.sessionMiddleware)
	g.POST("/:token/verify", h.Verify)
	g.GET("/:token", h.Fetch)
	g.POST("/:token/check-in", h.CheckIn)
	g.POST("/:token/demo", h.Demo)
}

// sessionMiddleware ensures every portal request carries a session id,
// minting one on first contact.
func (h *Handler) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(SessionCookie)
		if err == nil && cookie.Value != "" {
			c.Set("portal_session", cookie.Value)
			return next(c)
		}

		sid, err := NewSessionID()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "session init failed")
		}
		c.SetCookie(&http.Cookie{
			Name:     SessionCookie,
			Value:    sid,
			Path:     "/portal",
			MaxAge:   int(SessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
		c.Set("portal_session", sid)
		return next(c)
	}
}

func sessionID(c echo.Context) string {
	sid, _ := c.Get("portal_session").(string)
	return sid
}

func (h *Handler) Verify(c echo.Context) error {
	var claim Claim
	if err := c.Bind(&claim); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Verify(c.Request().Context(), sessionID(c), c.Param("token"), claim)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "verification unavailable")
	}

	switch {
	case res.Verified:
		return c.JSON(http.StatusOK, res)
	case res.Locked:
		return c.JSON(http.StatusTooManyRequests, res)
	case res.RequiresFullAuth:
		return c.JSON(http.StatusBadRequest, res)
	default:
		return c.JSON(http.StatusUnauthorized, res)
	}
}

func (h *Handler) Fetch(c echo.Context) error {
	view, sentinel, err := h.svc.Fetch(c.Request().Context(), sessionID(c), c.Param("token"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch unavailable")
	}
	if sentinel != nil {
		return c.JSON(http.StatusForbidden, sentinel)
	}
	return c.JSON(http.StatusOK, view)
}

type checkInRequest struct {
	Response string `json:"response"`
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ci, err := h.svc.SubmitCheckIn(c.Request().Context(), sessionID(c), c.Param("token"), req.Response)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		case errors.Is(err, ErrNotGranted):
			return c.JSON(http.StatusForbidden, &Sentinel{RequiresVerification: true})
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusOK, ci)
}

type demoRequest struct {
	DemoToken string `json:"demoToken"`
}

func (h *Handler) Demo(c echo.Context) error {
	var req demoRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ok, err := h.svc.ExchangeDemoToken(c.Request().Context(), sessionID(c), c.Param("token"), req.DemoToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "exchange unavailable")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid demo token")
	}
	return c.JSON(http.StatusOK, map[string]bool{"granted": true})
}
