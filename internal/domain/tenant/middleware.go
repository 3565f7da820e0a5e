package tenant

import (
	"context"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
)

type contextKey string

const TenantKey contextKey = "tenant"

var slugHeaderPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Middleware resolves the request's tenant and places it in context. The
// tenant comes from the JWT claim when present, then the X-Tenant-ID header,
// then the query parameter, then the configured default.
func Middleware(svc *Service, defaultSlug string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			slug := extractSlug(c, defaultSlug)

			if !slugHeaderPattern.MatchString(slug) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			t, err := svc.GetBySlug(c.Request().Context(), slug)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "unknown tenant")
			}

			ctx := context.WithValue(c.Request().Context(), TenantKey, t)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", t.ID.String())

			return next(c)
		}
	}
}

func extractSlug(c echo.Context, defaultSlug string) string {
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}
	return defaultSlug
}

// FromContext retrieves the resolved tenant from context.
func FromContext(ctx context.Context) *Tenant {
	t, _ := ctx.Value(TenantKey).(*Tenant)
	return t
}
