package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func portalRequest(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("portal_session", "sess-test")
	return c, rec
}

func TestHandler_Verify_Success(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, rec := portalRequest(e, http.MethodPost, `{"yearOfBirth":1956}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Verify(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusOK { t.Errorf("expected 200, got %d", rec.Code) }

	var res VerifyResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Verified { t.Error("expected verified result") }
}

func TestHandler_Verify_WrongYear(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, rec := portalRequest(e, http.MethodPost, `{"yearOfBirth":1900}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Verify(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusUnauthorized { t.Errorf("expected 401, got %d", rec.Code) }
}

func TestHandler_Verify_LockedReturns429(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	for i := 0; i < MaxAttempts; i++ {
		c, _ := portalRequest(e, http.MethodPost, `{"yearOfBirth":1900}`)
		c.SetParamNames("token"); c.SetParamValues(f.token)
		h.Verify(c)
	}

	c, rec := portalRequest(e, http.MethodPost, `{"yearOfBirth":1956}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Verify(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusTooManyRequests { t.Errorf("expected 429, got %d", rec.Code) }
}

func TestHandler_Verify_MissingFieldsReturns400(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, rec := portalRequest(e, http.MethodPost, `{"yearOfBirth":1956}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Verify(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusBadRequest { t.Errorf("expected 400, got %d", rec.Code) }
}

func TestHandler_Verify_UnknownToken404(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, _ := portalRequest(e, http.MethodPost, `{"yearOfBirth":1956}`)
	c.SetParamNames("token"); c.SetParamValues("no-such-token")
	err := h.Verify(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound { t.Fatalf("expected 404, got %v", err) }
}

func TestHandler_Fetch_UngrantedReturns403(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, rec := portalRequest(e, http.MethodGet, "")
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Fetch(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusForbidden { t.Errorf("expected 403, got %d", rec.Code) }

	var sentinel Sentinel
	json.Unmarshal(rec.Body.Bytes(), &sentinel)
	if !sentinel.RequiresVerification { t.Error("expected verification sentinel") }
	if strings.Contains(rec.Body.String(), "traducido") { t.Error("content leaked to ungranted session") }
}

func TestHandler_Fetch_AfterVerify(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	f.svc.Verify(context.Background(), "sess-test", f.token, Claim{YearOfBirth: 1956})

	c, rec := portalRequest(e, http.MethodGet, "")
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.Fetch(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusOK { t.Errorf("expected 200, got %d", rec.Code) }
	if !strings.Contains(rec.Body.String(), "traducido") { t.Error("expected translated content") }
}

func TestHandler_CheckIn_RequiresGrant(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, rec := portalRequest(e, http.MethodPost, `{"response":"green"}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	if err := h.CheckIn(c); err != nil { t.Fatalf("unexpected error: %v", err) }
	if rec.Code != http.StatusForbidden { t.Errorf("expected 403, got %d", rec.Code) }
}

func TestHandler_Demo_Invalid401(t *testing.T) {
	f := newPortalFixture(t, NewProductionVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()

	c, _ := portalRequest(e, http.MethodPost, `{"demoToken":"bogus"}`)
	c.SetParamNames("token"); c.SetParamValues(f.token)
	err := h.Demo(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized { t.Fatalf("expected 401, got %v", err) }
}

func TestHandler_SessionMiddleware_SetsCookie(t *testing.T) {
	f := newPortalFixture(t, NewDemoVerifier())
	h := NewHandler(f.svc, false)
	e := echo.New()
	h.RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/portal/"+f.token, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie { cookie = ck }
	}
	if cookie == nil { t.Fatal("expected session cookie") }
	if !cookie.HttpOnly { t.Error("session cookie must be HttpOnly") }
	if cookie.Path != "/portal" { t.Errorf("cookie path: %q", cookie.Path) }
}
