package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"limit=0", DefaultLimit, 0},
		{"limit=-5", DefaultLimit, 0},
		{"limit=500", MaxLimit, 0},
		{"offset=-1", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, c := range cases {
		got := paramsFor(t, c.query)
		if got.Limit != c.limit || got.Offset != c.offset {
			t.Errorf("%q: got limit=%d offset=%d, want limit=%d offset=%d", c.query, got.Limit, got.Offset, c.limit, c.offset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore { t.Error("expected more pages") }
	r = NewResponse([]int{1}, 10, 3, 9)
	if r.HasMore { t.Error("last page should not report more") }
}

func TestParamsNext(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if !p.HasNext(100) { t.Error("expected next page") }
	if p.HasNext(60) { t.Error("no next page at end") }
	if p.NextOffset() != 60 { t.Errorf("next offset: %d", p.NextOffset()) }
}
