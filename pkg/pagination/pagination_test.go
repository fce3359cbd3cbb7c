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
	rec := httptest.NewRecorder()
	return FromContext(e.NewContext(req, rec))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10", 10, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=500", MaxLimit, 0},
		{"limit=-5", DefaultLimit, 0},
		{"offset=-5", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}

	for _, tt := range tests {
		p := paramsFor(t, tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("query %q: got limit=%d offset=%d, want limit=%d offset=%d",
				tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2, 3}, 10, 3, 0)
	if !r.HasMore {
		t.Error("expected HasMore true when more rows remain")
	}

	r = NewResponse([]int{1}, 1, 20, 0)
	if r.HasMore {
		t.Error("expected HasMore false when all rows fit")
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}

	if !p.HasNext(100) {
		t.Error("expected HasNext true")
	}
	if p.HasNext(60) {
		t.Error("expected HasNext false at final page")
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious true")
	}
	if p.NextOffset() != 60 {
		t.Errorf("NextOffset = %d, want 60", p.NextOffset())
	}
	if p.PreviousOffset() != 20 {
		t.Errorf("PreviousOffset = %d, want 20", p.PreviousOffset())
	}

	first := Params{Limit: 20, Offset: 0}
	if first.HasPrevious() {
		t.Error("expected HasPrevious false on first page")
	}
	if first.PreviousOffset() != 0 {
		t.Errorf("PreviousOffset = %d, want 0", first.PreviousOffset())
	}

	small := Params{Limit: 20, Offset: 10}
	if small.PreviousOffset() != 0 {
		t.Errorf("PreviousOffset = %d, want 0 (clamped)", small.PreviousOffset())
	}
}

func TestParams_SQL(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.SQL(); got != "LIMIT 20 OFFSET 40" {
		t.Errorf("SQL() = %q", got)
	}
}
