package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: Validation("bad"), want: http.StatusBadRequest},
		{err: Conflict("slug", "taken", nil), want: http.StatusBadRequest},
		{err: NotFound("trip"), want: http.StatusNotFound},
		{err: Forbidden("no"), want: http.StatusForbidden},
		{err: RateLimited("slow down"), want: http.StatusTooManyRequests},
		{err: fmt.Errorf("trip store: get: %w", NotFound("trip")), want: http.StatusNotFound},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestFieldErrors(t *testing.T) {
	e := NewValidation()
	if e.OrNil() != nil {
		t.Fatalf("expected empty validation error to be nil")
	}
	e.Add("start", "Start is required.").Add("cave_name", "Cave name is required.")
	if err := e.OrNil(); err == nil {
		t.Fatalf("expected error")
	}
	if got := e.Field("start"); len(got) != 1 || got[0] != "Start is required." {
		t.Fatalf("expected start message, got %v", got)
	}
	if got := e.Error(); got != "Cave name is required. Start is required." {
		t.Fatalf("unexpected message %q", got)
	}
	if !Is(e, KindValidation) {
		t.Fatalf("expected validation kind")
	}
}
