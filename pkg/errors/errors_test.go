package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestIsMatchesOnCodeOnly(t *testing.T) {
	a := NotFound("sections")
	b := NotFound("rooms")

	if !errors.Is(a, b) {
		t.Fatalf("expected NotFound errors to match regardless of context")
	}

	c := InvalidID("")
	if errors.Is(a, c) {
		t.Fatalf("expected different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Internal(cause)

	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected Unwrap chain to expose the cause")
	}
	if CodeOf(wrapped) != CodeInternal {
		t.Fatalf("expected CodeInternal, got %s", CodeOf(wrapped))
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidID:      http.StatusBadRequest,
		CodeInvalidContent: http.StatusBadRequest,
		CodeInvalidQuery:   http.StatusBadRequest,
		CodeResultTooLarge: http.StatusBadRequest,
		CodeNotFound:       http.StatusNotFound,
		CodeInternal:       http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	if got := CodeOf(errors.New("plain error")); got != CodeInternal {
		t.Errorf("CodeOf(plain error) = %s, want %s", got, CodeInternal)
	}
}
