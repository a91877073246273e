package request

import (
	"net/http/httptest"
	"testing"
)

func TestUnmarkedRequestIsMain(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if k := KindOf(r); k != Main {
		t.Fatalf("Kind is %s", k)
	}
}

func TestWithKind(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	sub := WithKind(r, Sub)
	if k := KindOf(sub); k != Sub {
		t.Fatalf("Kind is %s", k)
	}
	// original request is not touched
	if k := KindOf(r); k != Main {
		t.Fatalf("Original kind is %s", k)
	}
}
