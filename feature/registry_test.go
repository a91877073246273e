package feature

import (
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry("b", PageCache)
	if !r.Exists(PageCache) {
		t.Fatal("page_cache should exist")
	}
	if r.Exists("a") {
		t.Fatal("a should not exist")
	}
	r.Enable("a")
	r.Disable(PageCache)
	if list := strings.Join(r.List(), ","); list != "a,b" {
		t.Fatalf("List is %s", list)
	}
}

func TestZeroNamesRegistry(t *testing.T) {
	r := NewRegistry()
	if r.Exists(PageCache) {
		t.Fatal("Empty registry has page_cache")
	}
	if len(r.List()) != 0 {
		t.Fatal("Empty registry lists features")
	}
}
