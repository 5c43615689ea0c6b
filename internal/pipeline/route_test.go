package pipeline

import "testing"

func TestResolveLongestPrefixWins(t *testing.T) {
	rt := NewRouter([]*Route{
		{ID: "root", PathPrefix: "/"},
		{ID: "api", PathPrefix: "/api"},
		{ID: "api-v1", PathPrefix: "/api/v1"},
	})
	got := rt.Resolve("", "/api/v1/users")
	if got == nil || got.ID != "api-v1" {
		t.Errorf("Resolve = %v, want the longest-prefix route api-v1", got)
	}
}

func TestResolveTieBrokenByConfigOrder(t *testing.T) {
	rt := NewRouter([]*Route{
		{ID: "first", PathPrefix: "/api"},
		{ID: "second", PathPrefix: "/api"},
	})
	got := rt.Resolve("", "/api/x")
	if got == nil || got.ID != "first" {
		t.Errorf("Resolve = %v, want the earliest-declared route on a prefix-length tie", got)
	}
}

func TestResolveHostMustMatchWhenSpecified(t *testing.T) {
	rt := NewRouter([]*Route{
		{ID: "host-scoped", Host: "api.example.com", PathPrefix: "/"},
	})
	if got := rt.Resolve("other.example.com", "/"); got != nil {
		t.Errorf("Resolve = %v, want nil for a non-matching host", got)
	}
	if got := rt.Resolve("api.example.com", "/"); got == nil {
		t.Error("Resolve should match when the host matches")
	}
}

func TestResolveHostIsCaseInsensitive(t *testing.T) {
	rt := NewRouter([]*Route{{ID: "r", Host: "API.Example.com", PathPrefix: "/"}})
	if got := rt.Resolve("api.example.com", "/"); got == nil {
		t.Error("host matching should be case-insensitive")
	}
}

func TestResolveNoMatchReturnsNil(t *testing.T) {
	rt := NewRouter([]*Route{{ID: "r", PathPrefix: "/only"}})
	if got := rt.Resolve("", "/elsewhere"); got != nil {
		t.Errorf("Resolve = %v, want nil", got)
	}
}

func TestResolveHostlessRouteMatchesAnyHost(t *testing.T) {
	rt := NewRouter([]*Route{{ID: "r", PathPrefix: "/"}})
	if got := rt.Resolve("anything.example.com", "/x"); got == nil {
		t.Error("a route with no host restriction should match any host")
	}
}
