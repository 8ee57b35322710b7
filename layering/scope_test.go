package layering

import (
	"context"
	"reflect"
	"testing"
)

func TestWellKnownScopes(t *testing.T) {
	cases := []struct {
		scope    Scope
		name     string
		priority int
		id       string
		str      string
	}{
		{System(), ScopeSystem, PrioritySystem, "", "system"},
		{Tenant("acme"), ScopeTenant, PriorityTenant, "acme", "tenant/acme"},
		{Org("o1"), ScopeOrg, PriorityOrg, "o1", "org/o1"},
		{Team("core"), ScopeTeam, PriorityTeam, "core", "team/core"},
		{User("42"), ScopeUser, PriorityUser, "42", "user/42"},
	}
	for _, tc := range cases {
		if tc.scope.Name != tc.name || tc.scope.Priority != tc.priority {
			t.Fatalf("unexpected scope %+v", tc.scope)
		}
		if tc.scope.ID() != tc.id {
			t.Fatalf("%s: expected id %q, got %q", tc.name, tc.id, tc.scope.ID())
		}
		if tc.scope.String() != tc.str {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.str, tc.scope.String())
		}
	}
}

func TestScopeOptionsOverlayBase(t *testing.T) {
	base := map[string]any{"format": "yaml", "scope": "system"}
	got := User("42").Options(base)
	want := map[string]any{"format": "yaml", "scope": "user", "user_id": "42"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	if base["scope"] != "system" {
		t.Fatalf("base options must not be mutated")
	}
}

func TestScopesContext(t *testing.T) {
	if _, ok := ScopesFromContext(context.Background()); ok {
		t.Fatalf("expected no scopes on a bare context")
	}
	ctx := WithScopes(context.Background(), System(), User("7"))
	scopes, ok := ScopesFromContext(ctx)
	if !ok || len(scopes) != 2 {
		t.Fatalf("expected two scopes, got %v", scopes)
	}
	if scopes[1].ID() != "7" {
		t.Fatalf("expected user scope to carry id 7, got %q", scopes[1].ID())
	}
}
