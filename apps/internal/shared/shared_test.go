// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package shared

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestScopes(t *testing.T) {
	got := Scopes("  User.Read\tuser.write  https://graph.windows.net ")
	want := map[string]bool{"user.read": true, "user.write": true, "https://graph.windows.net": true}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestScopes: -want/+got:\n%s", diff)
	}
	if len(Scopes("")) != 0 {
		t.Errorf("TestScopes: empty target should produce an empty set")
	}
}

func TestContainsAll(t *testing.T) {
	stored := Scopes("user.read user.write https://graph.windows.net")
	tests := []struct {
		desc   string
		filter string
		want   bool
	}{
		{"exact", "user.read user.write https://graph.windows.net", true},
		{"reordered subset", "HTTPS://GRAPH.WINDOWS.NET user.READ", true},
		{"single", "user.write", true},
		{"empty", "", true},
		{"extra scope", "user.read mail.send", false},
	}
	for _, test := range tests {
		if got := ContainsAll(stored, Scopes(test.filter)); got != test.want {
			t.Errorf("TestContainsAll(%s): got %v, want %v", test.desc, got, test.want)
		}
	}
}

func TestWithoutDefaultScopes(t *testing.T) {
	got := JoinScopes(WithoutDefaultScopes(Scopes("openid profile offline_access user.read")))
	if got != "user.read" {
		t.Errorf("TestWithoutDefaultScopes: got %q, want %q", got, "user.read")
	}
}

func TestIntersects(t *testing.T) {
	if !Intersects(Scopes("a b"), Scopes("b c")) {
		t.Errorf("TestIntersects: {a b} and {b c} intersect")
	}
	if Intersects(Scopes("a b"), Scopes("c d")) {
		t.Errorf("TestIntersects: {a b} and {c d} do not intersect")
	}
}

func TestStripFociPrefix(t *testing.T) {
	for in, want := range map[string]string{"foci-1": "1", "FOCI-1": "1", "1": "1", "": ""} {
		if got := StripFociPrefix(in); got != want {
			t.Errorf("TestStripFociPrefix(%q): got %q, want %q", in, got, want)
		}
	}
}
