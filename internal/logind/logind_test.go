package logind

import "testing"

func TestScopeHierarchyPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		uid   uint32
		scope string
		want  string
	}{
		{uid: 1000, scope: "session-7.scope", want: "user.slice/user-1000.slice/session-7.scope"},
		{uid: 0, scope: "session-c1.scope", want: "user.slice/user-0.slice/session-c1.scope"},
	}

	for _, tt := range tests {
		if got := scopeHierarchyPath(tt.uid, tt.scope); got != tt.want {
			t.Errorf("scopeHierarchyPath(%d, %q) = %q, want %q", tt.uid, tt.scope, got, tt.want)
		}
	}
}
