package membership

import "testing"

func TestGroupPathIncludesRootAndGroup(t *testing.T) {
	m := &ZKMembership{rootPath: "/elliptics"}
	got := m.groupPath(7)
	want := "/elliptics/groups/7/states"
	if got != want {
		t.Fatalf("groupPath(7) = %q, want %q", got, want)
	}
}
