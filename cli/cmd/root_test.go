package cmd

import "testing"

func TestBuildRootCmd(t *testing.T) {
	t.Parallel()
	root := BuildRootCmd()

	want := []string{"build", "clean", "analyze", "dedup"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Root command is missing the %q subcommand", name)
		}
	}
}
