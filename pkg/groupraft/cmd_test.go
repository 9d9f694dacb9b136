package groupraft

import "testing"

func TestNewRosterCmdCopiesStatesAndAssignsID(t *testing.T) {
	states := []string{"x", "y"}
	cmd := NewRosterCmd(3, states)

	if cmd.Group != 3 {
		t.Fatalf("unexpected group: %d", cmd.Group)
	}
	if len(cmd.States) != 2 || cmd.States[0] != "x" || cmd.States[1] != "y" {
		t.Fatalf("unexpected states: %v", cmd.States)
	}

	states[0] = "mutated"
	if cmd.States[0] != "x" {
		t.Fatal("expected NewRosterCmd to copy its states slice, not alias it")
	}

	other := NewRosterCmd(3, []string{"x", "y"})
	if cmd.ID == other.ID {
		t.Fatal("expected each roster command to get a distinct id")
	}
}
