package groupraft

import "github.com/google/uuid"

// RosterCmd is the replicated log entry: "group's ordered list of
// serving states is now this".
type RosterCmd struct {
	ID     uuid.UUID `json:"id"`
	Group  int32     `json:"group"`
	States []string  `json:"states"`
}

// NewRosterCmd builds a fresh command with a random id.
func NewRosterCmd(group int32, states []string) RosterCmd {
	return RosterCmd{ID: uuid.New(), Group: group, States: append([]string(nil), states...)}
}
