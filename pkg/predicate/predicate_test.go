package predicate

import (
	"testing"

	"elliptics-go/pkg/tctl"
)

func TestFilters(t *testing.T) {
	if !Positive(0, 10) {
		t.Fatal("expected Positive to admit a successful reply with data")
	}
	if Positive(0, 0) {
		t.Fatal("did not expect Positive to admit an empty successful reply")
	}
	if Positive(-2, 10) {
		t.Fatal("did not expect Positive to admit a failed reply")
	}
	if !Negative(-2, 0) {
		t.Fatal("expected Negative to admit a failed reply")
	}
	if Negative(0, 10) {
		t.Fatal("did not expect Negative to admit a successful reply")
	}
	if !All(0, 1) || All(0, 0) {
		t.Fatal("expected All to admit only replies carrying data")
	}
	if !AllWithAck(-2, 0) {
		t.Fatal("expected AllWithAck to admit everything, including bare acks")
	}
}

func TestCheckers(t *testing.T) {
	ok := []tctl.CmdHeader{{Status: 0}}
	mixed := []tctl.CmdHeader{{Status: 0}, {Status: -2}}
	failed := []tctl.CmdHeader{{Status: -2}}

	if !NoCheck(failed, 5) {
		t.Fatal("expected NoCheck to always accept")
	}
	if !AtLeastOne(mixed, 2) {
		t.Fatal("expected AtLeastOne to accept when any header succeeded")
	}
	if AtLeastOne(failed, 1) {
		t.Fatal("did not expect AtLeastOne to accept when all headers failed")
	}
	if !AllOK(ok, 1) {
		t.Fatal("expected AllOK to accept a single successful header matching total")
	}
	if AllOK(ok, 2) {
		t.Fatal("did not expect AllOK to accept fewer headers than total")
	}
	if AllOK(mixed, 2) {
		t.Fatal("did not expect AllOK to accept a mixed result")
	}
	if Quorum(mixed, 2) {
		t.Fatal("did not expect Quorum to accept an exact half")
	}
	three := []tctl.CmdHeader{{Status: 0}, {Status: 0}, {Status: -2}}
	if !Quorum(three, 3) {
		t.Fatal("expected Quorum to accept a strict majority")
	}
}

func TestExceptionPolicyNoExceptionsDominates(t *testing.T) {
	p := ThrowAtStart | ThrowAtWait | NoExceptions
	if p.ShouldThrowAtStart() {
		t.Fatal("expected NoExceptions to suppress ShouldThrowAtStart")
	}
	if p.ShouldThrowAtWait() {
		t.Fatal("expected NoExceptions to suppress ShouldThrowAtWait")
	}
}

func TestExceptionPolicyIndividualBits(t *testing.T) {
	if (ExceptionPolicy(0)).ShouldThrowAtStart() {
		t.Fatal("expected the zero policy not to throw at start")
	}
	if !(ThrowAtStart).ShouldThrowAtStart() {
		t.Fatal("expected ThrowAtStart alone to throw at start")
	}
	if (ThrowAtStart).ShouldThrowAtWait() {
		t.Fatal("did not expect ThrowAtStart alone to throw at wait")
	}
}
