package execctx

import (
	"errors"
	"testing"

	"elliptics-go/pkg/dcerr"
	"elliptics-go/pkg/dckey"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	src := dckey.RawID{1, 2, 3}
	c := New(FlagSrcBlock, src, "my.event", []byte("payload"))

	buf := c.Serialize()
	parsed, err := Parse(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Event() != "my.event" {
		t.Fatalf("unexpected event: %q", parsed.Event())
	}
	if string(parsed.Data()) != "payload" {
		t.Fatalf("unexpected data: %q", parsed.Data())
	}
	if parsed.Header().SourceID != src {
		t.Fatal("unexpected source id")
	}
	if !parsed.Header().IsSrcBlock() {
		t.Fatal("expected FlagSrcBlock to round-trip")
	}
	if parsed.IsFinal() {
		t.Fatal("did not expect IsFinal without FlagFinish")
	}
}

func TestParseRejectsSizeMismatch(t *testing.T) {
	c := New(0, dckey.RawID{}, "ev", []byte("data"))
	buf := c.Serialize()
	if _, err := Parse(buf[:len(buf)-1]); !errors.Is(err, dcerr.InvalidArgument) {
		t.Fatalf("expected an invalid-argument error for a truncated buffer, got %v", err)
	}
	if _, err := Parse(append(buf, 'x')); !errors.Is(err, dcerr.InvalidArgument) {
		t.Fatalf("expected an invalid-argument error for an over-long buffer, got %v", err)
	}
}

func TestParseRejectsTooShortForHeader(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}); !errors.Is(err, dcerr.InvalidArgument) {
		t.Fatalf("expected an invalid-argument error for a buffer shorter than the header, got %v", err)
	}
}

func TestCopyInheritsFlagsAndSourceID(t *testing.T) {
	src := dckey.RawID{9}
	original := New(FlagReply|FlagFinish, src, "ev1", []byte("a"))
	copied := Copy(original, "ev2", []byte("bb"))

	if copied.Header().SourceID != src {
		t.Fatal("expected Copy to inherit the source id")
	}
	if !copied.Header().IsReply() || !copied.Header().IsFinish() {
		t.Fatal("expected Copy to inherit the flags")
	}
	if copied.Event() != "ev2" || string(copied.Data()) != "bb" {
		t.Fatal("expected Copy to carry the new event and data")
	}
}

func TestNewCopiesDataDefensively(t *testing.T) {
	data := []byte("mutate-me")
	c := New(0, dckey.RawID{}, "ev", data)
	data[0] = 'X'
	if c.Data()[0] != 'm' {
		t.Fatal("expected New to copy the data slice, not alias it")
	}
}
