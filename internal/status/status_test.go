package status

import "testing"

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{Success, 0},
		{AlreadyRunning, -1},
		{NoMoveBlock, -2},
		{NoMoveProgress, -3},
		{IOException, -4},
		{IllegalArgs, -5},
		{Interrupted, -6},
	}
	for _, c := range cases {
		if got := c.code.ExitCode(); got != c.want {
			t.Errorf("%s.ExitCode() = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestNameServiceErrorUnwraps(t *testing.T) {
	inner := ErrIllegalArgs
	wrapped := &NameServiceError{Err: inner}
	if wrapped.Unwrap() != inner {
		t.Fatal("expected Unwrap() to return the inner error")
	}
	if wrapped.Error() == "" {
		t.Fatal("expected a non-empty error message")
	}
}
