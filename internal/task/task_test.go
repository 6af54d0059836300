package task

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeSucceeded},
		{"plain", errors.New("dnf exited 1"), OutcomeFailed},
		{"fault", Faultf("bad kind"), OutcomeFault},
		{"wrapped fault", fmt.Errorf("step: %w", &Fault{Value: "boom"}), OutcomeFault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFaultError(t *testing.T) {
	f := &Fault{Task: "hw:swap", Value: "index out of range"}
	if got, want := f.Error(), "internal error in task hw:swap: panic: index out of range"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestStep_CheckShortCircuits(t *testing.T) {
	ec, _ := newTestContext(t, nil)
	applied := false
	s := &Step{
		Info:  Info{ID: "tz", Summary: "timezone"},
		Check: func(context.Context, *Context) (bool, error) { return true, nil },
		Apply: func(context.Context, *Context) error { applied = true; return nil },
	}

	if err := s.Execute(context.Background(), ec); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if applied {
		t.Error("Apply ran although Check reported the goal state")
	}
}

func TestStep_NoBodyIsFault(t *testing.T) {
	ec, _ := newTestContext(t, nil)
	err := (&Step{Info: Info{ID: "empty"}}).Execute(context.Background(), ec)
	if Classify(err) != OutcomeFault {
		t.Errorf("Classify(%v) = %v, want fault", err, Classify(err))
	}
}
