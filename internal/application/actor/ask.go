package actor

import (
	"context"
	"fmt"
)

// ErrAgentStopped indicates a message could not be delivered
type ErrAgentStopped struct {
	Name string
}

func (e *ErrAgentStopped) Error() string {
	return fmt.Sprintf("agent %s is stopped", e.Name)
}

// ErrAskTimeout indicates the agent did not answer before the context ended
type ErrAskTimeout struct {
	Name  string
	Cause error
}

func (e *ErrAskTimeout) Error() string {
	return fmt.Sprintf("no reply from agent %s: %v", e.Name, e.Cause)
}

func (e *ErrAskTimeout) Unwrap() error { return e.Cause }

// Ask sends a request built around a fresh reply channel and waits for exactly
// one answer, bounded by ctx. The reply channel is buffered so a late answer
// never blocks the agent.
func Ask[M any, R any](ctx context.Context, ref Ref[M], build func(reply chan<- R) M) (R, error) {
	var zero R
	reply := make(chan R, 1)

	if !ref.Tell(build(reply)) {
		return zero, &ErrAgentStopped{Name: ref.Name()}
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return zero, &ErrAskTimeout{Name: ref.Name(), Cause: ctx.Err()}
	}
}
