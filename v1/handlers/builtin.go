package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RegisterBuiltins wires in the handlers the testable scenarios below
// exercise: noop (instant success), sleep(seconds) (soft-mode completion /
// timeout scenarios), busy_spin(seconds) (hard-mode forced-kill scenario,
// since it never yields cooperatively) and divide_by_zero (ERROR_IN_TASK
// scenario).
func RegisterBuiltins(r *Registry) {
	r.Register("noop", func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`null`), nil
	})

	r.Register("sleep", func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error) {
		var seconds []float64
		if err := json.Unmarshal(args, &seconds); err != nil || len(seconds) == 0 {
			seconds = []float64{0}
		}
		select {
		case <-time.After(time.Duration(seconds[0] * float64(time.Second))):
			return json.RawMessage(`null`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	r.Register("busy_spin", func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error) {
		var seconds []float64
		if err := json.Unmarshal(args, &seconds); err != nil || len(seconds) == 0 {
			seconds = []float64{0}
		}
		deadline := time.Now().Add(time.Duration(seconds[0] * float64(time.Second)))
		for time.Now().Before(deadline) {
			// Deliberately non-cooperative: does not select on ctx.Done(),
			// simulating the uninterruptible soft-mode worker that is the reason hard mode exists.
		}
		return json.RawMessage(`null`), nil
	})

	r.Register("divide_by_zero", func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("division by zero")
	})
}
