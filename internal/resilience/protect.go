package resilience

import (
	"context"
	"errors"
)

// Call is a downstream operation.
type Call[In, Out any] func(ctx context.Context, in In) (Out, error)

// Fallback computes a local substitute when a call fails or is rejected. It
// must not perform I/O or block. cause is ErrOpen, ErrTimeout or the call's
// error. Returning an error surfaces ErrUpstreamUnavailable to the caller.
type Fallback[In, Out any] func(ctx context.Context, in In, cause error) (Out, error)

// Unavailable is a fallback for calls that have no meaningful substitute.
func Unavailable[In, Out any](_ context.Context, _ In, cause error) (Out, error) {
	var zero Out
	return zero, cause
}

type result[Out any] struct {
	out    Out
	err    error
	failed bool
}

// Protect wraps call with the breaker for target in r.
//
// The call runs on its own goroutine with a context that ignores the
// caller's cancellation but carries the breaker timeout. Its outcome is
// recorded exactly once when it finishes, even if the caller has already
// returned. Downstream 4xx errors are passed through untouched and count as
// healthy responses.
func Protect[In, Out any](r *Registry, target string, call Call[In, Out], fallback Fallback[In, Out]) Call[In, Out] {
	if fallback == nil {
		fallback = Unavailable[In, Out]
	}
	degrade := func(ctx context.Context, in In, cause error) (Out, error) {
		out, err := fallback(ctx, in, cause)
		if err != nil {
			var zero Out
			return zero, &UnavailableError{Target: target, Cause: cause}
		}
		return out, nil
	}

	return func(ctx context.Context, in In) (Out, error) {
		var zero Out
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		b := r.Breaker(target)
		p, ok := b.admit()
		if !ok {
			r.observeCall(target, OutcomeRejected)
			return degrade(ctx, in, ErrOpen)
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.settings.Timeout)
		done := make(chan result[Out], 1)
		go func() {
			defer cancel()
			out, err := call(callCtx, in)
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = ErrTimeout
			}
			res := result[Out]{out: out, err: err, failed: IsFailure(err)}
			b.record(p, res.failed)
			r.observeCall(target, outcomeOf(res))
			done <- res
		}()

		select {
		case res := <-done:
			return settle(ctx, in, res, degrade)
		case <-callCtx.Done():
			select {
			case res := <-done:
				return settle(ctx, in, res, degrade)
			default:
			}
			return degrade(ctx, in, ErrTimeout)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

func settle[In, Out any](ctx context.Context, in In, res result[Out], degrade Fallback[In, Out]) (Out, error) {
	switch {
	case res.err == nil:
		return res.out, nil
	case !res.failed:
		var zero Out
		return zero, res.err
	default:
		return degrade(ctx, in, res.err)
	}
}

func outcomeOf[Out any](res result[Out]) Outcome {
	switch {
	case res.failed:
		return OutcomeFailure
	case res.err != nil:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}
