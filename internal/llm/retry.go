package llm

import (
	"context"
	"math"
	"time"
)

// WithRetry wraps a provider with attempt-bounded retries and exponential
// backoff. After the final failed attempt the wrapper degrades to the safe
// rest fallback instead of surfacing the error; an external-call failure is
// never fatal to a tick.
func WithRetry(next Provider, maxAttempts int, backoffBase float64) Provider {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoffBase <= 0 {
		backoffBase = 2
	}
	return &retryProvider{next: next, maxAttempts: maxAttempts, backoffBase: backoffBase}
}

type retryProvider struct {
	next        Provider
	maxAttempts int
	backoffBase float64
}

func (r *retryProvider) Invoke(ctx context.Context, prompt, model string) (Response, error) {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{Text: RestFallback}, nil
		}
		resp, err := r.next.Invoke(ctx, prompt, model)
		if err == nil {
			return resp, nil
		}
		if attempt < r.maxAttempts-1 {
			backoff := time.Duration(math.Pow(r.backoffBase, float64(attempt)) * float64(time.Second))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Response{Text: RestFallback}, nil
			}
		}
	}
	return Response{Text: RestFallback}, nil
}
