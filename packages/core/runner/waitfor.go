package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/envex/packages/exchange"
)

// pollInterval paces getvar requests while waiting for a key.
const pollInterval = 100 * time.Millisecond

// waitForVar waits for the server at addr to come up and expose key. The
// whole wait is bounded by opts.Timeout.
func waitForVar(ctx context.Context, addr, key string, opts exchange.Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = exchange.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger.Debug("waiting for exposed var", "key", key, "timeout", timeout)

	if err := exchange.WaitForSocket(ctx, addr, opts); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", exchange.ErrConnectTimeout
		}
		return "", err
	}

	client, err := exchange.Dial(ctx, addr, opts)
	if err != nil {
		return "", err
	}
	defer client.Close()

	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		val, ok, err := client.GetVar(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return "", err
		}
		if ok {
			return val, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrVarNotFound, key)
}
