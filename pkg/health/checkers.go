package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the goroutine count exceeds threshold,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// PingCheck fails when ping fails.
func PingCheck(ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// SaturationCheck fails when fill, a ratio in [0, 1], reaches threshold.
func SaturationCheck(fill func() float64, threshold float64) CheckFunc {
	return func(context.Context) error {
		if v := fill(); v >= threshold {
			return errors.Errorf("saturation %.2f reached threshold %.2f", v, threshold)
		}
		return nil
	}
}
