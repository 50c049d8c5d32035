package delivery

import (
	"math/rand"
	"time"
)

// backoffDelay computes the wait before retry number `retry` (1-based).
// Exponential doubling from the base, capped, with symmetric jitter.
func backoffDelay(cfg Config, retry int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if cfg.RetryJitter > 0 {
		r := (rand.Float64()*2 - 1) * cfg.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	return d
}

// retryDelay prefers a server-provided hint over computed backoff, still
// honoring the configured cap.
func retryDelay(cfg Config, retry int, hint time.Duration, hasHint bool) time.Duration {
	if hasHint && hint > 0 {
		if hint > cfg.RetryMaxDelay {
			return cfg.RetryMaxDelay
		}
		return hint
	}
	return backoffDelay(cfg, retry)
}
