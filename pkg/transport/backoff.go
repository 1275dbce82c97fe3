package transport

import (
	"math"
	"math/rand"
	"time"

	"github.com/codeready-toolchain/relaylink/pkg/config"
)

// NextBackoffDelay returns the delay before dial attempt N (1-based). With
// jitter enabled the delay is scaled by a factor in [0.5, 1.5); a nil rng
// pins the factor to 0.5.
func NextBackoffDelay(cfg config.BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.Initial
	}
	if cfg.Initial <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.Initial) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.Max > 0 && delay > float64(cfg.Max) {
		delay = float64(cfg.Max)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
