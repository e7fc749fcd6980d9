package usecase

import "time"

// DelayController paces successive batch calls. Fast round trips are
// followed by a short fraction-of-duration pause so the remote rate limiter
// is not burst; calls that already ran close to the configured timeout get
// no extra delay since the service is evidently saturated.
type DelayController struct {
	fraction      float64
	minDelay      time.Duration
	maxDelay      time.Duration
	fastThreshold time.Duration
	callTimeout   time.Duration
}

type DelayConfig struct {
	Fraction      float64
	MinDelay      time.Duration
	MaxDelay      time.Duration
	FastThreshold time.Duration
	CallTimeout   time.Duration
}

func NewDelayController(cfg DelayConfig) *DelayController {
	if cfg.Fraction <= 0 {
		cfg.Fraction = 0.1
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.FastThreshold <= 0 {
		cfg.FastThreshold = 90 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Minute
	}
	return &DelayController{
		fraction:      cfg.Fraction,
		minDelay:      cfg.MinDelay,
		maxDelay:      cfg.MaxDelay,
		fastThreshold: cfg.FastThreshold,
		callTimeout:   cfg.CallTimeout,
	}
}

func (d *DelayController) NextDelay(lastDuration time.Duration) time.Duration {
	if lastDuration <= 0 {
		return d.minDelay
	}

	// Near-timeout calls mean the service is already pacing us.
	if float64(lastDuration) >= 0.9*float64(d.callTimeout) {
		return 0
	}

	delay := time.Duration(d.fraction * float64(lastDuration))
	if lastDuration >= d.fastThreshold {
		return d.maxDelay
	}
	if delay < d.minDelay {
		return d.minDelay
	}
	if delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}
