// Package ratelimit implements the request pacing used by the crawl engine:
// an adaptive delay shared by every worker and an optional per-host token
// bucket ceiling.
package ratelimit

import (
	"fmt"
	"sync"
)

// Defaults applied when AdaptiveConfig fields are zero.
const (
	DefaultMinDelay = 0.5
	DefaultMaxDelay = 5.0
	DefaultDecrease = 0.9
	DefaultIncrease = 1.5
)

// AdaptiveConfig holds the delay bounds, in seconds, and the scaling factors.
type AdaptiveConfig struct {
	MinDelay float64
	MaxDelay float64
	// Decrease multiplies the delay after a success (0 < Decrease <= 1).
	Decrease float64
	// Increase multiplies the delay after a failure (Increase >= 1).
	Increase float64
}

// Adaptive is a multiplicative-increase/multiplicative-decrease delay
// controller. Updates are a single locked read-modify-write each; concurrent
// callers may apply their updates in any order, which is an accepted
// approximation. The value never leaves [MinDelay, MaxDelay].
type Adaptive struct {
	mu    sync.Mutex
	delay float64
	cfg   AdaptiveConfig
}

// NewAdaptive validates cfg and returns a controller starting at MinDelay.
func NewAdaptive(cfg AdaptiveConfig) (*Adaptive, error) {
	if cfg.MaxDelay == 0 && cfg.MinDelay == 0 {
		cfg.MinDelay = DefaultMinDelay
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Decrease == 0 {
		cfg.Decrease = DefaultDecrease
	}
	if cfg.Increase == 0 {
		cfg.Increase = DefaultIncrease
	}
	if cfg.MinDelay < 0 {
		return nil, fmt.Errorf("min delay must be >= 0, got %v", cfg.MinDelay)
	}
	if cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("max delay %v must be >= min delay %v", cfg.MaxDelay, cfg.MinDelay)
	}
	if cfg.Decrease <= 0 || cfg.Decrease > 1 {
		return nil, fmt.Errorf("decrease factor must be in (0, 1], got %v", cfg.Decrease)
	}
	if cfg.Increase < 1 {
		return nil, fmt.Errorf("increase factor must be >= 1, got %v", cfg.Increase)
	}
	return &Adaptive{delay: cfg.MinDelay, cfg: cfg}, nil
}

// CurrentDelay returns the delay in seconds.
func (a *Adaptive) CurrentDelay() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.delay
}

// OnSuccess shrinks the delay, floored at MinDelay.
func (a *Adaptive) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = max(a.cfg.MinDelay, a.delay*a.cfg.Decrease)
}

// OnFailure grows the delay, capped at MaxDelay. With a MinDelay of zero the
// delay stays at zero and backoff is effectively off.
func (a *Adaptive) OnFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = min(a.cfg.MaxDelay, a.delay*a.cfg.Increase)
}

// Bounds returns the configured floor and cap.
func (a *Adaptive) Bounds() (minDelay, maxDelay float64) {
	return a.cfg.MinDelay, a.cfg.MaxDelay
}
