// Package backoff computes retry delays for failed job attempts.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry n (1-indexed).
	Delay(attempt int) time.Duration
}

// Power grows the delay as Unit * Base^attempt, capped at Max.
// With Base 5 and Unit 1s the schedule is 5s, 25s, 125s, ...
type Power struct {
	Base float64
	Unit time.Duration
	Max  time.Duration
}

func NewPower(base float64, unit, maxDelay time.Duration) *Power {
	return &Power{Base: base, Unit: unit, Max: maxDelay}
}

func (p *Power) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(p.Unit) * math.Pow(p.Base, float64(attempt))
	if p.Max > 0 && (f > float64(p.Max) || math.IsInf(f, 1)) {
		return p.Max
	}
	return time.Duration(f)
}
