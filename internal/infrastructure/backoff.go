package infrastructure

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const defaultBackoffJitterRatio = 0.2

type BackoffDefaults struct {
	Factor    float64
	MinJitter time.Duration
	MaxJitter time.Duration
	// JitterRatio bounds the random jitter as a share of the current delay.
	JitterRatio float64
}

// BackoffPolicy grows the delay geometrically from minJitter, adds up to jitterRatio of it at random
// and caps the result at maxJitter.
type BackoffPolicy struct {
	factor      float64
	minJitter   time.Duration
	maxJitter   time.Duration
	jitterRatio float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBackoffPolicy(factor float64, minJitter, maxJitter time.Duration, defaults BackoffDefaults) *BackoffPolicy {
	if factor < 1 {
		factor = defaults.Factor
	}
	if minJitter <= 0 {
		minJitter = defaults.MinJitter
	}
	if maxJitter <= 0 {
		maxJitter = defaults.MaxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}
	jitterRatio := defaults.JitterRatio
	if jitterRatio <= 0 {
		jitterRatio = defaultBackoffJitterRatio
	}

	return &BackoffPolicy{
		factor:      factor,
		minJitter:   minJitter,
		maxJitter:   maxJitter,
		jitterRatio: jitterRatio,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	backoff := float64(p.minJitter) * math.Pow(p.factor, float64(attempt))
	if backoff > float64(p.maxJitter) {
		backoff = float64(p.maxJitter)
	}

	base := time.Duration(backoff)
	window := time.Duration(float64(base) * p.jitterRatio)
	if window <= 0 || base >= p.maxJitter {
		return base
	}

	p.mu.Lock()
	jitter := time.Duration(p.rng.Int63n(int64(window) + 1))
	p.mu.Unlock()

	return min(base+jitter, p.maxJitter)
}
