package internal

import "time"

type BackoffFlags uint8

const (
	BackoffHasPriority BackoffFlags = 1 << iota
	BackoffCriticalPath
)

const backoffMinWait = time.Millisecond

func backoffMaxWait(priority BackoffFlags) time.Duration {
	switch {
	case priority&BackoffCriticalPath != 0:
		return 10 * time.Millisecond
	default:
		return time.Second >> (priority & BackoffHasPriority)
	}
}

func NewBackoff(priority BackoffFlags) Backoff {
	return Backoff{
		wait:      uint32(backoffMinWait),
		maxWait:   uint32(backoffMaxWait(priority)),
		startWait: uint32(backoffMinWait),
	}
}

// A Backoff with a non-zero MaxWait is ready for use.
type Backoff struct {
	// wait defines the amount of time that Miss will wait on next call.
	wait uint32
	// Maximum allowable value for Wait.
	maxWait uint32
	// startWait is the intial Wait value, as well as the value that Wait takes after a call to Hit.
	startWait uint32
}

// Hit sets eb.Wait to the StartWait value.
func (eb *Backoff) Hit() {
	if eb.maxWait == 0 {
		panic("MaxWait cannot be zero")
	}
	eb.wait = eb.startWait
}

// Miss returns the current wait and increases it exponentially up to the maximum.
func (eb *Backoff) Miss() time.Duration {
	if eb.maxWait == 0 {
		panic("MaxWait cannot be zero")
	}
	wait := time.Duration(eb.wait)
	eb.wait *= 2
	if eb.wait > eb.maxWait {
		eb.wait = eb.maxWait
	}
	return wait
}

// Wait returns the duration the next Miss will return.
func (eb *Backoff) Wait() time.Duration { return time.Duration(eb.wait) }
