// Package circuitbreaker guards supplier adapter calls. A supplier that
// keeps failing stops receiving dispatch attempts for a cool-down period,
// so one dead partner API can't slow every fulfillment fan-out to its
// timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	Name        string
	MaxFailures int           // consecutive failures before opening
	CoolDown    time.Duration // how long to stay open before probing
	MaxProbes   int           // concurrent requests allowed while half-open
}

type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	maxProbes   int

	mutex        sync.Mutex
	state        State
	failures     int
	probes       int
	lastFailTime time.Time

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64

	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *Breaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}
	return &Breaker{
		name:        config.Name,
		maxFailures: config.MaxFailures,
		coolDown:    config.CoolDown,
		maxProbes:   config.MaxProbes,
		state:       StateClosed,
		logger:      logger,
	}
}

// Execute runs fn under the breaker. Returns ErrOpen without calling fn
// when the breaker is open or half-open probes are exhausted.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == StateOpen {
		if time.Since(b.lastFailTime) < b.coolDown {
			b.totalRejected++
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probes = 0
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.maxProbes {
			b.totalRejected++
			return ErrOpen
		}
		b.probes++
	}

	b.totalRequests++
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err != nil {
		b.totalFailures++
		b.failures++
		b.lastFailTime = time.Now()

		if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.maxFailures) {
			b.setState(StateOpen)
		}
		return
	}

	b.totalSuccesses++
	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
	}
}

// setState must be called with the mutex held.
func (b *Breaker) setState(newState State) {
	if b.state == newState {
		return
	}
	oldState := b.state
	b.state = newState

	b.logger.WithFields(logrus.Fields{
		"circuit_breaker": b.name,
		"from_state":      oldState.String(),
		"to_state":        newState.String(),
	}).Info("Circuit breaker state changed")
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) Metrics() map[string]interface{} {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return map[string]interface{}{
		"name":            b.name,
		"state":           b.state.String(),
		"failures":        b.failures,
		"total_requests":  b.totalRequests,
		"total_failures":  b.totalFailures,
		"total_successes": b.totalSuccesses,
		"total_rejected":  b.totalRejected,
		"max_failures":    b.maxFailures,
		"cooldown":        b.coolDown.String(),
	}
}

func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.setState(StateClosed)
	b.failures = 0
	b.probes = 0
	b.lastFailTime = time.Time{}
}
