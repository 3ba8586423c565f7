package backoff

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	// ErrRetriesExhausted is returned when the maximum number of retries has been reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

type (
	// RetryPolicy computes the wait before the next attempt.
	RetryPolicy interface {
		// ComputeNextInterval returns the duration to wait before the next
		// retry, or an error if no more retries should be attempted.
		ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error)
	}

	// Retrier manages the state of retry operations.
	Retrier interface {
		// Next computes the next retry interval and updates internal state.
		Next(err error) (time.Duration, error)
		// Reset resets the retrier to its initial state.
		Reset()
	}
)

const (
	noMaximumAttempts = 0

	defaultInitialInterval = 2 * time.Second
	defaultBackoffFactor   = 2.0
	defaultMaxInterval     = time.Minute
	defaultMaxAttempts     = 3
)

// NewExponentialBackoffPolicy creates a new ExponentialBackoffPolicy with unlimited retries.
func NewExponentialBackoffPolicy(initialInterval time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      noMaximumAttempts,
	}
}

// ExponentialBackoffPolicy is a retry policy that implements exponential backoff.
type ExponentialBackoffPolicy struct {
	// InitialInterval is the initial interval before the first retry.
	InitialInterval time.Duration `json:"initialInterval,omitempty"`
	// BackoffFactor is the factor by which the interval increases after each retry.
	BackoffFactor float64 `json:"backoffFactor,omitempty"`
	// MaxInterval is the maximum interval cap for exponential backoff.
	MaxInterval time.Duration `json:"maxInterval,omitempty"`
	// MaxRetries is the maximum number of retries allowed. 0 means unlimited retries.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// ComputeNextInterval computes the next retry interval using exponential backoff.
func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}

	return time.Duration(interval), nil
}

// NeverRetry is a policy that allows only the first attempt.
type NeverRetry struct{}

func (NeverRetry) ComputeNextInterval(int, time.Duration, error) (time.Duration, error) {
	return 0, ErrRetriesExhausted
}

// Settings is the user-facing description of a retry policy.
type Settings struct {
	InitialInterval time.Duration
	Factor          float64
	MaxInterval     time.Duration
	// MaxAttempts counts the first attempt. A permanently failing operation
	// runs exactly MaxAttempts times.
	MaxAttempts int
}

// DefaultSettings returns 2s initial delay, factor 2, 3 attempts.
func DefaultSettings() Settings {
	return Settings{
		InitialInterval: defaultInitialInterval,
		Factor:          defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxAttempts:     defaultMaxAttempts,
	}
}

// Policy converts the settings into a RetryPolicy.
func (s Settings) Policy() RetryPolicy {
	if s.MaxAttempts <= 1 {
		return NeverRetry{}
	}
	p := NewExponentialBackoffPolicy(s.InitialInterval)
	if s.Factor > 0 {
		p.BackoffFactor = s.Factor
	}
	if s.MaxInterval > 0 {
		p.MaxInterval = s.MaxInterval
	}
	p.MaxRetries = s.MaxAttempts - 1
	return p
}

// NewRetrier creates a new Retrier instance with the specified retry policy.
func NewRetrier(retryPolicy RetryPolicy) Retrier {
	return &retrierImpl{retryPolicy: retryPolicy}
}

type retrierImpl struct {
	retryPolicy RetryPolicy
	retryCount  int
	startTime   time.Time
	mu          sync.Mutex
}

func (r *retrierImpl) Next(err error) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}

	interval, computeErr := r.retryPolicy.ComputeNextInterval(r.retryCount, time.Since(r.startTime), err)
	if computeErr != nil {
		return 0, computeErr
	}
	r.retryCount++

	return interval, nil
}

func (r *retrierImpl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}
