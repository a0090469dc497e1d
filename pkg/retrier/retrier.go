// Package retrier implements bounded retries driven by error classification.
//
// Upstream APIs fail in ways that want different treatment: rate limiting
// wants a short pause, an outage wants a longer one, and credential problems
// must never be retried. A Retrier executes an operation, classifies each
// failure and either sleeps a fixed, kind-specific delay and tries again or
// aborts. Delays are deliberately fixed rather than exponential so that they
// line up with the published rate-limit windows of each provider.
package retrier

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Kind is the classification of an upstream failure.
type Kind int

const (
	// RateLimited marks HTTP 429 or a provider-specific DDoS-protection
	// signal. Transient.
	RateLimited Kind = iota
	// Unavailable marks connection errors, timeouts, 5xx responses and
	// generic exchange errors. Transient.
	Unavailable
	// AuthFailed marks invalid credentials or an expired signature.
	// Terminal.
	AuthFailed
	// PermissionDenied marks valid credentials with insufficient API scope.
	// Terminal.
	PermissionDenied
	// Fatal marks an unexpected response shape or a missing required field.
	// Terminal.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Unavailable:
		return "unavailable"
	case AuthFailed:
		return "auth_failed"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "fatal"
	}
}

// Transient reports whether the kind may be retried.
func (k Kind) Transient() bool {
	return k == RateLimited || k == Unavailable
}

// Classifier maps an upstream error to its Kind.
type Classifier func(error) Kind

// ErrRetriesExhausted is returned after the maximum retry count is exceeded
// without a terminal failure.
var ErrRetriesExhausted = errors.New("maximum number of retries reached")

// ClassifiedError carries the failure kind alongside the upstream error.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// KindOf extracts the classification from an error returned by Do. The second
// return value is false when the error did not pass through a Retrier.
func KindOf(err error) (Kind, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

const (
	defaultMaxRetries       = 3
	defaultRateLimitedDelay = 15 * time.Second
	defaultUnavailableDelay = 10 * time.Second
)

// Retrier retries an operation according to the classification of its
// failures. The zero value is not usable; construct with New.
type Retrier struct {
	maxRetries int
	classify   Classifier
	delays     map[Kind]time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithMaxRetries sets how many retries follow the initial attempt.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithClassifier sets the error classification function.
func WithClassifier(c Classifier) Option {
	return func(r *Retrier) {
		r.classify = c
	}
}

// WithDelay sets the sleep duration applied before retrying a failure of the
// given kind.
func WithDelay(kind Kind, d time.Duration) Option {
	return func(r *Retrier) {
		r.delays[kind] = d
	}
}

// WithSleeper replaces the sleeping function. Used by tests to avoid real
// delays.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

// New creates a Retrier with default values and optional overrides. Without a
// classifier every error counts as Unavailable.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		maxRetries: defaultMaxRetries,
		classify:   func(error) Kind { return Unavailable },
		delays: map[Kind]time.Duration{
			RateLimited: defaultRateLimitedDelay,
			Unavailable: defaultUnavailableDelay,
		},
		sleep: sleepCtx,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do executes fn until it succeeds, fails terminally, or the retry budget is
// spent. Terminal failures and exhaustion return a *ClassifiedError wrapping
// the last upstream error; exhaustion additionally wraps ErrRetriesExhausted.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind := r.classify(err)
		if !kind.Transient() {
			return &ClassifiedError{Kind: kind, Err: err}
		}

		if attempt >= r.maxRetries {
			return &ClassifiedError{Kind: kind, Err: errors.Wrap(ErrRetriesExhausted, err.Error())}
		}

		if err := r.sleep(ctx, r.delays[kind]); err != nil {
			return &ClassifiedError{Kind: kind, Err: err}
		}
	}
}

// DoWithData executes fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
