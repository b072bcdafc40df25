package accesscode

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds each backend call with a timeout and a fibonacci
// backoff. It lives at the boundary so the bridge's algorithm stays free of
// transport concerns.
type RetryPolicy struct {
	// Timeout bounds a single attempt. Zero disables the per-attempt bound.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// BaseDelay seeds the fibonacci backoff.
	BaseDelay time.Duration
	// ShouldRetry decides whether an error is worth retrying. The default
	// retries only errors the backend client flagged as unavailable
	// (network, 5xx); auth rejections pass through untouched so the bridge
	// sees them on the first attempt.
	ShouldRetry func(error) bool
}

// DefaultRetryPolicy mirrors what the backend client's own defaults would
// give us, plus a hard per-attempt bound.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
	}
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(err)
	}

	return IsTextCode(err, TextCodeBackendUnavailable)
}

type retryingBackend struct {
	next   IdentityBackend
	policy RetryPolicy
}

var _ IdentityBackend = (*retryingBackend)(nil)

// WithRetry decorates a backend so every network call runs under the policy.
// Subscription management is local and passes through untouched.
func WithRetry(next IdentityBackend, policy RetryPolicy) IdentityBackend {
	return &retryingBackend{
		next:   next,
		policy: policy,
	}
}

func (b *retryingBackend) do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(b.policy.MaxRetries, retry.NewFibonacci(b.policy.BaseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx := ctx
		if b.policy.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, b.policy.Timeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}

		if b.policy.shouldRetry(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func (b *retryingBackend) SignUp(ctx context.Context, params SignUpParams) (Identity, error) {
	var identity Identity
	err := b.do(ctx, func(ctx context.Context) error {
		var err error
		identity, err = b.next.SignUp(ctx, params)
		return err
	})
	return identity, err
}

func (b *retryingBackend) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := b.do(ctx, func(ctx context.Context) error {
		var err error
		session, err = b.next.SignInWithPassword(ctx, email, password)
		return err
	})
	return session, err
}

func (b *retryingBackend) SignOut(ctx context.Context) error {
	return b.do(ctx, func(ctx context.Context) error {
		return b.next.SignOut(ctx)
	})
}

func (b *retryingBackend) CurrentSession(ctx context.Context) (Session, error) {
	return b.next.CurrentSession(ctx)
}

func (b *retryingBackend) OnAuthStateChange(listener AuthChangeListener) func() {
	return b.next.OnAuthStateChange(listener)
}

func (b *retryingBackend) AdminSetPassword(ctx context.Context, identityID, password string) error {
	return b.do(ctx, func(ctx context.Context) error {
		return b.next.AdminSetPassword(ctx, identityID, password)
	})
}

func (b *retryingBackend) AdminCreateIdentity(ctx context.Context, params AdminCreateParams) (Identity, error) {
	var identity Identity
	err := b.do(ctx, func(ctx context.Context) error {
		var err error
		identity, err = b.next.AdminCreateIdentity(ctx, params)
		return err
	})
	return identity, err
}

func (b *retryingBackend) AdminDeleteIdentity(ctx context.Context, identityID string) error {
	return b.do(ctx, func(ctx context.Context) error {
		return b.next.AdminDeleteIdentity(ctx, identityID)
	})
}

func (b *retryingBackend) IdentityFromToken(ctx context.Context, accessToken string) (Identity, error) {
	var identity Identity
	err := b.do(ctx, func(ctx context.Context) error {
		var err error
		identity, err = b.next.IdentityFromToken(ctx, accessToken)
		return err
	})
	return identity, err
}
