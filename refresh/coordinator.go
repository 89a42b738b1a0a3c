// Package refresh renews the access credential using the refresh credential.
// Renewal is single-flight: however many requests race into an expired token
// or a 401 at once, at most one renewal call is ever outstanding, because
// most backends invalidate a refresh token on first use and a second parallel
// renewal would force an unnecessary logout.
package refresh

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerline/ledgerline-go/credentials"
)

var (
	// ErrNoRefreshToken is returned when the store holds no refresh token;
	// the caller must force re-authentication.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrRenewalRejected wraps any renewal failure. It is fatal: the session
	// has already been torn down and the caller must re-authenticate, not
	// retry.
	ErrRenewalRejected = errors.New("credential renewal rejected")
)

// RenewFunc issues the raw renewal call. The refresh token travels out-of-band
// (a dedicated header, never a bearer credential) and the call must bypass the
// intercepted transport. The returned pair may carry an empty refresh token
// when the server did not rotate it.
type RenewFunc func(ctx context.Context, refreshToken string) (*credentials.Pair, error)

// Coordinator serializes renewals of the access credential.
type Coordinator struct {
	store   credentials.Store
	renew   RenewFunc
	group   singleflight.Group
	onFatal func(error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithFatalHook registers a callback invoked after a fatal renewal failure has
// cleared the credential store, so the session owner can reset in-memory
// state.
func WithFatalHook(fn func(error)) Option {
	return func(c *Coordinator) {
		c.onFatal = fn
	}
}

// NewCoordinator creates a Coordinator over the given store and renewal call.
func NewCoordinator(store credentials.Store, renew RenewFunc, options ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	if renew == nil {
		return nil, errors.New("[NewCoordinator] renew func is required")
	}

	coordinator := &Coordinator{
		store:   store,
		renew:   renew,
		onFatal: func(error) {},
	}

	for _, opt := range options {
		opt(coordinator)
	}

	return coordinator, nil
}

// Refresh renews the access token and returns it. Callers that arrive while
// a renewal is outstanding share its result instead of starting a second
// call; the shared slot is released once the renewal settles, so a later,
// independent renewal can start fresh.
//
// Any failure is fatal: the credential store and envelope are cleared before
// the error is returned, and the error must be treated as "re-authenticate",
// never retried.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	accessToken, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return accessToken.(string), nil
}

func (c *Coordinator) doRefresh(ctx context.Context) (any, error) {
	pair, err := c.store.LoadPair()
	if err != nil {
		return "", c.teardown(errors.Wrap(err, "[Coordinator.doRefresh] loading credentials"))
	}
	if pair == nil || pair.RefreshToken == "" {
		return "", c.teardown(ErrNoRefreshToken)
	}

	renewed, err := c.renew(ctx, pair.RefreshToken)
	if err != nil {
		return "", c.teardown(errors.Wrapf(ErrRenewalRejected, "[Coordinator.doRefresh] %v", err))
	}
	if renewed == nil || renewed.AccessToken == "" {
		return "", c.teardown(errors.Wrap(ErrRenewalRejected, "[Coordinator.doRefresh] renewal response missing access token"))
	}

	// The server may not rotate the refresh token; keep the previous one.
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = pair.RefreshToken
	}

	if err := c.store.SavePair(*renewed); err != nil {
		return "", c.teardown(errors.Wrap(err, "[Coordinator.doRefresh] persisting renewed credentials"))
	}

	return renewed.AccessToken, nil
}

// teardown clears all persisted credential state and notifies the session
// owner. The error comes back unchanged so callers can propagate it.
func (c *Coordinator) teardown(cause error) error {
	log.Warn().Err(cause).Msg("credential renewal failed, clearing session")
	if err := c.store.Clear(); err != nil {
		log.Err(err).Msg("failed to clear credential store")
	}
	c.onFatal(cause)
	return cause
}
