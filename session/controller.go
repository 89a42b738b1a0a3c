// Package session is the façade over the authentication subsystem: login,
// registration, federated-login completion, logout, initialization on
// process start, and the routing gate that decides whether a freshly
// authenticated user goes to onboarding or to the main application.
//
// The controller owns the in-memory session state. All mutation funnels
// through it; the rest of the application reads copies and subscribes to
// changes.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/federated"
	"github.com/ledgerline/ledgerline-go/identity"
	"github.com/ledgerline/ledgerline-go/refresh"
	"github.com/ledgerline/ledgerline-go/token"
	"github.com/ledgerline/ledgerline-go/transport"
)

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"

	// serviceUnavailableMsg is shown instead of an authentication error when
	// the backend cannot be reached at all.
	serviceUnavailableMsg = "service unavailable, please try again later"
	genericLoginFailedMsg = "login failed, please check your credentials"

	defaultLoadingWatchdog = 15 * time.Second
)

// Credentials are the password-login inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration holds the fields of the registration form.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Controller drives the session lifecycle.
type Controller struct {
	baseURL         string
	store           credentials.Store
	coordinator     *refresh.Coordinator
	client          *transport.Client
	livenessTimeout time.Duration
	loadingWatchdog time.Duration

	lock      sync.RWMutex
	state     State
	observers []func(State)
}

// Option configures a Controller.
type Option func(*controllerSettings)

type controllerSettings struct {
	httpClient      *http.Client
	livenessTimeout time.Duration
	loadingWatchdog time.Duration
}

// WithHTTPClient replaces the HTTP client used for all calls, including
// renewal and the liveness probe.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *controllerSettings) {
		s.httpClient = hc
	}
}

// WithLivenessTimeout bounds the startup reachability probe.
func WithLivenessTimeout(timeout time.Duration) Option {
	return func(s *controllerSettings) {
		s.livenessTimeout = timeout
	}
}

// WithLoadingWatchdog bounds how long the loading flag may stay set if an
// operation stalls.
func WithLoadingWatchdog(timeout time.Duration) Option {
	return func(s *controllerSettings) {
		s.loadingWatchdog = timeout
	}
}

// NewController wires the session subsystem for one API origin: renewal
// call, single-flight coordinator, and intercepted transport.
func NewController(baseURL string, store credentials.Store, options ...Option) (*Controller, error) {
	if baseURL == "" {
		return nil, errors.New("[NewController] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[NewController] store is required")
	}

	settings := &controllerSettings{
		loadingWatchdog: defaultLoadingWatchdog,
	}
	for _, opt := range options {
		opt(settings)
	}

	controller := &Controller{
		baseURL:         baseURL,
		store:           store,
		livenessTimeout: settings.livenessTimeout,
		loadingWatchdog: settings.loadingWatchdog,
		state:           State{Status: StatusUnauthenticated},
	}

	coordinator, err := refresh.NewCoordinator(
		store,
		transport.NewRenewFunc(baseURL, settings.httpClient),
		refresh.WithFatalHook(controller.onFatalRenewal),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[NewController] creating refresh coordinator")
	}
	controller.coordinator = coordinator

	clientOptions := []transport.Option{}
	if settings.httpClient != nil {
		clientOptions = append(clientOptions, transport.WithHTTPClient(settings.httpClient))
	}
	client, err := transport.NewClient(baseURL, store, coordinator, clientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[NewController] creating transport client")
	}
	controller.client = client

	return controller, nil
}

// Client exposes the intercepted transport so business-data consumers issue
// every authenticated call through the same pipeline.
func (c *Controller) Client() *transport.Client {
	return c.client
}

// Profile returns the authenticated user's canonical profile.
func (c *Controller) Profile() (*identity.Profile, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.state.Status != StatusAuthenticated || c.state.User == nil {
		return nil, NotAuthenticatedErr
	}
	return c.state.User, nil
}

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.state
}

// OnChange subscribes to session-state changes. Observers receive a copy.
func (c *Controller) OnChange(fn func(State)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.observers = append(c.observers, fn)
}

// Initialize validates any stored credential on process start. It first
// checks the backend is reachable at all (any HTTP status counts as
// reachable) so a down server surfaces as "service unavailable" rather than
// as a login failure. A stored, expired access token is renewed; the
// identity is then normalized from the decoded token claims plus the stored
// envelope, without a network call.
func (c *Controller) Initialize(ctx context.Context) (Route, error) {
	defer c.beginLoading(ctx, StatusInitializing)()

	if err := transport.Ping(ctx, c.baseURL, c.livenessTimeout); err != nil {
		c.reset(serviceUnavailableMsg)
		if clearErr := c.store.Clear(); clearErr != nil {
			log.Err(clearErr).Msg("failed to clear credentials on unreachable backend")
		}
		return RouteLogin, errors.Wrap(err, "[Controller.Initialize] backend unreachable")
	}

	pair, err := c.store.LoadPair()
	if err != nil {
		c.reset("")
		return RouteLogin, errors.Wrap(err, "[Controller.Initialize] loading credentials")
	}
	if pair == nil || pair.AccessToken == "" {
		c.reset("")
		return RouteLogin, nil
	}

	accessToken := pair.AccessToken
	if token.IsExpired(accessToken) {
		accessToken, err = c.coordinator.Refresh(ctx)
		if err != nil {
			// Coordinator already tore the session down.
			return RouteLogin, errors.Wrap(err, "[Controller.Initialize] renewing stored credential")
		}
	}

	claims, err := token.Decode(accessToken)
	if err != nil {
		c.reset("")
		if clearErr := c.store.Clear(); clearErr != nil {
			log.Err(clearErr).Msg("failed to clear undecodable credentials")
		}
		return RouteLogin, errors.Wrap(err, "[Controller.Initialize] decoding stored credential")
	}

	envelope, err := c.store.LoadEnvelope()
	if err != nil {
		log.Err(err).Msg("failed to load stored envelope")
	}

	profile := identity.Normalize(map[string]any(claims), map[string]any(envelope))
	c.setAuthenticated(profile, envelope)
	return c.routeFor(profile), nil
}

// Login performs password login. A server-supplied failure message is
// surfaced verbatim when available.
func (c *Controller) Login(ctx context.Context, creds Credentials) (Route, error) {
	defer c.beginLoading(ctx, StatusUnauthenticated)()

	var data map[string]any
	if err := c.client.Post(ctx, loginPath, creds, &data); err != nil {
		c.setError(serverMessage(err, genericLoginFailedMsg))
		return RouteLogin, errors.Wrap(err, "[Controller.Login] login request")
	}

	return c.handleAuthResponse(data)
}

// Register creates an account and logs the new user in.
func (c *Controller) Register(ctx context.Context, fields Registration) (Route, error) {
	defer c.beginLoading(ctx, StatusUnauthenticated)()

	var data map[string]any
	if err := c.client.Post(ctx, registerPath, fields, &data); err != nil {
		c.setError(serverMessage(err, "registration failed"))
		return RouteLogin, errors.Wrap(err, "[Controller.Register] register request")
	}

	return c.handleAuthResponse(data)
}

// CompleteFederatedLogin finishes a third-party login. raw is either the
// already-parsed completion object or a URL-encoded JSON string; the
// federated response shape differs from the password-login one, so any
// structural mismatch fails with a descriptive error rather than producing a
// half-populated session.
func (c *Controller) CompleteFederatedLogin(ctx context.Context, raw any) (Route, error) {
	defer c.beginLoading(ctx, StatusUnauthenticated)()

	payload, err := federated.DecodePayload(raw)
	if err != nil {
		c.setError("federated login failed")
		return RouteLogin, errors.Wrap(err, "[Controller.CompleteFederatedLogin] decoding payload")
	}

	data := federated.Unwrap(payload)
	if _, ok := extractPair(data); !ok {
		c.setError("federated login failed")
		return RouteLogin, errors.Wrap(MalformedResponseErr, "[Controller.CompleteFederatedLogin] response missing authentication data")
	}

	return c.handleAuthResponse(data)
}

// Logout clears all persisted and in-memory session state unconditionally.
func (c *Controller) Logout() error {
	err := c.store.Clear()
	c.reset("")
	if err != nil {
		return errors.Wrap(err, "[Controller.Logout] clearing credentials")
	}
	return nil
}

// CompleteOnboarding records that the user finished account setup, so the
// business gate routes to the main application from now on.
func (c *Controller) CompleteOnboarding() error {
	if err := c.store.SetOnboarded(true); err != nil {
		return errors.Wrap(err, "[Controller.CompleteOnboarding] persisting onboarding flag")
	}
	return nil
}

// handleAuthResponse is shared by login, registration, and federated
// completion: persist the credential pair and envelope, normalize identity,
// update state, and evaluate the business gate.
func (c *Controller) handleAuthResponse(data map[string]any) (Route, error) {
	pair, ok := extractPair(data)
	if !ok {
		c.setError("login failed")
		return RouteLogin, errors.Wrap(MalformedResponseErr, "[Controller.handleAuthResponse] response missing credential pair")
	}

	if err := c.store.SavePair(pair); err != nil {
		c.setError("login failed")
		return RouteLogin, errors.Wrap(err, "[Controller.handleAuthResponse] persisting credentials")
	}

	envelope := credentials.Envelope(data)
	if err := c.store.SaveEnvelope(envelope); err != nil {
		log.Err(err).Msg("failed to persist session envelope")
	}

	rawIdentity := data
	if payload, ok := data["payload"].(map[string]any); ok {
		rawIdentity = payload
	}

	profile := identity.Normalize(rawIdentity, data)
	c.setAuthenticated(profile, envelope)
	return c.routeFor(profile), nil
}

// routeFor is the business gate: no businesses and no recorded onboarding
// means the user has not finished setup and must not land on an empty main
// application.
func (c *Controller) routeFor(profile *identity.Profile) Route {
	if profile == nil {
		return RouteLogin
	}
	if len(profile.Businesses) == 0 && !c.store.Onboarded() {
		return RouteOnboarding
	}
	return RouteMain
}

// beginLoading sets the loading flag and returns the function that clears
// it. A watchdog bound to the same operation clears the flag if the
// operation stalls past the bound, and is cancelled the moment the operation
// settles.
func (c *Controller) beginLoading(ctx context.Context, status Status) func() {
	c.mutate(func(s *State) {
		s.IsLoading = true
		s.Status = status
	})

	watchdogCtx, cancel := context.WithCancel(ctx)
	go func() {
		timer := time.NewTimer(c.loadingWatchdog)
		defer timer.Stop()
		select {
		case <-watchdogCtx.Done():
		case <-timer.C:
			log.Warn().Msg("loading flag stuck past watchdog bound, clearing")
			c.mutate(func(s *State) {
				s.IsLoading = false
			})
		}
	}()

	return func() {
		cancel()
		c.mutate(func(s *State) {
			s.IsLoading = false
		})
	}
}

func (c *Controller) setAuthenticated(profile *identity.Profile, envelope credentials.Envelope) {
	c.mutate(func(s *State) {
		s.Status = StatusAuthenticated
		s.User = profile
		s.Envelope = envelope
		s.Err = ""
	})
}

func (c *Controller) setError(msg string) {
	c.mutate(func(s *State) {
		s.Status = StatusUnauthenticated
		s.User = nil
		s.Envelope = nil
		s.Err = msg
	})
}

// reset returns the state to unauthenticated, keeping only the given error
// message.
func (c *Controller) reset(errMsg string) {
	c.mutate(func(s *State) {
		loading := s.IsLoading
		*s = State{Status: StatusUnauthenticated, IsLoading: loading, Err: errMsg}
	})
}

// onFatalRenewal is invoked by the refresh coordinator after it has cleared
// persisted credentials.
func (c *Controller) onFatalRenewal(cause error) {
	c.reset(cause.Error())
}

// mutate applies fn under the lock and notifies observers with a copy.
func (c *Controller) mutate(fn func(*State)) {
	c.lock.Lock()
	fn(&c.state)
	snapshot := c.state
	observers := make([]func(State), len(c.observers))
	copy(observers, c.observers)
	c.lock.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

// extractPair locates the credential pair inside an auth response, probing
// the shapes the different login paths produce.
func extractPair(data map[string]any) (credentials.Pair, bool) {
	for _, path := range [][]string{
		{"authenticationData"},
		{"payload", "authenticationData"},
		{"data", "authenticationData"},
	} {
		if m, ok := dig(data, path); ok {
			pair := pairFrom(m)
			if pair.AccessToken != "" {
				return pair, true
			}
		}
	}

	// Flat shape: tokens at the top level.
	pair := pairFrom(data)
	return pair, pair.AccessToken != ""
}

func pairFrom(m map[string]any) credentials.Pair {
	access, _ := m["accessToken"].(string)
	refreshToken, _ := m["refreshToken"].(string)
	return credentials.Pair{AccessToken: access, RefreshToken: refreshToken}
}

func dig(data map[string]any, path []string) (map[string]any, bool) {
	current := data
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// serverMessage extracts the server-supplied message from an API error,
// falling back to a generic one.
func serverMessage(err error, fallback string) string {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
