package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/credentials/storefake"
	"github.com/ledgerline/ledgerline-go/session"
	"github.com/ledgerline/ledgerline-go/transport"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "password123"
)

func makeToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   "user-1",
		"email": testEmail,
		"name":  "Ada Byron",
		"exp":   float64(time.Now().Add(expiresIn).Unix()),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// testFixture holds the controller under test plus its collaborators.
type testFixture struct {
	store      *storefake.FakeStore
	controller *session.Controller
	server     *httptest.Server
	mux        *http.ServeMux
	renewals   atomic.Int32
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{store: storefake.NewFakeStore(), mux: http.NewServeMux()}

	f.mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		f.renewals.Add(1)
		if r.Header.Get(transport.RefreshTokenHeader) != "refresh-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"authenticationData": map[string]any{
					"accessToken":  makeToken(t, time.Hour),
					"refreshToken": "refresh-2",
				},
			},
		})
	})

	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	controller, err := session.NewController(
		f.server.URL,
		f.store,
		session.WithLivenessTimeout(time.Second),
		session.WithLoadingWatchdog(5*time.Second),
	)
	require.NoError(t, err)
	f.controller = controller
	return f
}

// handleLogin installs a login handler returning the given identity payload
// beside valid authentication data.
func (f *testFixture) handleLogin(t *testing.T, payload map[string]any) {
	t.Helper()

	f.mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds session.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Email != testEmail || creds.Password != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "incorrect email or password"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"authenticationData": map[string]any{
					"accessToken":  makeToken(t, time.Hour),
					"refreshToken": "refresh-1",
				},
				"payload": payload,
			},
		})
	})
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.handleLogin(t, map[string]any{
		"usersDto": map[string]any{
			"id":        "user-1",
			"email":     testEmail,
			"firstName": "Ada",
			"lastName":  "Byron",
			"businesses": []any{
				map[string]any{"id": "biz-1", "name": "Analytical Engines Ltd"},
			},
		},
	})

	route, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.Equal(t, session.RouteMain, route)

	state := f.controller.State()
	require.Equal(t, session.StatusAuthenticated, state.Status)
	require.False(t, state.IsLoading)
	require.Empty(t, state.Err)
	require.Equal(t, "Ada Byron", state.User.FullName)
	require.Len(t, state.User.Businesses, 1)

	pair, err := f.store.LoadPair()
	require.NoError(t, err)
	require.Equal(t, "refresh-1", pair.RefreshToken)

	env, err := f.store.LoadEnvelope()
	require.NoError(t, err)
	require.NotNil(t, env)
}

func TestLoginSurfacesServerMessage(t *testing.T) {
	f := setupTestFixture(t)
	f.handleLogin(t, nil)

	_, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: "wrong"})
	require.Error(t, err)

	state := f.controller.State()
	require.Equal(t, session.StatusUnauthenticated, state.Status)
	require.Equal(t, "incorrect email or password", state.Err)
	require.False(t, state.IsLoading)
}

func TestBusinessGate(t *testing.T) {
	t.Run("no businesses and no flag routes to onboarding", func(t *testing.T) {
		f := setupTestFixture(t)
		f.handleLogin(t, map[string]any{
			"usersDto": map[string]any{"id": "user-1", "email": testEmail, "businesses": []any{}},
		})

		route, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, session.RouteOnboarding, route)
	})

	t.Run("one business routes to main", func(t *testing.T) {
		f := setupTestFixture(t)
		f.handleLogin(t, map[string]any{
			"usersDto": map[string]any{
				"id": "user-1", "email": testEmail,
				"businesses": []any{map[string]any{"id": "biz-1", "name": "B"}},
			},
		})

		route, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, session.RouteMain, route)
	})

	t.Run("onboarding flag routes to main without businesses", func(t *testing.T) {
		f := setupTestFixture(t)
		f.handleLogin(t, map[string]any{
			"usersDto": map[string]any{"id": "user-1", "email": testEmail, "businesses": []any{}},
		})
		require.NoError(t, f.controller.CompleteOnboarding())

		route, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, session.RouteMain, route)
	})
}

func TestRegisterMalformedResponse(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"unexpected": "shape"}})
	})

	_, err := f.controller.Register(context.Background(), session.Registration{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, session.MalformedResponseErr)
	require.Equal(t, session.StatusUnauthenticated, f.controller.State().Status)
}

func TestInitializeUnreachableBackend(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SavePair(credentials.Pair{AccessToken: makeToken(t, time.Hour), RefreshToken: "refresh-1"}))
	f.server.Close() // backend goes away

	route, err := f.controller.Initialize(context.Background())
	require.ErrorIs(t, err, transport.ErrServiceUnavailable)
	require.Equal(t, session.RouteLogin, route)

	state := f.controller.State()
	require.Equal(t, session.StatusUnauthenticated, state.Status)
	require.Contains(t, state.Err, "service unavailable")
	require.False(t, state.IsLoading)

	// Stale credentials do not linger.
	pair, loadErr := f.store.LoadPair()
	require.NoError(t, loadErr)
	require.Nil(t, pair)
}

func TestInitializeNoStoredCredential(t *testing.T) {
	f := setupTestFixture(t)

	route, err := f.controller.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.RouteLogin, route)
	require.Equal(t, session.StatusUnauthenticated, f.controller.State().Status)
}

func TestInitializeWithValidStoredCredential(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SavePair(credentials.Pair{AccessToken: makeToken(t, time.Hour), RefreshToken: "refresh-1"}))
	require.NoError(t, f.store.SaveEnvelope(credentials.Envelope{
		"payload": map[string]any{
			"usersDto": map[string]any{
				"id":         "user-1",
				"businesses": []any{map[string]any{"id": "biz-1", "name": "B"}},
			},
		},
	}))

	route, err := f.controller.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.RouteMain, route)
	require.EqualValues(t, 0, f.renewals.Load(), "a valid token needs no renewal")

	state := f.controller.State()
	require.Equal(t, session.StatusAuthenticated, state.Status)
	// Identity reconstructed from token claims, businesses from the envelope.
	require.Equal(t, testEmail, state.User.Email)
	require.Equal(t, "Ada", state.User.FirstName)
	require.Len(t, state.User.Businesses, 1)
}

func TestInitializeRenewsExpiredStoredCredential(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.SavePair(credentials.Pair{AccessToken: makeToken(t, -time.Hour), RefreshToken: "refresh-1"}))

	route, err := f.controller.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.RouteOnboarding, route)
	require.EqualValues(t, 1, f.renewals.Load())

	pair, loadErr := f.store.LoadPair()
	require.NoError(t, loadErr)
	require.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestInitializeFatalRenewalForcesLogout(t *testing.T) {
	f := setupTestFixture(t)
	// Expired access token plus a refresh token the backend rejects.
	require.NoError(t, f.store.SavePair(credentials.Pair{AccessToken: makeToken(t, -time.Hour), RefreshToken: "revoked"}))

	route, err := f.controller.Initialize(context.Background())
	require.Error(t, err)
	require.Equal(t, session.RouteLogin, route)

	state := f.controller.State()
	require.Equal(t, session.StatusUnauthenticated, state.Status)
	require.NotEmpty(t, state.Err)
	require.False(t, state.IsLoading)

	pair, loadErr := f.store.LoadPair()
	require.NoError(t, loadErr)
	require.Nil(t, pair)
	require.EqualValues(t, 1, f.renewals.Load(), "a rejected renewal is never retried")
}

func federatedResponse(t *testing.T) map[string]any {
	t.Helper()
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"authenticationData": map[string]any{
				"accessToken":  makeToken(t, time.Hour),
				"refreshToken": "refresh-1",
			},
			"payload": map[string]any{
				"usersDto": map[string]any{
					"id":    "user-1",
					"email": testEmail,
					"businesses": []any{
						map[string]any{"id": "biz-1", "name": "B"},
					},
				},
			},
		},
	}
}

func TestCompleteFederatedLoginParsedObject(t *testing.T) {
	f := setupTestFixture(t)

	route, err := f.controller.CompleteFederatedLogin(context.Background(), federatedResponse(t))
	require.NoError(t, err)
	require.Equal(t, session.RouteMain, route)
	require.Equal(t, session.StatusAuthenticated, f.controller.State().Status)
}

func TestCompleteFederatedLoginEncodedString(t *testing.T) {
	f := setupTestFixture(t)

	raw, err := json.Marshal(federatedResponse(t))
	require.NoError(t, err)
	encoded := url.QueryEscape(string(raw))

	route, err := f.controller.CompleteFederatedLogin(context.Background(), encoded)
	require.NoError(t, err)
	require.Equal(t, session.RouteMain, route)

	pair, err := f.store.LoadPair()
	require.NoError(t, err)
	require.Equal(t, "refresh-1", pair.RefreshToken)
}

func TestCompleteFederatedLoginStructuralMismatch(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.controller.CompleteFederatedLogin(context.Background(), map[string]any{
		"success": true,
		"data":    map[string]any{"profile": "but no tokens"},
	})
	require.ErrorIs(t, err, session.MalformedResponseErr)

	state := f.controller.State()
	require.Equal(t, session.StatusUnauthenticated, state.Status)
	require.False(t, state.IsLoading)
}

func TestCompleteFederatedLoginUndecodablePayload(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.controller.CompleteFederatedLogin(context.Background(), "%%%not-json")
	require.Error(t, err)
	require.False(t, f.controller.State().IsLoading)
}

func TestLogoutClearsEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.handleLogin(t, map[string]any{"usersDto": map[string]any{"id": "user-1"}})

	_, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, f.controller.CompleteOnboarding())

	require.NoError(t, f.controller.Logout())

	state := f.controller.State()
	require.Equal(t, session.StatusUnauthenticated, state.Status)
	require.Nil(t, state.User)

	pair, loadErr := f.store.LoadPair()
	require.NoError(t, loadErr)
	require.Nil(t, pair)
	require.False(t, f.store.Onboarded())

	_, err = f.controller.Profile()
	require.ErrorIs(t, err, session.NotAuthenticatedErr)
}

func TestOnChangeObserversSeeUpdates(t *testing.T) {
	f := setupTestFixture(t)
	f.handleLogin(t, map[string]any{"usersDto": map[string]any{"id": "user-1"}})

	var authenticated atomic.Bool
	f.controller.OnChange(func(s session.State) {
		if s.Status == session.StatusAuthenticated {
			authenticated.Store(true)
		}
	})

	_, err := f.controller.Login(context.Background(), session.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.True(t, authenticated.Load())
}
