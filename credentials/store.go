// Package credentials owns the persisted authentication state of the client:
// the access/refresh token pair, the raw auth envelope returned by the server,
// and the onboarding-completion flag. Stores are pure persistence; no token
// validation happens here.
package credentials

// Pair holds the two credentials issued on login, registration, or renewal.
// The access token is short-lived and attached to every authenticated
// request; the refresh token is longer-lived and only ever sent to the
// renewal endpoint, never as a bearer credential.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Envelope is the raw server auth response, persisted verbatim alongside the
// Pair so the identity normalizer can be re-run after a restart without a
// network call.
type Envelope map[string]any

// Store persists credentials across process restarts, scoped to a single API
// origin. Load methods return nil when nothing is stored; Clear removes the
// pair, the envelope, and the onboarding flag together.
type Store interface {
	SavePair(pair Pair) error
	LoadPair() (*Pair, error)
	SaveEnvelope(env Envelope) error
	LoadEnvelope() (Envelope, error)
	SetOnboarded(done bool) error
	Onboarded() bool
	Clear() error
}
