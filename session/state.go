package session

import (
	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/identity"
)

// Status is the authentication state of the session.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusInitializing
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Route is the post-authentication routing decision: a freshly authenticated
// user with no business and no completed onboarding belongs in onboarding,
// not in front of an empty main application.
type Route int

const (
	RouteLogin Route = iota
	RouteOnboarding
	RouteMain
)

func (r Route) String() string {
	switch r {
	case RouteOnboarding:
		return "onboarding"
	case RouteMain:
		return "main"
	default:
		return "login"
	}
}

// State is the in-memory session state. It is mutated only by the
// Controller; everything else reads copies. IsLoading gates rendering until
// the in-flight operation settles; Err carries the latest user-visible error
// message.
type State struct {
	Status    Status
	User      *identity.Profile
	Envelope  credentials.Envelope
	IsLoading bool
	Err       string
}
