package identity

import (
	"context"

	"quicknotes/internal/model"
)

type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
	TokenRefreshed
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return "UNKNOWN"
	}
}

// Event is one session change. Session is nil after sign-out.
type Event struct {
	Kind    EventKind
	Session *model.Session
}

// Provider is the identity provider as the reconciler sees it.
// Every call may block on the network and may fail.
type Provider interface {
	RequestMagicLink(ctx context.Context, email, redirectTo string) error
	CurrentSession(ctx context.Context) (*model.Session, error)
	// Subscribe registers a session-change listener. The returned func unsubscribes.
	Subscribe() (<-chan Event, func())
	ExchangeTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// CodeExchanger is implemented by providers that support the authorization-code
// (PKCE) redirect.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*model.Session, error)
}
