// Package auth acquires tokens for the work-tracking service, preferring the
// Microsoft identity broker and falling back to the device code flow.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// Well-known resource ID of the work-tracking service; ".default"
	// requests the statically configured delegated scopes.
	WorkTrackingScope = "499b84ac-1321-427f-aa17-267ca6975798/.default"

	// Default public client ID used when the config does not supply one.
	DefaultClientID = "872cd9fa-d31f-45e0-9eab-6e460a02d1f1"

	// DefaultRedirectURI is the native-app redirect used by the broker.
	DefaultRedirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"

	// DefaultAuthority is used when no tenant-specific realm is known.
	DefaultAuthority = "https://login.microsoftonline.com/common"
)

var (
	ErrBrokerNotAvailable = errors.New("microsoft identity broker not available")
	ErrNoAccounts         = errors.New("no accounts found in broker")
	ErrAuthFailed         = errors.New("authentication failed")
)

// Token is an OAuth2 access token for the work-tracking service.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
	AccountID   string
}

// valid reports whether the token is usable with a safety margin.
func (t *Token) valid() bool {
	return t != nil && time.Now().Add(5*time.Minute).Before(t.ExpiresOn)
}

// Provider acquires access tokens.
type Provider interface {
	GetToken(ctx context.Context) (*Token, error)
	Close() error
}

// NewProvider selects a token provider: the identity broker when present on
// the session bus, otherwise the device code flow.
func NewProvider(ctx context.Context, clientID string) (Provider, error) {
	scopes := []string{WorkTrackingScope}

	broker := NewBroker(clientID, scopes)
	if broker.IsAvailable(ctx) {
		slog.Info("using microsoft identity broker for authentication")
		return broker, nil
	}

	slog.Info("broker not available, using device code flow")
	return NewDeviceCodeAuth(clientID, scopes)
}
