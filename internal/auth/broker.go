package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	brokerService   = "com.microsoft.identity.broker1"
	brokerPath      = "/com/microsoft/identity/broker1"
	brokerInterface = "com.microsoft.identity.Broker1"

	// Must be "0.0" for the current broker protocol.
	brokerProtocolVersion = "0.0"

	authTypeToken = 1
)

// Broker acquires tokens through the Microsoft Identity Broker D-Bus service,
// reusing the desktop session's cached accounts for silent sign-in.
type Broker struct {
	conn      *dbus.Conn
	clientID  string
	scopes    []string
	sessionID string

	mu          sync.Mutex
	cachedToken *Token
	account     map[string]any
}

// NewBroker creates a broker client for the given scopes.
func NewBroker(clientID string, scopes []string) *Broker {
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Broker{
		clientID:  clientID,
		scopes:    scopes,
		sessionID: newSessionID(),
	}
}

// newSessionID creates a UUID v4 for the broker session.
func newSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

func (b *Broker) connect() error {
	if b.conn != nil {
		return nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	b.conn = conn
	return nil
}

// Close closes the D-Bus connection.
func (b *Broker) Close() error {
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// IsAvailable reports whether the broker answers on the session bus.
func (b *Broker) IsAvailable(ctx context.Context) bool {
	if err := b.connect(); err != nil {
		return false
	}
	_, err := b.call(ctx, "getLinuxBrokerVersion", map[string]any{})
	return err == nil
}

// GetToken acquires an access token, silently when possible.
func (b *Broker) GetToken(ctx context.Context) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cachedToken.valid() {
		return b.cachedToken, nil
	}

	if err := b.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerNotAvailable, err)
	}

	if b.account != nil {
		token, err := b.acquireSilently(ctx, b.account)
		if err == nil {
			b.cachedToken = token
			return token, nil
		}
		slog.Debug("silent auth with cached account failed", "error", err)
	}

	accounts, err := b.accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	for _, acct := range accounts {
		token, err := b.acquireSilently(ctx, acct)
		if err == nil {
			b.account = acct
			b.cachedToken = token
			return token, nil
		}
		username, _ := acct["username"].(string)
		slog.Debug("silent auth failed for account", "username", username, "error", err)
	}

	return nil, fmt.Errorf("%w: all accounts failed silent auth", ErrAuthFailed)
}

// call makes one broker D-Bus call.
// Signature: (protocolVersion, sessionId, requestJson) -> responseJson
func (b *Broker) call(ctx context.Context, method string, request any) (map[string]any, error) {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	obj := b.conn.Object(brokerService, brokerPath)
	dbusCall := obj.CallWithContext(ctx, brokerInterface+"."+method, 0,
		brokerProtocolVersion, b.sessionID, string(reqJSON))
	if dbusCall.Err != nil {
		return nil, fmt.Errorf("dbus call %s: %w", method, dbusCall.Err)
	}

	var respStr string
	if err := dbusCall.Store(&respStr); err != nil {
		return nil, fmt.Errorf("store response: %w", err)
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(respStr), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if errObj, ok := resp["error"].(map[string]any); ok {
		errJSON, _ := json.Marshal(errObj)
		return nil, fmt.Errorf("broker error: %s", errJSON)
	}
	if errMsg, ok := resp["error"].(string); ok && errMsg != "" {
		return nil, fmt.Errorf("broker error: %s", errMsg)
	}
	return resp, nil
}

func (b *Broker) accounts(ctx context.Context) ([]map[string]any, error) {
	resp, err := b.call(ctx, "getAccounts", map[string]any{
		"clientId":    b.clientID,
		"redirectUri": DefaultRedirectURI,
	})
	if err != nil {
		return nil, err
	}

	raw, ok := resp["accounts"].([]any)
	if !ok {
		return nil, nil
	}

	accounts := make([]map[string]any, 0, len(raw))
	for _, acc := range raw {
		if m, ok := acc.(map[string]any); ok {
			accounts = append(accounts, m)
		}
	}
	return accounts, nil
}

func (b *Broker) acquireSilently(ctx context.Context, account map[string]any) (*Token, error) {
	authority := DefaultAuthority
	if realm, ok := account["realm"].(string); ok && realm != "" {
		authority = "https://login.microsoftonline.com/" + realm
	}

	params := map[string]any{
		"account":           account,
		"authority":         authority,
		"authorizationType": authTypeToken,
		"clientId":          b.clientID,
		"redirectUri":       DefaultRedirectURI,
		"requestedScopes":   b.scopes,
	}
	if username, ok := account["username"].(string); ok {
		params["username"] = username
	}

	resp, err := b.call(ctx, "acquireTokenSilently", map[string]any{
		"authParameters": params,
	})
	if err != nil {
		return nil, err
	}

	accessToken, _ := resp["accessToken"].(string)
	if accessToken == "" {
		// Newer brokers nest the result.
		if tokenResp, ok := resp["brokerTokenResponse"].(map[string]any); ok {
			accessToken, _ = tokenResp["accessToken"].(string)
			if errObj, ok := tokenResp["error"].(map[string]any); ok {
				errJSON, _ := json.Marshal(errObj)
				return nil, fmt.Errorf("token response error: %s", errJSON)
			}
		}
	}
	if accessToken == "" {
		return nil, errors.New("no access token in response")
	}

	expiresOn := time.Now().Add(time.Hour)
	if exp, ok := resp["expiresOn"].(float64); ok {
		expiresOn = time.Unix(int64(exp), 0)
	}

	accountID, _ := resp["accountId"].(string)
	if accountID == "" {
		accountID, _ = account["localAccountId"].(string)
	}

	return &Token{
		AccessToken: accessToken,
		ExpiresOn:   expiresOn,
		AccountID:   accountID,
	}, nil
}

var _ Provider = (*Broker)(nil)
