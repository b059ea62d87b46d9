// Package auth acquires credentials for the calendar backends: Microsoft
// tokens via the identity broker or device code flow, and Google tokens via
// a loopback OAuth flow.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	// D-Bus service details for Microsoft Identity Broker
	brokerService   = "com.microsoft.identity.broker1"
	brokerPath      = "/com/microsoft/identity/broker1"
	brokerInterface = "com.microsoft.identity.Broker1"

	// Broker protocol version - must be "0.0" for current broker
	brokerProtocolVersion = "0.0"

	// DefaultClientID is a first-party public client that the broker and
	// MSAL both accept for Graph calendar scopes.
	DefaultClientID = "d7b530a4-7680-4c23-a8bf-c52c121d2e87"

	// DefaultRedirectURI is the redirect URI for native apps.
	DefaultRedirectURI = "https://login.microsoftonline.com/common/oauth2/nativeclient"

	// DefaultAuthority is used when no tenant-specific realm is available.
	DefaultAuthority = "https://login.microsoftonline.com/common"

	// authTypeToken is the broker's authorization type for token acquisition.
	authTypeToken = 1

	// refreshBuffer is how long before expiry a cached token is replaced.
	refreshBuffer = 5 * time.Minute
)

var (
	ErrBrokerNotAvailable = errors.New("microsoft identity broker not available")
	ErrNoAccounts         = errors.New("no accounts found in broker")
	ErrAuthFailed         = errors.New("authentication failed")
)

// Token represents an OAuth2 access token.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
	AccountID   string
}

// valid reports whether t can still be used at now.
func (t *Token) valid(now time.Time) bool {
	return t != nil && now.Add(refreshBuffer).Before(t.ExpiresOn)
}

// Broker is a client for the Microsoft Identity Broker D-Bus service.
type Broker struct {
	conn      *dbus.Conn
	clientID  string
	scopes    []string
	sessionID string

	mu      sync.Mutex
	token   *Token
	account map[string]any // Full account object from broker
}

// NewBroker creates a new broker client.
func NewBroker(clientID string, scopes []string) *Broker {
	if clientID == "" {
		clientID = DefaultClientID
	}
	return &Broker{
		clientID:  clientID,
		scopes:    scopes,
		sessionID: uuid.NewString(),
	}
}

// connect establishes a D-Bus connection if not already connected.
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

// IsAvailable checks if the broker is available on D-Bus.
func (b *Broker) IsAvailable(ctx context.Context) bool {
	if err := b.connect(); err != nil {
		return false
	}

	// The version call doubles as a health check.
	_, err := b.call(ctx, "getLinuxBrokerVersion", map[string]any{})
	return err == nil
}

// GetToken acquires an access token, using cached token if valid.
func (b *Broker) GetToken(ctx context.Context) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token.valid(time.Now()) {
		slog.Debug("using cached token", "expires", b.token.ExpiresOn)
		return b.token, nil
	}

	if err := b.connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerNotAvailable, err)
	}

	accounts, err := b.accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	if b.account != nil {
		accounts = append([]map[string]any{b.account}, accounts...)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	for _, acct := range accounts {
		token, err := b.acquireSilently(ctx, acct)
		if err == nil {
			b.account = acct
			b.token = token
			return token, nil
		}
		username, _ := acct["username"].(string)
		slog.Debug("silent auth failed for account", "username", username, "error", err)
	}

	return nil, fmt.Errorf("%w: all accounts failed silent auth", ErrAuthFailed)
}

// call makes a D-Bus call to the broker.
// Signature: (protocolVersion, sessionId, requestJson) -> responseJson
func (b *Broker) call(ctx context.Context, method string, request any) (map[string]any, error) {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	slog.Debug("calling broker", "method", method)

	obj := b.conn.Object(brokerService, brokerPath)
	call := obj.CallWithContext(ctx, brokerInterface+"."+method, 0,
		brokerProtocolVersion, b.sessionID, string(reqJSON))
	if call.Err != nil {
		return nil, fmt.Errorf("dbus call %s: %w", method, call.Err)
	}

	var respStr string
	if err := call.Store(&respStr); err != nil {
		return nil, fmt.Errorf("store response: %w", err)
	}

	return decodeBrokerResponse(respStr)
}

// decodeBrokerResponse parses a broker JSON reply and surfaces its error field.
func decodeBrokerResponse(s string) (map[string]any, error) {
	var resp map[string]any
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	switch e := resp["error"].(type) {
	case map[string]any:
		errJSON, _ := json.Marshal(e)
		return nil, fmt.Errorf("broker error: %s", errJSON)
	case string:
		if e != "" {
			return nil, fmt.Errorf("broker error: %s", e)
		}
	}
	return resp, nil
}

// accounts retrieves cached accounts from the broker.
func (b *Broker) accounts(ctx context.Context) ([]map[string]any, error) {
	resp, err := b.call(ctx, "getAccounts", map[string]any{
		"clientId":    b.clientID,
		"redirectUri": DefaultRedirectURI,
	})
	if err != nil {
		return nil, err
	}

	raw, _ := resp["accounts"].([]any)
	accounts := make([]map[string]any, 0, len(raw))
	for _, a := range raw {
		if m, ok := a.(map[string]any); ok {
			accounts = append(accounts, m)
		}
	}
	return accounts, nil
}

// authParameters builds the authParameters object for token requests.
func (b *Broker) authParameters(account map[string]any) map[string]any {
	// Use tenant-specific authority if we have realm info
	authority := DefaultAuthority
	if realm, ok := account["realm"].(string); ok && realm != "" {
		authority = "https://login.microsoftonline.com/" + realm
	}

	scopes := b.scopes
	if len(scopes) == 0 {
		scopes = []string{"https://graph.microsoft.com/.default"}
	}

	params := map[string]any{
		"account":           account,
		"authority":         authority,
		"authorizationType": authTypeToken,
		"clientId":          b.clientID,
		"redirectUri":       DefaultRedirectURI,
		"requestedScopes":   scopes,
	}
	if username, ok := account["username"].(string); ok {
		params["username"] = username
	}
	return params
}

// acquireSilently gets a token without user interaction.
func (b *Broker) acquireSilently(ctx context.Context, account map[string]any) (*Token, error) {
	resp, err := b.call(ctx, "acquireTokenSilently", map[string]any{
		"authParameters": b.authParameters(account),
	})
	if err != nil {
		return nil, err
	}
	return tokenFromResponse(resp, account, time.Now())
}

// tokenFromResponse extracts a Token from an acquireTokenSilently reply.
// The access token may be at the top level or under brokerTokenResponse.
func tokenFromResponse(resp, account map[string]any, now time.Time) (*Token, error) {
	accessToken, _ := resp["accessToken"].(string)
	if accessToken == "" {
		if nested, ok := resp["brokerTokenResponse"].(map[string]any); ok {
			if errObj, ok := nested["error"].(map[string]any); ok {
				errJSON, _ := json.Marshal(errObj)
				return nil, fmt.Errorf("token response error: %s", errJSON)
			}
			accessToken, _ = nested["accessToken"].(string)
		}
	}
	if accessToken == "" {
		return nil, errors.New("no access token in response")
	}

	// Missing expiry is treated as one hour.
	expiresOn := now.Add(time.Hour)
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
