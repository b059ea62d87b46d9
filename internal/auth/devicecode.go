package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// DeviceCodeAuth provides authentication via device code flow.
// This is used as a fallback when the broker is not available.
type DeviceCodeAuth struct {
	client public.Client
	scopes []string
	prompt io.Writer

	mu    sync.Mutex
	token *Token
}

// NewDeviceCodeAuth creates a new device code auth client. The MSAL cache
// is persisted under the user cache directory.
func NewDeviceCodeAuth(clientID string, scopes []string) (*DeviceCodeAuth, error) {
	if clientID == "" {
		clientID = DefaultClientID
	}

	opts := []public.Option{public.WithAuthority(DefaultAuthority)}

	cacheFile, err := cacheFilePath()
	if err != nil {
		slog.Warn("could not determine cache file path", "error", err)
	} else {
		opts = append(opts, public.WithCache(&fileCache{path: cacheFile}))
	}

	client, err := public.New(clientID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create MSAL client: %w", err)
	}

	return &DeviceCodeAuth{
		client: client,
		scopes: scopes,
		prompt: os.Stderr,
	}, nil
}

// GetToken acquires an access token, using cached token if valid.
func (d *DeviceCodeAuth) GetToken(ctx context.Context) (*Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token.valid(time.Now()) {
		return d.token, nil
	}

	accounts, err := d.client.Accounts(ctx)
	if err != nil {
		slog.Debug("could not get cached accounts", "error", err)
	}

	for _, acct := range accounts {
		result, err := d.client.AcquireTokenSilent(ctx, d.scopes, public.WithSilentAccount(acct))
		if err == nil {
			d.token = &Token{
				AccessToken: result.AccessToken,
				ExpiresOn:   result.ExpiresOn,
				AccountID:   acct.HomeAccountID,
			}
			return d.token, nil
		}
		slog.Debug("silent auth failed for account", "account", acct.PreferredUsername, "error", err)
	}

	slog.Info("no cached credentials, starting device code flow")
	token, err := d.acquireWithDeviceCode(ctx)
	if err != nil {
		return nil, err
	}

	d.token = token
	return token, nil
}

// acquireWithDeviceCode performs the device code flow.
func (d *DeviceCodeAuth) acquireWithDeviceCode(ctx context.Context) (*Token, error) {
	dc, err := d.client.AcquireTokenByDeviceCode(ctx, d.scopes)
	if err != nil {
		return nil, fmt.Errorf("start device code flow: %w", err)
	}

	fmt.Fprintf(d.prompt, "\n"+
		"To sign in, use a web browser to open the page %s\n"+
		"and enter the code %s to authenticate.\n\n",
		dc.Result.VerificationURL,
		dc.Result.UserCode)

	result, err := dc.AuthenticationResult(ctx)
	if err != nil {
		return nil, fmt.Errorf("device code auth: %w", err)
	}

	return &Token{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		AccountID:   result.Account.HomeAccountID,
	}, nil
}

// Close is a no-op for device code auth.
func (d *DeviceCodeAuth) Close() error {
	return nil
}

// fileCache persists the MSAL token cache to a file.
type fileCache struct {
	path string
}

func (f *fileCache) Replace(ctx context.Context, c cache.Unmarshaler, hints cache.ReplaceHints) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Unmarshal(data)
}

func (f *fileCache) Export(ctx context.Context, c cache.Marshaler, hints cache.ExportHints) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

// cacheFilePath returns the path for the MSAL token cache file.
func cacheFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "sleeptrack", "msal_token_cache.json"), nil
}
