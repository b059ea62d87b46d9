package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

const (
	// ClientSecretFile is the OAuth client downloaded from the Google Cloud console.
	ClientSecretFile = "client_secret.json"

	// TokenFile caches the user's OAuth token.
	TokenFile = "token.json"
)

// ErrNoClientSecret is returned when the security directory has no OAuth client.
var ErrNoClientSecret = errors.New("google client secret not found")

// GoogleAuth obtains Google Calendar tokens. Credentials live in a
// security directory holding client_secret.json and token.json.
type GoogleAuth struct {
	dir    string
	open   func(url string) error
	prompt io.Writer
}

// NewGoogleAuth creates a Google authenticator for the given directory.
func NewGoogleAuth(securityDir string) *GoogleAuth {
	return &GoogleAuth{
		dir:    securityDir,
		open:   openBrowser,
		prompt: os.Stderr,
	}
}

// TokenSource returns a token source for the Calendar API. Without a cached
// token the user is sent through the browser consent flow first. Refreshed
// tokens are written back to the cache.
func (g *GoogleAuth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}

	path := filepath.Join(g.dir, TokenFile)
	tok, err := readToken(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("no cached google token, starting browser authorization")
		tok, err = g.authorize(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := writeToken(path, tok); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	return &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: path,
		last: tok.AccessToken,
	}, nil
}

// config loads the OAuth client configuration.
func (g *GoogleAuth) config() (*oauth2.Config, error) {
	path := filepath.Join(g.dir, ClientSecretFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoClientSecret, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return cfg, nil
}

// authorize runs the installed-app flow with a loopback redirect.
func (g *GoogleAuth) authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}

	c := *cfg
	c.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	send := func(r result) {
		select {
		case done <- r:
		default:
		}
	}

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			send(result{err: errors.New("oauth redirect: state mismatch")})
		case q.Get("error") != "":
			http.Error(w, "authorization denied", http.StatusForbidden)
			send(result{err: fmt.Errorf("oauth redirect: %s", q.Get("error"))})
		default:
			fmt.Fprintln(w, "sleeptrack is authorized. You can close this window.")
			send(result{code: q.Get("code")})
		}
	})}
	go srv.Serve(ln)
	defer srv.Close()

	fmt.Fprintf(g.prompt, "\nTo authorize sleeptrack, open this page in a browser:\n%s\n\n", authURL)
	if err := g.open(authURL); err != nil {
		slog.Debug("could not open browser", "error", err)
	}

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// savingTokenSource writes tokens back to disk whenever they change.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tok.AccessToken != s.last {
		if err := writeToken(s.path, tok); err != nil {
			slog.Warn("could not save refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// openBrowser opens a URL with the desktop's default handler.
func openBrowser(url string) error {
	return exec.Command("xdg-open", url).Start()
}
