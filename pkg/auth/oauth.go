package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/agmd/pkg/config"
)

const (
	// ClientSecretsFile holds the desktop client downloaded from the Google
	// Cloud console. It lives in the agmd config directory.
	ClientSecretsFile = "credentials.json"

	// TokenFile keeps the access and refresh token next to it.
	TokenFile = "token.json"

	// LocalhostAuthPort is where the redirect of the consent screen is
	// captured. It must match the redirect URI registered for the client.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// Scopes are the calendar permissions agmd asks for.
var Scopes = []string{
	calendar.CalendarEventsScope,
	calendar.CalendarReadonlyScope,
}

// Flow runs the OAuth2 desktop flow and keeps its token on disk.
type Flow struct {
	Dir    string
	Logger *zap.Logger
	// Out receives the consent URL.
	Out io.Writer
}

// NewFlow returns a flow rooted in the agmd config directory.
func NewFlow(logger *zap.Logger) (*Flow, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{Dir: dir, Logger: logger, Out: os.Stdout}, nil
}

func (f *Flow) tokenPath() string {
	return filepath.Join(f.Dir, TokenFile)
}

// Config reads the client secrets for scopes.
func (f *Flow) Config(scopes []string) (*oauth2.Config, error) {
	path := filepath.Join(f.Dir, ClientSecretsFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read client secret file %s", path)
	}
	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse client secret file to config")
	}
	cfg.RedirectURL = redirectURL(cfg.RedirectURL, f.Logger)
	return cfg, nil
}

// redirectURL points localhost and out-of-band redirects at the local
// callback server.
func redirectURL(raw string, logger *zap.Logger) string {
	if raw == "urn:ietf:wg:oauth:2.0:oob" {
		fixed := fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		logger.Info("overriding out-of-band redirect", zap.String("redirect", fixed))
		return fixed
	}
	u, err := url.Parse(raw)
	if err != nil {
		logger.Warn("could not parse redirect URL, using it as is", zap.String("redirect", raw), zap.Error(err))
		return raw
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		logger.Warn("redirect URL is not a localhost callback", zap.String("redirect", raw))
		return raw
	}
	if port := u.Port(); port != LocalhostAuthPort {
		if port != "" {
			logger.Warn("forcing redirect port", zap.String("configured", port), zap.String("port", LocalhostAuthPort))
		}
		u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
	}
	return u.String()
}

// Client returns an authorized HTTP client. Without a stored token it runs
// the browser consent flow first. Refreshed tokens are written back.
func (f *Flow) Client(ctx context.Context, scopes []string) (*http.Client, error) {
	cfg, err := f.Config(scopes)
	if err != nil {
		return nil, err
	}

	path := f.tokenPath()
	tok, err := tokenFromFile(path)
	if err != nil {
		f.Logger.Info("no stored token, starting web authorization", zap.String("path", path))
		tok, err = f.tokenFromWeb(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get token from web")
		}
		if err := saveToken(path, tok); err != nil {
			return nil, err
		}
	}

	src := &savingSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   path,
		last:   tok,
		logger: f.Logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Reset removes the stored token so the next Client call asks for consent
// again.
func (f *Flow) Reset() error {
	err := os.Remove(f.tokenPath())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "could not delete token file %s, please delete it manually", f.tokenPath())
	}
	if err == nil {
		f.Logger.Info("removed existing token", zap.String("path", f.tokenPath()))
	}
	return nil
}

// CalendarService returns an authorized Google Calendar service.
func (f *Flow) CalendarService(ctx context.Context) (*calendar.Service, error) {
	client, err := f.Client(ctx, Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get authenticated client for Calendar API")
	}
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create Google Calendar service")
	}
	return srv, nil
}

// tokenFromWeb serves the redirect on LocalhostAuthPort and exchanges the
// code it receives.
func (f *Flow) tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start listener on port %s", LocalhostAuthPort)
	}
	server := &http.Server{
		Handler:      callbackHandler(codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "HTTP server error")
		}
	}()
	defer server.Close()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(f.Out, "Open the following URL in your browser to authorize agmd:\n%s\n", authURL)
	f.Logger.Info("waiting for authorization code", zap.String("redirect", cfg.RedirectURL))

	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, errors.Wrap(err, "unable to retrieve token from Google")
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, errors.New("authorization timed out, please try again")
	}
}

func callbackHandler(codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			select {
			case errCh <- errors.New("authorization code not found in redirect URL"):
			default:
			}
			return
		}
		fmt.Fprint(w, "Authentication successful! You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
}

// savingSource writes every token that differs from the last one seen.
type savingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		s.logger.Debug("token refreshed, saving", zap.String("path", s.path))
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Warn("could not save refreshed token", zap.Error(err))
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, errors.Wrapf(err, "failed to decode token from file %s", path)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "could not create token directory")
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "unable to cache OAuth token to %s", path)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
