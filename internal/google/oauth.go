package google

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes requested during login. Modify covers list, get and trash; send is
// only needed by the seed command which mails test messages to the account.
var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
}

// ErrNoToken is returned when no token has been stored for an account.
var ErrNoToken = errors.New("no Google OAuth token found")

var accountNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validateAccountName(account string) error {
	if account == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	if !accountNamePattern.MatchString(account) {
		return fmt.Errorf("invalid account name %q: only letters, digits, '-' and '_' are allowed", account)
	}
	return nil
}

// LoadClientConfig reads an OAuth client definition downloaded from the
// Google Cloud console ("Desktop app" credentials.json).
func LoadClientConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read OAuth client file %s: %w", credentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OAuth client file %s: %w", credentialsFile, err)
	}
	return conf, nil
}

// TokenStore persists one oauth2.Token per account as JSON under Dir.
type TokenStore struct {
	Dir string
}

// DefaultTokenDir returns the per-user cache directory for tokens.
func DefaultTokenDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "cache")
	}
	return filepath.Join(dir, "rejectfewer")
}

// NewTokenStore returns a store rooted at dir, or DefaultTokenDir when dir is empty.
func NewTokenStore(dir string) *TokenStore {
	if dir == "" {
		dir = DefaultTokenDir()
	}
	return &TokenStore{Dir: dir}
}

// Path returns the token file for account.
func (s *TokenStore) Path(account string) string {
	return filepath.Join(s.Dir, "google-"+account+".token")
}

// Has reports whether a token file exists for account.
func (s *TokenStore) Has(account string) bool {
	if validateAccountName(account) != nil {
		return false
	}
	_, err := os.Stat(s.Path(account))
	return err == nil
}

// Load reads the token for account.
func (s *TokenStore) Load(account string) (*oauth2.Token, error) {
	if err := validateAccountName(account); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for account %q", ErrNoToken, account)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", s.Path(account), err)
	}
	return &tok, nil
}

// Save writes tok for account with owner-only permissions.
func (s *TokenStore) Save(account string, tok *oauth2.Token) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.Path(account), data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// Delete removes the token for account. A missing file is not an error.
func (s *TokenStore) Delete(account string) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if err := os.Remove(s.Path(account)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// savingTokenSource writes refreshed tokens back to the store so a new
// access token survives process restarts.
type savingTokenSource struct {
	base    oauth2.TokenSource
	store   *TokenStore
	account string

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
		s.last = tok.AccessToken
		if err := s.store.Save(s.account, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// NewHTTPClient returns an authenticated client for ts. HTTP/2 is disabled
// because long-lived Gmail connections intermittently fail with stream errors.
func NewHTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}
}

// AuthenticationErrorMessage tells the user how to (re)authorize account.
func AuthenticationErrorMessage(account string) string {
	return fmt.Sprintf("Google OAuth token for account %q is missing or expired. "+
		"Run 'rejectfewer auth login --account %s' to authorize access to Gmail.", account, account)
}
