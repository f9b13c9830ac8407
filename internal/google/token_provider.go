package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies token sources for Google API clients.
type TokenProvider interface {
	TokenSource(ctx context.Context, account string) (oauth2.TokenSource, error)
	HasToken(account string) bool
}

// FileTokenProvider serves tokens from a TokenStore and refreshes them with Config.
type FileTokenProvider struct {
	Config *oauth2.Config
	Store  *TokenStore
}

// NewFileTokenProvider creates a provider over store using conf for refreshes.
func NewFileTokenProvider(conf *oauth2.Config, store *TokenStore) *FileTokenProvider {
	return &FileTokenProvider{Config: conf, Store: store}
}

// HasToken reports whether a token is stored for account.
func (p *FileTokenProvider) HasToken(account string) bool {
	return p.Store.Has(account)
}

// TokenSource returns a refreshing, persisting token source for account.
// The token is validated once so an expired refresh token fails here rather
// than in the middle of a run.
func (p *FileTokenProvider) TokenSource(ctx context.Context, account string) (oauth2.TokenSource, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("OAuth client is not configured")
	}
	tok, err := p.Store.Load(account)
	if err != nil {
		return nil, err
	}
	ts := &savingTokenSource{
		base:    p.Config.TokenSource(ctx, tok),
		store:   p.Store,
		account: account,
		last:    tok.AccessToken,
	}
	reuse := oauth2.ReuseTokenSource(tok, ts)
	if _, err := reuse.Token(); err != nil {
		return nil, fmt.Errorf("cached token is invalid: %w", err)
	}
	return reuse, nil
}
