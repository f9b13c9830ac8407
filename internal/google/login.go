package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoginOptions configures the installed-app authorization flow.
type LoginOptions struct {
	// ListenAddr is the loopback address receiving the redirect (default 127.0.0.1:8888).
	ListenAddr string
	// OpenURL presents the consent URL to the user, typically by printing it.
	OpenURL func(url string)
	// Timeout bounds how long to wait for the browser redirect.
	Timeout time.Duration
}

// Login runs the loopback redirect flow with PKCE and stores the token for account.
func Login(ctx context.Context, conf *oauth2.Config, store *TokenStore, account string, opts LoginOptions) error {
	if err := validateAccountName(account); err != nil {
		return err
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:8888"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for OAuth redirect: %w", err)
	}

	flowConf := *conf
	flowConf.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := flowConf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	srv := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			var cb callback
			switch {
			case q.Get("state") != state:
				cb.err = errors.New("OAuth state mismatch")
			case q.Get("error") != "":
				cb.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			case q.Get("code") == "":
				cb.err = errors.New("authorization response carried no code")
			default:
				cb.code = q.Get("code")
			}
			if cb.err != nil {
				http.Error(w, cb.err.Error(), http.StatusBadRequest)
			} else {
				_, _ = fmt.Fprintln(w, "Authorization complete. You can close this window.")
			}
			select {
			case results <- cb:
			default:
			}
		}),
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("OAuth redirect listener stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if opts.OpenURL != nil {
		opts.OpenURL(authURL)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var cb callback
	select {
	case cb = <-results:
	case <-ctx.Done():
		return fmt.Errorf("waiting for authorization: %w", ctx.Err())
	}
	if cb.err != nil {
		return cb.err
	}

	tok, err := flowConf.Exchange(ctx, cb.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return store.Save(account, tok)
}
