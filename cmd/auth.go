package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/config"
	"github.com/teemow/rejectfewer/internal/credential"
	"github.com/teemow/rejectfewer/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Google authorization and stored secrets",
	}
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newSetSecretCmd("set-key", "Store the classification API key in the system keyring",
		"Google AI API key", credential.APIKeyName))
	cmd.AddCommand(newSetSecretCmd("set-imap-password", "Store the IMAP password in the system keyring",
		"IMAP password", credential.IMAPPasswordName))
	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Gmail for an account",
		Long: `Run the OAuth consent flow for the account selected with --account. The
OAuth client is read from google.credentials_file (a "Desktop app" client
downloaded from the Google Cloud console). The token is cached under
google.token_dir and refreshed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, _, err := newLogger(cfg, false); err != nil {
				return err
			}
			conf, err := google.LoadClientConfig(cfg.Google.CredentialsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = google.Login(cmd.Context(), conf, google.NewTokenStore(cfg.Google.TokenDir), cfg.Account, google.LoginOptions{
				ListenAddr: listenAddr,
				OpenURL: func(url string) {
					fmt.Fprintf(out, "Open this URL in your browser to authorize account %q:\n\n%s\n\n", cfg.Account, url)
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Account %q is authorized.\n", cfg.Account)
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8888", "Loopback address receiving the OAuth redirect")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the cached Google token for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := google.NewTokenStore(cfg.Google.TokenDir).Delete(cfg.Account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed the cached token for account %q.\n", cfg.Account)
			return nil
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which credentials are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			creds, err := credential.Open(config.Dir())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Keyring unavailable: %v\n", err)
				creds = nil
			}
			writeAuthStatus(cmd.OutOrStdout(), cfg, google.NewTokenStore(cfg.Google.TokenDir), creds)
			return nil
		},
	}
}

// writeAuthStatus reports where each credential comes from without printing it.
func writeAuthStatus(w io.Writer, cfg *config.Config, tokens *google.TokenStore, creds *credential.Store) {
	fmt.Fprintf(w, "Mailbox provider: %s\n", cfg.Mailbox.Provider)
	switch cfg.Mailbox.Provider {
	case config.ProviderIMAP:
		fmt.Fprintf(w, "IMAP account:     %s@%s\n", cfg.IMAP.Username, cfg.IMAP.Host)
		fmt.Fprintf(w, "IMAP password:    %s\n", secretSource(cfg.IMAP.Password, creds, credential.IMAPPasswordName))
	default:
		state := "not authorized (run 'rejectfewer auth login')"
		if tokens.Has(cfg.Account) {
			state = "authorized"
		}
		fmt.Fprintf(w, "Google account:   %s, %s\n", cfg.Account, state)
	}
	fmt.Fprintf(w, "API key:          %s\n", secretSource(cfg.Agent.APIKey, creds, credential.APIKeyName))
	fmt.Fprintf(w, "Model:            %s\n", cfg.Agent.Model)
}

func secretSource(configured string, creds *credential.Store, name string) string {
	if configured != "" {
		return "set from config or environment"
	}
	if creds != nil {
		if v, err := creds.Get(name); err == nil && v != "" {
			return "stored in keyring"
		}
	}
	return "not configured"
}

func newSetSecretCmd(use, short, title, name string) *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if fromStdin {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				value = string(b)
			} else {
				err := huh.NewInput().
					Title(title).
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("value cannot be empty")
						}
						return nil
					}).
					Value(&value).
					Run()
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				if err != nil {
					return err
				}
			}

			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("value cannot be empty")
			}
			creds, err := credential.Open(config.Dir())
			if err != nil {
				return err
			}
			if err := creds.Set(name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s stored in the system keyring.\n", title)
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the value from stdin instead of prompting")
	return cmd
}
