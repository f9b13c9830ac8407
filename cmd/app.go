package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teemow/rejectfewer/internal/agent"
	"github.com/teemow/rejectfewer/internal/config"
	"github.com/teemow/rejectfewer/internal/credential"
	"github.com/teemow/rejectfewer/internal/gmail"
	"github.com/teemow/rejectfewer/internal/google"
	"github.com/teemow/rejectfewer/internal/imapmail"
	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/logging"
	"github.com/teemow/rejectfewer/internal/mailbox"
	"github.com/teemow/rejectfewer/internal/server"
	"github.com/teemow/rejectfewer/internal/store"
	"github.com/teemow/rejectfewer/internal/triage"
)

// appOptions selects the optional parts a command needs.
type appOptions struct {
	// logFile sends diagnostics to log.file instead of stderr, for the UI.
	logFile bool
	// telemetry enables the OpenTelemetry provider configured from the environment.
	telemetry bool
}

// app is the wired pipeline shared by the commands.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	provider     *instrumentation.Provider
	audit        *instrumentation.AuditLogger
	creds        *credential.Store
	tokens       *google.TokenStore
	handle       *triage.MailboxHandle
	orchestrator *triage.Orchestrator
	history      *store.SQLiteStore

	closers []func() error
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("account") {
		cfg.Account = accountName
	}
	if dryRun {
		cfg.DryRun = true
	}
	return cfg, nil
}

// newLogger builds the slog logger for cfg and installs it as the default.
func newLogger(cfg *config.Config, toFile bool) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if toFile && cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
		Output: out,
	})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// newApp wires configuration, logging, instrumentation, the mailbox handle,
// the classification agent and the run history into an orchestrator. The
// mailbox is not contacted until the first run.
func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	logger, closer, err := newLogger(cfg, opts.logFile)
	if err != nil {
		return err
	}
	a.logger = logger
	if closer != nil {
		a.closers = append(a.closers, closer.Close)
	}

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if !opts.telemetry {
		instrConfig.Enabled = false
	}
	a.provider, err = instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	a.audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	metrics := a.provider.Metrics()

	a.creds, err = credential.Open(config.Dir())
	if err != nil {
		logger.Warn("keyring unavailable, secrets must come from the config or environment", logging.Err(err))
		a.creds = nil
	}

	a.tokens = google.NewTokenStore(cfg.Google.TokenDir)
	a.handle = triage.NewMailboxHandle(a.dialer(metrics))

	if cfg.History.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o700); err != nil {
			return fmt.Errorf("creating history directory: %w", err)
		}
		a.history, err = store.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening run history: %w", err)
		}
		a.closers = append(a.closers, a.history.Close)
	}

	apiKey := a.apiKey()
	completer := agent.NewBreakerCompleter(
		agent.NewClient(agent.ClientConfig{APIKey: apiKey, BaseURL: cfg.Agent.BaseURL}),
		logger,
	)
	sessions := agent.NewInMemorySessionService()

	registry := agent.NewRegistry()
	gate := triage.NewGate(a.handle, logger)
	if err := registry.Register(triage.TrashTool(), triage.NewTrashHandler(gate, triage.TrashHandlerOptions{
		DryRun: cfg.DryRun,
		Audit:  a.audit,
		Logger: logger,
	})); err != nil {
		return fmt.Errorf("registering %s: %w", triage.TrashToolName, err)
	}

	runner, err := agent.NewRunner(agent.RunnerConfig{
		Client:        completer,
		Model:         cfg.Agent.Model,
		Instruction:   triage.Instruction,
		Registry:      registry,
		Sessions:      sessions,
		MaxIterations: cfg.Agent.MaxIterations,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	triager, err := triage.NewTriager(triage.TriagerConfig{
		Runner:       runner,
		Sessions:     sessions,
		MaxBodyChars: cfg.Agent.MaxBodyChars,
		Timeout:      cfg.Agent.Timeout,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	var recorder triage.HistoryRecorder
	if a.history != nil {
		recorder = a.history
	}
	a.orchestrator, err = triage.NewOrchestrator(triage.OrchestratorConfig{
		Handle:  a.handle,
		Triager: triager,
		History: recorder,
		Metrics: metrics,
		Logger:  logger,
		Options: triage.Options{
			Query:        cfg.Mailbox.Query,
			MaxMessages:  cfg.Mailbox.MaxMessages,
			FetchDelay:   cfg.Mailbox.FetchDelay,
			SessionDelay: cfg.Agent.SessionDelay,
			Credential:   apiKey,
			DryRun:       cfg.DryRun,
			AuthHint:     a.authHint(),
		},
	})
	return err
}

// dialer returns the connect function for the configured provider.
func (a *app) dialer(metrics *instrumentation.Metrics) triage.DialFunc {
	if a.cfg.Mailbox.Provider == config.ProviderIMAP {
		return func(ctx context.Context) (mailbox.Gateway, error) {
			c, err := imapmail.Dial(ctx, a.imapConfig(), a.logger)
			if err != nil {
				return nil, err
			}
			return c.WithMetrics(metrics), nil
		}
	}
	return func(ctx context.Context) (mailbox.Gateway, error) {
		c, err := a.gmailClient(ctx)
		if err != nil {
			return nil, err
		}
		return c.WithMetrics(metrics), nil
	}
}

func (a *app) imapConfig() imapmail.Config {
	c := a.cfg.IMAP
	password := c.Password
	if password == "" {
		password = a.secret(credential.IMAPPasswordName)
	}
	return imapmail.Config{
		Host:         c.Host,
		Port:         c.Port,
		Username:     c.Username,
		Password:     password,
		TLS:          c.TLS,
		TrashMailbox: c.TrashMailbox,
	}
}

// gmailClient opens a Gmail client for the configured account.
func (a *app) gmailClient(ctx context.Context) (*gmail.Client, error) {
	conf, err := google.LoadClientConfig(a.cfg.Google.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return gmail.NewClientForAccount(ctx, google.NewFileTokenProvider(conf, a.tokens), a.cfg.Account)
}

// apiKey returns the classification key from the config, then the keyring.
func (a *app) apiKey() string {
	if a.cfg.Agent.APIKey != "" {
		return a.cfg.Agent.APIKey
	}
	return a.secret(credential.APIKeyName)
}

func (a *app) secret(name string) string {
	if a.creds == nil {
		return ""
	}
	v, err := a.creds.Get(name)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			a.logger.Warn("reading keyring failed", slog.String("key", name), logging.Err(err))
		}
		return ""
	}
	return v
}

// authHint is shown when connecting to the mailbox fails.
func (a *app) authHint() string {
	if a.cfg.Mailbox.Provider == config.ProviderIMAP {
		return "Check imap.host and imap.username, and store the password with 'rejectfewer auth set-imap-password'."
	}
	if a.tokens.Has(a.cfg.Account) {
		return fmt.Sprintf("The stored Google token for account %q may be stale. Run 'rejectfewer auth login --account %s' to authorize again.",
			a.cfg.Account, a.cfg.Account)
	}
	return google.AuthenticationErrorMessage(a.cfg.Account)
}

// historyStore returns the history as a server.History, or nil when disabled.
func (a *app) historyStore() server.History {
	if a.history == nil {
		return nil
	}
	return a.history
}

// serverContext wraps the pipeline for the MCP and HTTP surfaces.
func (a *app) serverContext(ctx context.Context) (*server.ServerContext, error) {
	return server.NewServerContext(ctx, server.Dependencies{
		Orchestrator: a.orchestrator,
		Handle:       a.handle,
		History:      a.historyStore(),
		Metrics:      a.provider.Metrics(),
		Audit:        a.audit,
		Logger:       a.logger,
	})
}

// Close releases the mailbox connection, the history database and the
// telemetry providers.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.handle != nil {
		if err := a.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing mailbox: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
