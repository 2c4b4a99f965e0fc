package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/mindfulsc/mindful/internal/client"
	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
	"github.com/mindfulsc/mindful/internal/session"
	"github.com/mindfulsc/mindful/internal/state"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath     string
	logLevel       string
	storageBackend string
	storagePath    string
	backendURL     string
)

var rootCmd = &cobra.Command{
	Use:   "mindful",
	Short: "Gateway and session client for the mindful API",
	Long: `Mindful runs the API gateway and signs you in to it from the terminal.

The session (bearer token and role) is kept in local storage between
invocations. Configuration is read from mindful.yaml, then the environment
(a .env file in the working directory is loaded first), then flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("mindful version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultFileName, "path to config file")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config)")
	pf.StringVar(&storageBackend, "storage", "", "session storage backend: file, sqlite, memory")
	pf.StringVar(&storagePath, "storage-path", "", "session storage location")
	pf.StringVar(&backendURL, "backend-url", "", "API base URL (default from config)")
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads the config the way every command sees it: .env, file,
// environment, then flags.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", config.DefaultEnvFile, err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backendURL != "" {
		cfg.Client.BackendURL = backendURL
	}
	if storageBackend != "" && storageBackend != cfg.Client.Storage.Backend {
		cfg.Client.Storage.Backend = storageBackend
		cfg.Client.Storage.Path = config.DefaultStoragePath(storageBackend)
	}
	if storagePath != "" {
		cfg.Client.Storage.Path = storagePath
	}

	if err := config.ValidateClientConfig(&cfg.Client); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging applies the configured level to the default logger. The CLI
// is quiet unless asked: warnings and errors only by default.
func setupLogging(cmd *cobra.Command, _ []string) error {
	logging.Default().SetWriter(cmd.ErrOrStderr())

	name := logLevel
	if name == "" {
		name = "warn"
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return config.ValidationError{Field: "log-level", Message: err.Error()}
	}
	logging.SetLevel(level)
	return nil
}

// sessionClient bundles what the client commands need.
type sessionClient struct {
	*client.Client
	store state.Store
}

func (s *sessionClient) Close() error {
	return s.store.Close()
}

// openClient opens the configured session store and builds a client whose
// session-ending events print a sign-in hint to out.
func openClient(cfg *config.Config, out io.Writer) (*sessionClient, error) {
	store, err := state.Open(cfg.Client.Storage.Backend, cfg.Client.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	c, err := client.NewFromConfig(&cfg.Client, session.NewManager(store), logging.Default())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.NavigateOnSessionEnd(loginNavigator{out: out})

	return &sessionClient{Client: c, store: store}, nil
}

// loginNavigator is the terminal's "login screen": it tells the user how to
// sign in again.
type loginNavigator struct {
	out io.Writer
}

func (n loginNavigator) ToLogin() {
	fmt.Fprintln(n.out, "Signed out. Run 'mindful login' to sign in.")
}
