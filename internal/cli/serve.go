package cli

import (
	"context"
	"fmt"

	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
	"github.com/mindfulsc/mindful/internal/server"
	"github.com/mindfulsc/mindful/internal/users"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API gateway",
	Long: `Run the mindful API gateway until interrupted.

GET / always answers {"message":"Hello World!"}. When a JWT secret is
configured (gateway.jwt_secret or MINDFUL_JWT_SECRET) the /api routes for
registration, login and the private resource are served as well. Users are
kept in redis when gateway.redis_addr is set, in memory otherwise.

Example:
  mindful serve
  PORT=8080 mindful serve
  mindful serve --port 8080 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", -1, "port to listen on (default from config, 3000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort >= 0 {
		cfg.Gateway.Port = servePort
	}

	// the gateway logs at the configured level unless --log-level was given
	if logLevel == "" {
		level, err := logging.ParseLevel(cfg.LogLevel)
		if err != nil {
			return config.ValidationError{Field: "log_level", Message: err.Error()}
		}
		logging.SetLevel(level)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return RunGateway(ctx, &cfg.Gateway, logging.Default())
}

// RunGateway builds the gateway described by cfg and serves until ctx is
// cancelled.
func RunGateway(ctx context.Context, cfg *config.GatewayConfig, logger *logging.Logger) error {
	if err := config.ValidateGatewayConfig(cfg); err != nil {
		return err
	}

	var dir users.Directory
	if cfg.RedisAddr != "" {
		rdb, err := users.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		dir = users.NewRedisDirectory(rdb)
		logger.Info("using redis user directory", "addr", cfg.RedisAddr)
	}

	srv, err := server.NewServerFromConfig(cfg, dir, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if !srv.AuthEnabled() {
		logger.Info("no JWT secret configured, serving / only")
	}
	return srv.Start(ctx)
}
