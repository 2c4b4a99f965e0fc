// Command mindful-gateway runs the mindful API gateway.
//
// It reads mindful.yaml (or the file named by -config) and the environment,
// PORT and MINDFUL_JWT_SECRET in particular, after loading a .env file from
// the working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mindfulsc/mindful/internal/cli"
	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultFileName, "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cli.RunGateway(ctx, &cfg.Gateway, logging.Default())
}
