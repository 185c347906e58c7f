package main

import (
	"context"
	"fmt"
	"os"

	"tradelens/internal/cli"
	"tradelens/internal/config"
	"tradelens/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("TRADELENS_CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.Log)

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
