// Package cli provides the command-line interface for the TradeLens service.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradelens/internal/config"
	"tradelens/internal/logging"
	"tradelens/pkg/utils"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string

	svc *Services
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	configDir := os.Getenv("TRADELENS_CONFIG_DIR")
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ConfigDir: configDir,
	}

	rootCmd := &cobra.Command{
		Use:   "tradelens",
		Short: "TradeLens - trading journal and analytics service",
		Long: `TradeLens records trades with partial exits, computes P&L and
performance analytics, keeps a daily trading journal and runs a small
community of traders who share their results.

'tradelens serve' runs the HTTP API and the background jobs. The other
commands operate on the same database for administration and scripting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.ConfigDir {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(loaded.Log)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.svc != nil {
				return app.svc.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradelens)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("user", "", "user id for user-scoped commands")
	rootCmd.PersistentFlags().String("tz", "UTC", "time zone for displayed dates")

	addCoreCommands(rootCmd, app)
	addServeCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addAdminCommands(rootCmd, app)

	return rootCmd
}

// userFlag returns the --user flag or an error when it is missing.
func userFlag(cmd *cobra.Command) (string, error) {
	id, _ := cmd.Flags().GetString("user")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("--user is required")
	}
	return id, nil
}

// location returns the --tz flag as a time.Location.
func location(cmd *cobra.Command) (*time.Location, error) {
	name, _ := cmd.Flags().GetString("tz")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid --tz %q: %w", name, err)
	}
	return loc, nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("TradeLens v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				redacted := *app.Config
				redacted.Credentials = config.Credentials{}
				return output.JSON(redacted)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.ConfigDir})
			}
			output.Println(app.ConfigDir)
			return nil
		},
	})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			serve, _ := cmd.Flags().GetBool("serve")

			err := app.Config.Validate()
			if err == nil && serve {
				err = app.Config.ValidateServe()
			}
			if err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	}
	validateCmd.Flags().Bool("serve", false, "also check the settings required by 'serve'")
	cmd.AddCommand(validateCmd)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Public URL:      %s\n", cfg.Server.PublicURL)
	output.Printf("  Rate limit:      %.1f/s (burst %d)\n", cfg.Server.RateLimit, cfg.Server.RateBurst)
	output.Println()

	output.Bold("Database")
	output.Printf("  Driver:          %s\n", cfg.Database.Driver)
	if cfg.Database.Driver == "sqlite3" {
		output.Printf("  Path:            %s\n", cfg.Database.DSN)
	}
	cacheBackend := "memory"
	if cfg.Cache.RedisURL != "" {
		cacheBackend = "redis"
	}
	output.Printf("  Cache:           %s (ttl %s)\n", cacheBackend, cfg.Cache.TTL)
	output.Println()

	output.Bold("Billing")
	output.Printf("  PayPal:          %v\n", cfg.Billing.PayPal.Enabled)
	output.Printf("  Cashfree:        %v\n", cfg.Billing.Cashfree.Enabled)
	output.Printf("  NOWPayments:     %v\n", cfg.Billing.NOWPayments.Enabled)
	for _, p := range cfg.Billing.Plans {
		output.Printf("  Plan %-12s %s %s / %d days\n", p.ID+":", p.Price, p.Currency, p.DurationDays)
	}
	output.Printf("  Trial:           %d days\n", cfg.Subscription.TrialDays)
	output.Println()

	output.Bold("Email & Notifications")
	output.Printf("  Email enabled:   %v\n", cfg.Email.Enabled)
	output.Printf("  Sender:          %s <%s>\n", cfg.Email.SenderName, cfg.Email.SenderEmail)
	output.Printf("  In-app level:    %s\n", cfg.Notify.InApp)
	output.Printf("  Email level:     %s\n", cfg.Notify.Email)
	output.Println()

	output.Bold("Background Jobs")
	output.Printf("  Enabled:         %v\n", cfg.Cron.Enabled)
	output.Printf("  Email dispatch:  %s\n", cfg.Cron.EmailDispatch)
	output.Printf("  Sweep:           %s\n", cfg.Cron.SubscriptionSweep)
	output.Printf("  Profile refresh: %s\n", cfg.Cron.ProfileRefresh)
	output.Printf("  Trade digest:    %s\n", cfg.Cron.TradeDigest)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Images:          %s\n", cfg.Storage.ImagesDir)
	output.Printf("  Max image size:  %s MB\n", utils.FormatQuantity(bytesToMB(cfg.Storage.MaxImageBytes)))
}
