package cli

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"tradelens/internal/httpapi"
	"tradelens/internal/scheduler"
)

// jobTimeout bounds one run of a background job.
const jobTimeout = 10 * time.Minute

func addServeCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newJobsCmd(app))
}

// newScheduler registers the background jobs against svc. The email job is
// left out when delivery is disabled.
func (a *App) newScheduler(ctx context.Context, svc *Services) (*scheduler.Scheduler, error) {
	s := scheduler.New(ctx, jobTimeout, a.Logger)
	deps := scheduler.Deps{
		Subscriptions: svc.Billing,
		Profiles:      svc.Community,
		Digests:       svc.Trades,
	}
	if svc.Emails != nil {
		deps.Emails = svc.Emails
	}
	if err := scheduler.Register(s, a.Config.Cron, deps); err != nil {
		return nil, err
	}
	return s, nil
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			noCron, _ := cmd.Flags().GetBool("no-cron")

			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			svc, err := app.services()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Cron.Enabled && !noCron {
				jobs, err := app.newScheduler(ctx, svc)
				if err != nil {
					return err
				}
				jobs.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					jobs.Stop(stopCtx)
				}()
				app.Logger.Info().Int("jobs", len(jobs.Jobs())).Msg("Scheduler started")
			}

			gin.SetMode(gin.ReleaseMode)
			server := httpapi.New(httpapi.Deps{
				Config:    cfg.Server,
				JWTSecret: cfg.Credentials.JWTSecret,
				Store:     svc.Store,
				Trades:    svc.Trades,
				Journal:   svc.Journal,
				Community: svc.Community,
				Inbox:     svc.Inbox,
				Billing:   svc.Billing,
				Notifier:  svc.Notifier,
				Health:    svc.Health,
				ImagesDir: cfg.Storage.ImagesDir,
				Logger:    app.Logger,
			})

			app.Logger.Info().
				Str("addr", cfg.Server.Addr).
				Strs("providers", svc.Billing.Providers()).
				Bool("email", svc.Emails != nil).
				Msg("Starting TradeLens API")
			return server.Run(ctx)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("no-cron", false, "do not run background jobs in this process")
	return cmd
}

func newJobsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run background jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered jobs and their schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}
			jobs, err := app.newScheduler(cmd.Context(), svc)
			if err != nil {
				return err
			}

			specs := jobs.Jobs()
			if output.IsJSON() {
				return output.JSON(specs)
			}
			names := make([]string, 0, len(specs))
			for name := range specs {
				names = append(names, name)
			}
			sort.Strings(names)

			table := NewTable(output, "JOB", "SCHEDULE")
			for _, name := range names {
				spec := specs[name]
				if spec == "" {
					spec = output.DimText("manual")
				}
				table.AddRow(name, spec)
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <job>",
		Short: "Run a background job once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}
			jobs, err := app.newScheduler(cmd.Context(), svc)
			if err != nil {
				return err
			}

			start := time.Now()
			if err := jobs.RunNow(cmd.Context(), args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"job": args[0], "duration_ms": time.Since(start).Milliseconds()})
			}
			output.Success("✓ %s finished in %s", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	})

	return cmd
}
