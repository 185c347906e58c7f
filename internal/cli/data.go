package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"tradelens/internal/csvio"
)

func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newMigrateCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
}

func newMigrateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}
			if err := svc.Store.Migrate(cmd.Context()); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"driver": app.Config.Database.Driver, "status": "ok"})
			}
			output.Success("✓ Schema is up to date (%s)", app.Config.Database.Driver)
			return nil
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trades as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			filter, err := tradeFilterFlags(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			path, _ := cmd.Flags().GetString("output")
			if path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := csvio.Export(cmd.Context(), w, svc.Trades, userID, filter)
			if err != nil {
				return err
			}
			if path != "" && path != "-" {
				NewOutput(cmd).Success("✓ Exported %d trades to %s", n, path)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("account", "", "filter by account id")
	cmd.Flags().String("strategy", "", "filter by strategy id")
	cmd.Flags().String("instrument", "", "filter by instrument")
	cmd.Flags().String("status", "", "filter by status")
	cmd.Flags().String("tag", "", "filter by tag")
	cmd.Flags().String("from", "", "entries at or after this time")
	cmd.Flags().String("to", "", "entries before this time")
	cmd.Flags().Int("limit", 0, "maximum number of trades (0 for all)")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import trades from CSV",
		Long: `Import trades from a CSV file with a header row. Column names follow the
export format; --map renames the columns of files from other tools, for example
--map "Symbol=instrument,Side=action,Qty=quantity".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			spec, _ := cmd.Flags().GetString("map")
			mapping, err := csvio.ParseMapping(spec)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc, err := app.services()
			if err != nil {
				return err
			}
			res, err := csvio.Import(cmd.Context(), f, svc.Trades, userID, mapping)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}

			output.Success("✓ Imported %d trades", res.Imported)
			if len(res.Errors) > 0 {
				output.Warning("%d rows skipped:", len(res.Errors))
				table := NewTable(output, "LINE", "ERROR")
				for _, e := range res.Errors {
					table.AddRow(fmt.Sprint(e.Line), e.Message)
				}
				table.Render()
			}
			return nil
		},
	}

	cmd.Flags().String("map", "", "column mapping as source=target pairs")
	return cmd
}
