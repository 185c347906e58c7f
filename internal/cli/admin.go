package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tradelens/internal/httpapi"
	"tradelens/internal/mailer"
	"tradelens/internal/models"
	"tradelens/internal/store"
	"tradelens/pkg/utils"
)

func addAdminCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newUsersCmd(app))
	rootCmd.AddCommand(newEmailsCmd(app))
	rootCmd.AddCommand(newSubscriptionsCmd(app))
	rootCmd.AddCommand(newPaymentsCmd(app))
	rootCmd.AddCommand(newRolesCmd(app))
}

func newUsersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	addCmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Register a user, starting the trial for new accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			svc, err := app.services()
			if err != nil {
				return err
			}

			user := &models.User{ID: args[0], Email: email, DisplayName: name}
			err = httpapi.Onboard(cmd.Context(), httpapi.Deps{
				Store:    svc.Store,
				Billing:  svc.Billing,
				Notifier: svc.Notifier,
			}, user)
			if err != nil {
				return err
			}
			stored, err := svc.Store.GetUser(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(stored)
			}
			output.Success("✓ User %s <%s>", stored.ID, stored.Email)
			return nil
		},
	}
	addCmd.Flags().String("email", "", "email address (required)")
	addCmd.Flags().String("name", "", "display name")
	_ = addCmd.MarkFlagRequired("email")
	cmd.AddCommand(addCmd)

	return cmd
}

func newEmailsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "Inspect and deliver the email queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Deliver one batch of due emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}
			if svc.Emails == nil {
				return fmt.Errorf("email delivery is disabled (set email.enabled)")
			}

			res, err := svc.Emails.Run(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			printDispatch(output, res)
			return nil
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and delivered emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			emails, err := svc.Store.ListEmails(cmd.Context(), store.EmailFilter{Status: models.EmailStatus(status), Limit: limit})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(emails)
			}
			if len(emails) == 0 {
				output.Dim("Queue is empty")
				return nil
			}

			table := NewTable(output, "ID", "TO", "TEMPLATE", "STATUS", "ATTEMPTS", "NEXT", "ERROR")
			for _, e := range emails {
				next := FormatDateTime(e.NextAttemptAt, loc)
				if e.Status == models.EmailSent {
					next = FormatOptionalTime(e.SentAt, loc)
				}
				table.AddRow(
					TruncateString(e.ID, 8),
					e.ToEmail,
					e.Template,
					emailStatusLabel(output, e.Status),
					fmt.Sprint(e.Attempts),
					next,
					TruncateString(e.LastError, 40),
				)
			}
			table.Render()
			return nil
		},
	}
	listCmd.Flags().String("status", "", "filter by status (pending, sending, sent, failed)")
	listCmd.Flags().Int("limit", 50, "maximum number of emails")
	cmd.AddCommand(listCmd)

	return cmd
}

func printDispatch(output *Output, res mailer.DispatchResult) {
	output.Success("✓ Sent %d of %d claimed emails", res.Sent, res.Claimed)
	if res.Retried > 0 {
		output.Warning("  %d scheduled for retry", res.Retried)
	}
	if res.Failed > 0 {
		output.Error("  %d failed permanently", res.Failed)
	}
	if res.Released > 0 {
		output.Dim("  %d stale claims released", res.Released)
	}
}

func emailStatusLabel(output *Output, status models.EmailStatus) string {
	switch status {
	case models.EmailSent:
		return output.Green(string(status))
	case models.EmailFailed:
		return output.Red(string(status))
	case models.EmailSending:
		return output.Yellow(string(status))
	}
	return string(status)
}

func newSubscriptionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Manage subscriptions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the subscription of --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			access, err := svc.Billing.Access(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(access)
			}
			if access.Subscription == nil {
				output.Dim("No subscription")
				return nil
			}
			printSubscription(output, access.Subscription, access.Active, loc)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed subscriptions and send renewal reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}

			res, err := svc.Billing.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ %d expired, %d reminded", res.Expired, res.Reminded)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <plan-id>",
		Short: "Grant a plan to --user without payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			sub, err := svc.Billing.Grant(cmd.Context(), userID, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sub)
			}
			output.Success("✓ Granted %s to %s until %s", sub.PlanID, userID, FormatDate(sub.CurrentPeriodEnd, loc))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Cancel the subscription of --user at period end",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, err := userFlag(cmd)
			if err != nil {
				return err
			}
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			sub, err := svc.Billing.Cancel(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sub)
			}
			output.Success("✓ Subscription ends %s", FormatDate(sub.CurrentPeriodEnd, loc))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "plans",
		Short: "List purchasable plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.services()
			if err != nil {
				return err
			}

			plans := svc.Billing.Plans()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"plans": plans, "providers": svc.Billing.Providers()})
			}
			table := NewTable(output, "PLAN", "NAME", "PRICE", "DAYS")
			for _, p := range plans {
				table.AddRow(p.ID, p.Name, utils.FormatMoney(p.Price, p.Currency), fmt.Sprint(p.DurationDays))
			}
			table.Render()
			output.Dim("Providers: %v", svc.Billing.Providers())
			return nil
		},
	})

	return cmd
}

func printSubscription(output *Output, sub *models.Subscription, active bool, loc *time.Location) {
	state := output.Red("inactive")
	if active {
		state = output.Green("active")
	}
	lines := []string{
		fmt.Sprintf("Plan:     %s", sub.PlanID),
		fmt.Sprintf("Status:   %s (%s)", sub.Status, state),
		fmt.Sprintf("Provider: %s", sub.Provider),
		fmt.Sprintf("Period:   %s - %s", FormatDate(sub.CurrentPeriodStart, loc), FormatDate(sub.CurrentPeriodEnd, loc)),
	}
	if sub.CancelAtPeriodEnd {
		lines = append(lines, output.Yellow("Cancels at period end"))
	}
	output.Box("Subscription", lines)
}

func newPaymentsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			var filter models.PaymentFilter
			filter.UserID, _ = cmd.Flags().GetString("user")
			filter.Provider, _ = cmd.Flags().GetString("provider")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if status, _ := cmd.Flags().GetString("status"); status != "" {
				filter.Status = models.PaymentStatus(status)
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			payments, err := svc.Billing.ListPayments(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(payments)
			}
			if len(payments) == 0 {
				output.Dim("No payments found")
				return nil
			}

			table := NewTable(output, "ID", "DATE", "USER", "PLAN", "PROVIDER", "AMOUNT", "STATUS")
			for _, p := range payments {
				status := string(p.Status)
				switch p.Status {
				case models.PaymentCompleted:
					status = output.Green(status)
				case models.PaymentFailed:
					status = output.Red(status)
				}
				table.AddRow(
					TruncateString(p.ID, 8),
					FormatDateTime(p.CreatedAt, loc),
					TruncateString(p.UserID, 12),
					p.PlanID,
					p.Provider,
					utils.FormatMoney(p.Amount, p.Currency),
					status,
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("provider", "", "filter by provider")
	cmd.Flags().String("status", "", "filter by status (pending, completed, failed, refunded)")
	cmd.Flags().Int("limit", 50, "maximum number of payments")
	return cmd
}

func newRolesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage user roles",
	}

	change := func(grant bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			role := models.Role(args[1])
			if !role.Valid() {
				return fmt.Errorf("unknown role %q (must be user, moderator or admin)", args[1])
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			verb := "Granted"
			if grant {
				err = svc.Store.GrantRole(cmd.Context(), args[0], role)
			} else {
				verb = "Revoked"
				err = svc.Store.RevokeRole(cmd.Context(), args[0], role)
			}
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"user_id": args[0], "role": role, "granted": grant})
			}
			output.Success("✓ %s %s for %s", verb, role, args[0])
			return nil
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant <user-id> <role>",
		Short: "Grant a role",
		Args:  cobra.ExactArgs(2),
		RunE:  change(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <user-id> <role>",
		Short: "Revoke a role",
		Args:  cobra.ExactArgs(2),
		RunE:  change(false),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List role grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			loc, err := location(cmd)
			if err != nil {
				return err
			}
			svc, err := app.services()
			if err != nil {
				return err
			}

			grants, err := svc.Store.ListRoleGrants(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(grants)
			}
			table := NewTable(output, "USER", "ROLE", "GRANTED")
			for _, g := range grants {
				table.AddRow(g.UserID, string(g.Role), FormatDateTime(g.CreatedAt, loc))
			}
			table.Render()
			return nil
		},
	})

	return cmd
}
