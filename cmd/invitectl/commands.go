package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

// sweepJobs is the part of the invitation service the sweep commands run.
type sweepJobs interface {
	MarkExpiredInvitations(ctx context.Context) (int, error)
	SendReminders(ctx context.Context) (int, error)
}

func newMigrateCommand(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func newSendRemindersCommand(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send-reminders",
		Short: "Send reminder emails for pending invitations",
		Example: `  # Send due reminders
  invitectl send-reminders

  # Also persist the expired status of past-due invitations
  invitectl send-reminders --mark-expired`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			markExpired, _ := cmd.Flags().GetBool("mark-expired")

			a, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			return runSendReminders(cmd.Context(), cmd.OutOrStdout(), a.Invitations, a.Config.Invitations.Reminders.Enabled, markExpired)
		},
	}
	cmd.Flags().Bool("mark-expired", false, "Also mark expired invitations")
	return cmd
}

// runSendReminders sends due reminders and optionally persists expiry. When
// reminders are disabled it warns and succeeds without doing anything.
func runSendReminders(ctx context.Context, w io.Writer, jobs sweepJobs, enabled, markExpired bool) error {
	if !enabled {
		fmt.Fprintln(w, "Invitation reminders are disabled in configuration.")
		return nil
	}

	fmt.Fprintln(w, "Sending invitation reminders...")
	sent, err := jobs.SendReminders(ctx)
	if err != nil {
		return fmt.Errorf("sending reminders: %w", err)
	}
	if sent > 0 {
		fmt.Fprintf(w, "Sent %d reminder(s).\n", sent)
	} else {
		fmt.Fprintln(w, "No reminders needed to be sent.")
	}

	if markExpired {
		return runMarkExpired(ctx, w, jobs)
	}
	return nil
}

func newMarkExpiredCommand(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-expired",
		Short: "Persist the expired status of past-due invitations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			return runMarkExpired(cmd.Context(), cmd.OutOrStdout(), a.Invitations)
		},
	}
}

func runMarkExpired(ctx context.Context, w io.Writer, jobs sweepJobs) error {
	fmt.Fprintln(w, "Marking expired invitations...")
	n, err := jobs.MarkExpiredInvitations(ctx)
	if err != nil {
		return fmt.Errorf("marking expired invitations: %w", err)
	}
	if n > 0 {
		fmt.Fprintf(w, "Marked %d invitation(s) as expired.\n", n)
	} else {
		fmt.Fprintln(w, "No invitations to mark as expired.")
	}
	return nil
}

func newForgetActorCommand(e env) *cobra.Command {
	return &cobra.Command{
		Use:   "forget-actor <actor-id>",
		Short: "Delete an actor, keeping their invitations with the reference cleared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Invitations.ForgetActor(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Actor %s forgotten.\n", args[0])
			return nil
		},
	}
}

func newTokenCommand(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Example: `  invitectl token --actor ops-1 --email ops@example.com --admin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID, _ := cmd.Flags().GetString("actor")
			email, _ := cmd.Flags().GetString("email")
			admin, _ := cmd.Flags().GetBool("admin")
			expiry, _ := cmd.Flags().GetDuration("expiry")

			cfg, err := e.loadConfig()
			if err != nil {
				return err
			}
			if expiry <= 0 {
				expiry = cfg.JWTExpiry
			}

			log := logger.NewWithWriter(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel), false)
			svc := auth.NewService(&auth.Config{
				JWTSecret:   []byte(cfg.JWTSecret),
				TokenExpiry: expiry,
			}, log.Logger)

			token, err := svc.GenerateToken(&models.Actor{ID: actorID, Email: email}, admin)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "Actor ID recorded as the token subject (required)")
	cmd.Flags().String("email", "", "Actor email")
	cmd.Flags().Bool("admin", false, "Grant access to the admin API")
	cmd.Flags().Duration("expiry", 0, "Token lifetime (defaults to JWT_EXPIRY)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
