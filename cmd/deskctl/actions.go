package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/deskapi"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

func newTicketCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Act on a support ticket",
	}

	simple := []struct {
		use   string
		short string
		call  func(*deskapi.Tickets, context.Context, uuid.UUID) (*domain.SupportTicket, error)
	}{
		{"assign <id>", "Take the lock on a ticket", (*deskapi.Tickets).Assign},
		{"unassign <id>", "Release your lock on a ticket", (*deskapi.Tickets).Unassign},
		{"resolve <id>", "Mark a ticket you hold as resolved", (*deskapi.Tickets).Resolve},
		{"close <id>", "Close a ticket you hold", (*deskapi.Tickets).Close},
	}
	for _, s := range simple {
		cmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("ticket id: %w", err)
				}
				api, err := a.api()
				if err != nil {
					return err
				}
				t, err := s.call(api.Tickets(), cmd.Context(), id)
				if err != nil {
					return explain(err)
				}
				printTicket(cmd, t)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reply <id> <message...>",
		Short: "Reply on a ticket you hold",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("ticket id: %w", err)
			}
			api, err := a.api()
			if err != nil {
				return err
			}
			t, msg, err := api.Tickets().Reply(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return explain(err)
			}
			printTicket(cmd, t)
			fmt.Fprintf(cmd.OutOrStdout(), "message %s sent at %s\n", msg.ID, msg.CreatedAt.Format("15:04:05"))
			return nil
		},
	})
	return cmd
}

func newNotificationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Manage admin notifications",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every unread notification as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			updated, err := api.Notifications().MarkAllRead(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d notifications read\n", len(updated))
			return nil
		},
	})

	var days int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete archived notifications older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			report, err := api.Notifications().CleanupArchived(cmd.Context(), days)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s deleted %d notifications older than %d days\n",
				report.ID, report.DeletedCount, report.OlderThanDays)
			return nil
		},
	}
	cleanup.Flags().IntVar(&days, "days", 30, "minimum age of archived notifications")
	cmd.AddCommand(cleanup)

	var limit int
	logs := &cobra.Command{
		Use:   "cleanup-logs",
		Short: "List recent cleanup runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			reports, err := api.Notifications().CleanupLogs(cmd.Context(), limit)
			if err != nil {
				return explain(err)
			}
			for _, r := range reports {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s  deleted=%d  days=%d  %s\n",
					r.Timestamp.Format("2006-01-02 15:04"), r.Result, r.DeletedCount, r.OlderThanDays, r.Details)
			}
			return nil
		},
	}
	logs.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.AddCommand(logs)

	return cmd
}

func printTicket(cmd *cobra.Command, t *domain.SupportTicket) {
	holder := "unassigned"
	if t.AssignedTo != nil {
		holder = "held by " + t.AssignedToName
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s (%s, v%d)\n", t.ID, t.Status, t.Subject, holder, t.Version)
}

// explain turns lock protocol errors into a hint for the operator.
func explain(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotLocked):
		return fmt.Errorf("%w (assign the ticket first)", err)
	case errors.Is(err, apperrors.ErrNotOwner):
		return fmt.Errorf("%w (another staff member holds it)", err)
	case errors.Is(err, apperrors.ErrTicketFinal):
		return fmt.Errorf("%w (nothing left to do)", err)
	case deskapi.IsUnauthorized(err):
		return fmt.Errorf("%w (store a fresh one with `deskctl token set`)", err)
	}
	return err
}
