package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/deskapi"
)

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who the stored token authenticates as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.api()
			if err != nil {
				return err
			}
			me, err := api.Me(cmd.Context())
			if deskapi.IsUnauthorized(err) {
				return fmt.Errorf("%w (store a fresh one with `deskctl token set`)", err)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\t%s\n", displayName(me.Actor), me.Actor.Role)
			fmt.Fprintf(out, "id:          %s\n", me.Actor.ID)
			fmt.Fprintf(out, "permissions: %s\n", strings.Join(me.Permissions, ", "))
			if me.ExpiresAt != nil {
				fmt.Fprintf(out, "expires:     %s (in %s)\n", me.ExpiresAt.Format(time.RFC3339),
					time.Until(*me.ExpiresAt).Round(time.Second))
			}
			return nil
		},
	}
}
