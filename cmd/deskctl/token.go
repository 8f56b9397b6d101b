package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored bearer token",
	}
	cmd.AddCommand(newTokenSetCmd(a), newTokenClearCmd(a), newTokenMintCmd(a))
	return cmd
}

func newTokenSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set [token]",
		Short: "Store a token issued by the server (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)

			claims, err := auth.PeekClaims(token)
			if err != nil {
				return fmt.Errorf("not a service desk token: %w", err)
			}
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			if err := tokens.Set(token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored token for %s (%s)\n", displayName(claims.Actor()), claims.Role)
			return nil
		},
	}
}

func newTokenClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			return tokens.Delete()
		},
	}
}

// newTokenMintCmd signs a token locally with the server secret. Only useful
// for development servers whose secret is at hand.
func newTokenMintCmd(a *app) *cobra.Command {
	var (
		secret string
		userID string
		role   string
		name   string
		ttl    time.Duration
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a token with the server's JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}

			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("--user-id: %w", err)
				}
				id = parsed
			}

			token, err := auth.NewTokenManager(secret, ttl).GenerateToken(domain.Actor{
				ID:   id,
				Role: domain.Role(role),
				Name: name,
			})
			if err != nil {
				return err
			}

			if save {
				tokens, err := a.tokens()
				if err != nil {
					return err
				}
				if err := tokens.Set(token); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "JWT secret (defaults to $JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user-id", "", "staff id (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleSupport), "support, admin or super_admin")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "also store the token")
	return cmd
}

func displayName(actor domain.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	return actor.ID.String()
}
