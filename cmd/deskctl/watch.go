package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/deskapi"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/sqlite"
	"github.com/lorrc/service-desk-realtime/internal/adapters/secondary/sse"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/client"
	"github.com/lorrc/service-desk-realtime/internal/client/connection"
	"github.com/lorrc/service-desk-realtime/internal/client/tickets"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

func newWatchCmd(a *app) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print live desk activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context(), cmd.OutOrStdout(), every)
		},
	}
	cmd.Flags().DurationVar(&every, "summary", 30*time.Second, "print a summary this often, 0 to disable")
	return cmd
}

func (a *app) watch(ctx context.Context, w io.Writer, every time.Duration) error {
	tokens, err := a.tokens()
	if err != nil {
		return err
	}
	token, err := tokens.Get()
	if err != nil {
		return err
	}
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return fmt.Errorf("stored token: %w", err)
	}
	actor := claims.Actor()

	api, err := deskapi.NewClient(a.cfg.Server, tokens, nil)
	if err != nil {
		return err
	}
	transport, err := sse.NewTransport(a.cfg.Server, actor, tokens, nil)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(a.cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	db, err := sqlite.Open(filepath.Join(a.cfg.StateDir, "state.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	out := &lineWriter{w: w}
	connCfg := a.cfg.connection()
	connCfg.OnStateChange = func(_, to connection.State) {
		out.printf("connection %s", to)
	}
	connCfg.OnReconnect = func(attempt int, wait time.Duration) {
		out.printf("reconnecting in %s (attempt %d)", wait.Round(time.Millisecond), attempt)
	}

	session, err := client.New(ctx, client.Config{
		Actor:               actor,
		Transport:           transport,
		Snapshots:           api,
		NotificationActions: api.Notifications(),
		TicketActions:       api.Tickets(),
		Preferences:         db.For(actor.ID),
		Connection:          connCfg,
		OnConflict: func(c tickets.Conflict) {
			owner := c.OwnerName
			if owner == "" && c.Owner != nil {
				owner = c.Owner.String()
			}
			out.printf("conflict on ticket %s (%s): now owned by %s", c.TicketID, c.Action, owner)
		},
		OnSystemEvent: func(_ domain.Event, p domain.SystemEvent) {
			out.printf("[%s] %s: %s", p.Level, p.Source, p.Message)
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}
	defer session.Dispose()

	out.printf("watching %s as %s (%s)", a.cfg.Server, displayName(actor), actor.Role)
	session.Start(ctx)

	var tick <-chan time.Time
	if every > 0 {
		t := time.NewTicker(every)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			printSummary(out, session)
			return nil
		case <-session.Done():
			return session.Err()
		case <-tick:
			printSummary(out, session)
		}
	}
}

func printSummary(out *lineWriter, s *client.Session) {
	out.printf("unread notifications: %d", s.Notifications().UnreadCount())
	for _, n := range s.Notifications().Recent(0) {
		out.printf("  %-8s %-6s %s", n.Priority, n.Type, n.Title)
	}
	for _, t := range s.Tickets().Tickets() {
		holder := "unassigned"
		if t.AssignedTo != nil {
			holder = "held by " + t.AssignedToName
			if t.IsAssignedTo(s.Actor().ID) {
				holder = "held by you"
			}
		}
		out.printf("  ticket %s [%s] %s (%s)", t.ID, t.Status, t.Subject, holder)
	}
}

// lineWriter serializes lines written from session callbacks.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, time.Now().Format("15:04:05")+" "+format+"\n", args...)
}
