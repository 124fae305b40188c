// Command pkgradar is the terminal client: it opens the signed-in user's
// package board and queries the search index.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pkgradar/client"
	"pkgradar/cmd/pkgradar/ui"
	"pkgradar/kanban"
	"pkgradar/search"
)

const defaultServer = "http://localhost:8080"

type options struct {
	server  string
	logFile string
	timeout time.Duration

	log     *slog.Logger
	closeFn func() error
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pkgradar",
		Short:         "Curate open-source packages on a kanban board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setupLogging()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.closeFn != nil {
				return opts.closeFn()
			}
			return nil
		},
	}
	root.SetOut(out)

	server := os.Getenv("PKGRADAR_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "Server URL (or set PKGRADAR_SERVER)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Request timeout for one-shot commands")

	root.AddCommand(
		boardCmd(opts),
		searchCmd(opts),
		showCmd(opts),
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
	)
	return root
}

// setupLogging sends logs to --log-file. Without one they are discarded so
// the board owns the terminal.
func (o *options) setupLogging() error {
	if o.logFile == "" {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
		return nil
	}
	f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	o.log = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o.closeFn = f.Close
	return nil
}

// client builds a server client from the saved session. requireSession
// fails when nobody is logged in.
func (o *options) client(requireSession bool) (*client.Client, error) {
	s, err := client.LoadSession()
	if err != nil {
		return nil, err
	}
	if s == nil {
		if requireSession {
			return nil, errors.New("not logged in; run `pkgradar login` first")
		}
		s = &client.Session{}
	}
	return client.New(o.server, *s), nil
}

func boardCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open your package board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			user, err := c.CurrentUser(ctx)
			cancel()
			if err != nil {
				return err
			}
			o.log.Info("opening board", "user", user.Username, "packages", len(user.Packages), "boards", len(user.KanbanBoards))
			return ui.Run(user.ID, user.Username, user.Packages, user.KanbanBoards, c, c, o.log)
		},
	}
}

func searchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search packages and users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			items, err := c.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printSuggestions(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func printSuggestions(out io.Writer, items []search.Suggestion) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range items {
		switch s.Kind {
		case search.KindPackages:
			p := s.Package
			fmt.Fprintf(tw, "package\t%s/%s\t★ %s\t%s\n", p.OwnerName, p.PackageName, humanize.Comma(int64(p.Stars)), s.Route)
		case search.KindUsers:
			fmt.Fprintf(tw, "user\t@%s\t%s\t%s\n", s.User.Username, s.User.Name, s.Route)
		default:
			fmt.Fprintf(tw, "search\t%q\t\t%s\n", s.Input, s.Route)
		}
	}
	tw.Flush()
}

func showCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's boards and packages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client(false)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			user, err := c.User(ctx, args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user %s", args[0])
			}
			printUser(cmd.OutOrStdout(), user)
			return nil
		},
	}
}

func printUser(out io.Writer, u *client.User) {
	fmt.Fprintf(out, "@%s (%s)\n", u.Username, u.Name)
	fmt.Fprintf(out, "boards: %s\n", strings.Join(kanban.Tabs(u.KanbanBoards), ", "))
	groups := u.Packages.ByStatus()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, st := range kanban.Statuses {
		for _, card := range groups[st] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t★ %s\n", st.Title(), card.Name, card.Board, humanize.Comma(int64(card.Stars)))
		}
	}
	tw.Flush()
}

func loginCmd(o *options) *cobra.Command {
	var username, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with GitHub, or store a session token",
		Long: `Without flags, prints the GitHub sign-in URL. The callback page shows
the username and token to store with --username and --token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if username == "" && token == "" {
				c := client.New(o.server, client.Session{})
				fmt.Fprintf(out, "Open %s in a browser, then run:\n  pkgradar login --username <name> --token <token>\n", c.LoginURL())
				return nil
			}
			if err := client.SaveSession(client.Session{Username: username, Token: token}); err != nil {
				return err
			}
			p, _ := client.CredentialsPath()
			fmt.Fprintf(out, "Logged in as %s (saved to %s)\n", username, p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "GitHub username")
	cmd.Flags().StringVarP(&token, "token", "t", "", "Session token")
	return cmd
}

func logoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on the server and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client(false)
			if err != nil {
				return err
			}
			if s := c.Session(); s.Valid() {
				ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
				defer cancel()
				if err := c.Logout(ctx); err != nil {
					o.log.Warn("server logout failed", "err", err)
				}
			}
			if err := client.ClearSession(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			user, err := c.CurrentUser(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s, %d packages, source %s)\n",
				user.Username, user.ID, len(user.Packages), c.Session().Source)
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
