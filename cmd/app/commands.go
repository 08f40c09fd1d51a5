package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/starford/brightline/internal"
	"github.com/starford/brightline/internal/apiclient"
	"github.com/starford/brightline/internal/importer"
	"github.com/starford/brightline/internal/mcpserver"
	"github.com/starford/brightline/internal/session"
)

var (
	okColor   = color.New(color.FgHiGreen, color.Bold)
	errColor  = color.New(color.FgHiRed)
	nameColor = color.New(color.FgHiCyan)
)

// env is what every session command runs with.
type env struct {
	cfg    *internal.Config
	logger *slog.Logger
	*internal.ClientSession
}

// withSession loads the config and restores the CLI session before running fn.
func withSession(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closeLog := commandLogger(cfg, os.Stderr)
		defer func() { _ = closeLog() }()

		cs, err := internal.OpenClientSession(ctx, cfg.Client, logger)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, &env{cfg: cfg, logger: logger, ClientSession: cs})
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to the backend and remember the session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Admin username", Sources: cli.EnvVars("BRIGHTLINE_USERNAME")},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Admin password (prompted when omitted)", Sources: cli.EnvVars("BRIGHTLINE_PASSWORD")},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, e *env) error {
			username := cmd.String("username")
			if username == "" {
				var err error
				if username, err = prompt("Username: "); err != nil {
					return err
				}
			}
			password := cmd.String("password")
			if password == "" {
				var err error
				if password, err = promptPassword("Password: "); err != nil {
					return err
				}
			}

			if err := e.Session.Login(ctx, username, password); err != nil {
				var le *session.LoginError
				if errors.As(err, &le) {
					errColor.Fprintln(os.Stderr, "✗ "+le.Message)
					return cli.Exit("", 1)
				}
				return err
			}
			s := e.Session.Session()
			fmt.Printf("✓ Signed in as %s on %s\n", okColor.Sprint(s.User.Username), nameColor.Sprint(e.cfg.Client.BackendURL))
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session",
		Action: withSession(func(ctx context.Context, _ *cli.Command, e *env) error {
			if err := e.Session.Logout(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: withSession(func(_ context.Context, _ *cli.Command, e *env) error {
			s := e.Session.Session()
			if !s.IsAuthenticated {
				fmt.Println("Not signed in.")
				return nil
			}
			fmt.Printf("%s <%s> %s\n",
				okColor.Sprint(s.User.Username),
				s.User.Email,
				nameColor.Sprint(s.User.Role))
			fmt.Printf("Backend: %s\n", e.cfg.Client.BackendURL)
			return nil
		}),
	}
}

func postsCommand() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "List posts",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Value: 1, Usage: "Page number"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Posts per page"},
			&cli.StringFlag{Name: "status", Usage: "draft or published (requires login)"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Search term"},
			&cli.StringFlag{Name: "category", Usage: "Category slug"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, e *env) error {
			res := e.Client.GetPosts(ctx, apiclient.PostQuery{
				Page:     int(cmd.Int("page")),
				Limit:    int(cmd.Int("limit")),
				Status:   cmd.String("status"),
				Search:   cmd.String("search"),
				Category: cmd.String("category"),
			})
			if res.Unauthorized() {
				if err := e.Session.Logout(ctx); err != nil {
					return err
				}
				errColor.Fprintln(os.Stderr, "✗ Session expired, run `brightline login` again")
				return cli.Exit("", 1)
			}
			if !res.Success {
				return res.Err()
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Title", "Slug", "Status", "Category", "Views"})
			table.SetAutoWrapText(false)
			for _, p := range res.Data.Posts {
				row := []string{
					strconv.FormatInt(p.ID, 10),
					p.Title,
					p.Slug,
					string(p.Status),
					p.CategoryName,
					strconv.Itoa(p.Views),
				}
				statusColor := tablewriter.FgHiGreenColor
				if !p.IsPublished() {
					statusColor = tablewriter.FgHiYellowColor
				}
				table.Rich(row, []tablewriter.Colors{{}, {tablewriter.Bold}, {}, {statusColor}, {}, {}})
			}
			table.Render()

			pg := res.Data.Pagination
			fmt.Printf("Page %d of %d (%d posts)\n", pg.Page, pg.Pages, pg.Total)
			return nil
		}),
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Sync a directory of Markdown posts into the backend",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep running and sync on changes"},
			&cli.BoolFlag{Name: "prune", Usage: "Delete posts whose files were removed"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, e *env) error {
			if err := e.RequireAuth(); err != nil {
				return err
			}
			icfg := e.cfg.Importer
			if dir := cmd.Args().First(); dir != "" {
				icfg.Dir = dir
			}
			if cmd.Bool("prune") {
				icfg.Prune = true
			}

			im, err := internal.NewImporter(icfg, e.Client, e.logger)
			if err != nil {
				return err
			}
			if cmd.Bool("watch") {
				ctx, stop := signalContext(ctx)
				defer stop()
				fmt.Printf("Watching %s (Ctrl-C to stop)\n", nameColor.Sprint(icfg.Dir))
				if err := im.Watch(ctx, icfg.Dir, icfg.Debounce); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			report, err := im.Sync(ctx)
			printReport(report)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func printReport(r importer.Report) {
	fmt.Printf("%s created, %s updated, %d unchanged, %d deleted\n",
		okColor.Sprint(r.Created),
		okColor.Sprint(r.Updated),
		r.Unchanged,
		r.Deleted)
	if r.Failed > 0 {
		errColor.Printf("✗ %d files failed, see the log for details\n", r.Failed)
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio using the CLI session",
		Action: withSession(func(_ context.Context, _ *cli.Command, e *env) error {
			if !e.Session.IsAuthenticated() {
				e.logger.Warn("mcp: no session, write tools will be rejected by the backend")
			}
			return mcpserver.New(e.Client, e.logger).ServeStdio()
		}),
	}
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(label string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(data), nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
