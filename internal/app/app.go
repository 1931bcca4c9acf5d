// Package app wires the service client, session manager and admin roster
// into the kbctl command line tool.
package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kombuchalyzer/kbclient/internal/roster"
	"github.com/kombuchalyzer/kbclient/internal/session"
	"github.com/kombuchalyzer/kbclient/internal/slogx"
	"github.com/kombuchalyzer/kbclient/pkg/kbsdk"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

var errUsage = errors.New("usage")

// App holds the long-lived pieces every subcommand shares.
type App struct {
	cfg    Config
	logger *slog.Logger

	client  *kbsdk.Client
	manager *session.Manager
	roster  *roster.Roster

	stdin  io.Reader
	stdout io.Writer
	reader *bufio.Reader
}

// New creates an App and restores any saved session.
func New(cfg Config) (*App, error) {
	app := &App{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			App:     "kbctl",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	app.client = kbsdk.New(cfg.BaseURL)
	app.client.HTTPClient.Timeout = cfg.Timeout
	app.restoreSession()

	app.manager = session.NewManager(app.client, session.WithLogger(app.logger))
	app.roster = roster.New(app.client, app.manager.CurrentUser, cfg.PageSize)

	return app, nil
}

// Run dispatches the subcommand named in args.
func (app *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		app.usage()
		return errUsage
	}

	switch args[0] {
	case "login":
		return app.cmdLogin(ctx, args[1:])
	case "whoami":
		return app.cmdWhoami(ctx)
	case "logout":
		return app.cmdLogout(ctx)
	case "totp":
		return app.cmdTOTP(ctx, args[1:])
	case "users":
		return app.cmdUsers(ctx, args[1:])
	default:
		app.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (app *App) usage() {
	fmt.Fprintln(app.stdout, `usage: kbctl <command>

commands:
  login                       authenticate and store a session
  whoami                      show the current user
  logout                      end the session
  totp qr [-o file]           fetch the TOTP enrolment QR code
  totp enable                 confirm TOTP enrolment with a code
  totp disable                turn TOTP off with a code
  users list [-page n]        list users (admin)
  users get [-id|-email]      look up a single user (admin)
  users create -email ...     create a user (admin)
  users delete -id ...        delete a user (admin)`)
}

func (app *App) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", app.cfg.Username, "login email")
	password := fs.String("password", app.cfg.Password, "login password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		var err error
		*username, err = app.prompt("email: ")
		if err != nil {
			return err
		}
	}
	if *password == "" {
		var err error
		*password, err = app.prompt("password: ")
		if err != nil {
			return err
		}
	}

	if err := app.manager.Login(ctx, *username, *password); err != nil {
		return err
	}

	if app.manager.Snapshot().State == session.StateTotpPending {
		code, err := app.prompt("TOTP code: ")
		if err != nil {
			return err
		}
		if err := app.manager.CompleteTOTP(ctx, code); err != nil {
			return err
		}
	}

	if err := app.saveSession(); err != nil {
		app.logger.Warn("failed to persist session", "error", err)
	}
	return app.printUser(app.manager.CurrentUser())
}

func (app *App) cmdWhoami(ctx context.Context) error {
	snap := app.manager.RefreshAuth(ctx)
	if !snap.IsAuthenticated() {
		return errors.New("not logged in")
	}
	return app.printUser(snap.User)
}

func (app *App) cmdLogout(ctx context.Context) error {
	app.manager.Logout(ctx)
	if err := app.clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, "logged out")
	return nil
}

func (app *App) cmdTOTP(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("totp needs a subcommand: qr, enable or disable")
	}

	switch args[0] {
	case "qr":
		fs := flag.NewFlagSet("totp qr", flag.ContinueOnError)
		out := fs.String("o", "totp-qr.png", "output file for the QR code")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		img, err := app.client.TOTPQRCode(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, img, 0o600); err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "QR code written to %s\n", *out)
		return nil

	case "enable", "disable":
		code, err := app.prompt("TOTP code: ")
		if err != nil {
			return err
		}
		if args[0] == "enable" {
			err = app.manager.EnableTOTP(ctx, code)
		} else {
			err = app.manager.DisableTOTP(ctx, code)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(app.stdout, "TOTP %sd\n", args[0])
		return nil

	default:
		return fmt.Errorf("unknown totp subcommand %q", args[0])
	}
}

func (app *App) cmdUsers(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("users needs a subcommand: list, get, create or delete")
	}

	// Admin calls fail with a 401 or 403 server side, but refreshing up
	// front gives a clearer message when the session has simply expired.
	if !app.manager.RefreshAuth(ctx).IsAuthenticated() {
		return errors.New("not logged in")
	}

	switch args[0] {
	case "list":
		return app.cmdUsersList(ctx, args[1:])
	case "get":
		return app.cmdUsersGet(ctx, args[1:])
	case "create":
		return app.cmdUsersCreate(ctx, args[1:])
	case "delete":
		return app.cmdUsersDelete(ctx, args[1:])
	default:
		return fmt.Errorf("unknown users subcommand %q", args[0])
	}
}

func (app *App) cmdUsersList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users list", flag.ContinueOnError)
	page := fs.Int("page", 1, "page to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// The roster only trusts page numbers against an observed total, so a
	// jump past page 1 needs a fetch first.
	if *page != 1 {
		if _, err := app.roster.Fetch(ctx); err != nil {
			return err
		}
		if !app.roster.SetPage(*page) {
			return fmt.Errorf("page %d is out of range (last page is %d)", *page, app.roster.LastPage())
		}
	}
	result, err := app.roster.Fetch(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "page %d of %d (%d users total)\n",
		app.roster.Page(), app.roster.LastPage(), result.Total)
	for _, u := range result.Users {
		totp := ""
		if u.TOTPEnabled {
			totp = " totp"
		}
		fmt.Fprintf(app.stdout, "  %s  %-30s %s%s\n", u.ID, u.Email, u.Role, totp)
	}
	return nil
}

func (app *App) cmdUsersGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users get", flag.ContinueOnError)
	id := fs.String("id", "", "user id")
	email := fs.String("email", "", "user email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := app.client.GetUser(ctx, kbsdk.GetUserQuery{ID: *id, Email: *email})
	if err != nil {
		return err
	}
	return app.printUser(user)
}

func (app *App) cmdUsersCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users create", flag.ContinueOnError)
	email := fs.String("email", "", "new user's email")
	password := fs.String("password", "", "new user's password")
	role := fs.String("role", "", "role (user or admin)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := app.roster.Create(ctx, kbsdk.CreateUserRequest{
		Email:    *email,
		Password: *password,
		Role:     *role,
	})
	if err != nil {
		return err
	}
	return app.printUser(user)
}

func (app *App) cmdUsersDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("users delete", flag.ContinueOnError)
	id := fs.String("id", "", "id of the user to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}

	if err := app.roster.Delete(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "user %s deleted\n", *id)
	return nil
}

func (app *App) prompt(label string) (string, error) {
	fmt.Fprint(app.stdout, label)
	if app.reader == nil {
		app.reader = bufio.NewReader(app.stdin)
	}
	line, err := app.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (app *App) printUser(user *kbsdk.User) error {
	if user == nil {
		return errors.New("no user available")
	}
	enc := json.NewEncoder(app.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(user)
}
