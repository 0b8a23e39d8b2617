// Package admin implements the tokenadmin command line tool: create, list,
// revoke and extend access tokens in the configured store.
package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/flagx"
	"github.com/pmfstudio/reportgate/internal/server/config"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/services"
	"github.com/pmfstudio/reportgate/internal/timex"
	"golang.org/x/term"
)

// Manager is the token surface the commands need.
type Manager interface {
	Create(ctx context.Context, label string, perm models.Permission, validity time.Duration) (models.AccessToken, error)
	List(ctx context.Context) ([]models.AccessToken, error)
	Revoke(ctx context.Context, token string) error
	Extend(ctx context.Context, token string, extra time.Duration) (models.AccessToken, error)
}

const usage = `usage: tokenadmin [-c config.json] [-k backend] [-f tokens_db.json] <command>

commands:
  create -days N -label LABEL -perm trial|full|internal
  list
  revoke TOKEN
  extend TOKEN DAYS
`

// App runs one command against a Manager.
type App struct {
	manager     Manager
	out, errOut io.Writer
	publicURL   string
	defaultDays int

	isTerminal func() bool
}

func NewApp(m Manager, c *config.Config, out, errOut io.Writer) *App {
	days := int(c.DefaultValidity / timex.Day)
	if days <= 0 {
		days = 7
	}
	return &App{
		manager:     m,
		out:         out,
		errOut:      errOut,
		publicURL:   c.PublicURL,
		defaultDays: days,
		isTerminal:  func() bool { return writerIsTerminal(out) },
	}
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run executes the command found in args and returns the process exit code.
// Global config flags may appear anywhere in args and are ignored here.
func (a *App) Run(ctx context.Context, args []string) int {
	cmd, rest := flagx.SplitCommand(args, config.ValueFlags)
	rest = flagx.DropArgs(rest, config.ValueFlags)

	var err error
	switch cmd {
	case "create":
		err = a.create(ctx, rest)
	case "list":
		err = a.list(ctx)
	case "revoke":
		err = a.revoke(ctx, rest)
	case "extend":
		err = a.extend(ctx, rest)
	case "help":
		fmt.Fprint(a.out, usage)
		return 0
	case "":
		fmt.Fprint(a.errOut, usage)
		return 2
	default:
		fmt.Fprintf(a.errOut, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	return a.report(err)
}

func (a *App) report(err error) int {
	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, common.ErrTokenNotFound):
		fmt.Fprintln(a.errOut, "Token not found")
	case errors.As(err, &usageErr):
		fmt.Fprintf(a.errOut, "%v\n\n%s", err, usage)
		return 2
	case services.IsClientError(err):
		fmt.Fprintln(a.errOut, "error:", err)
	default:
		fmt.Fprintln(a.errOut, "error: token store:", err)
	}
	return 1
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func (a *App) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	days := fs.Int("days", a.defaultDays, "days until expiry")
	label := fs.String("label", "", "label identifying the holder")
	perm := fs.String("perm", string(models.PermissionTrial), "permission tag")
	if err := fs.Parse(args); err != nil {
		return usageError{msg: err.Error()}
	}

	p, err := models.ParsePermission(*perm)
	if err != nil {
		return err
	}

	validity, err := timex.Days(*days)
	if err != nil {
		return err
	}

	rec, err := a.manager.Create(ctx, *label, p, validity)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, "TOKEN:", rec.Token)
	fmt.Fprintf(a.out, "URL example: %s?%s=%s\n", a.publicURL, common.AccessTokenQueryName, rec.Token)
	fmt.Fprintln(a.out, "Expires at (UTC):", formatTime(rec.ExpiresAt))
	return nil
}

func (a *App) list(ctx context.Context) error {
	tokens, err := a.manager.List(ctx)
	if err != nil {
		return err
	}

	if !a.isTerminal() {
		for _, t := range tokens {
			fmt.Fprintf(a.out, "%s | %s | %s | %s | active: %t\n", t.Token, t.Label, t.Perm, formatTime(t.ExpiresAt), t.Active)
		}
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tLABEL\tPERM\tEXPIRES AT (UTC)\tACTIVE")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", t.Token, t.Label, t.Perm, formatTime(t.ExpiresAt), t.Active)
	}
	return tw.Flush()
}

func (a *App) revoke(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError{msg: "revoke takes exactly one TOKEN"}
	}
	if err := a.manager.Revoke(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Revoked:", args[0])
	return nil
}

func (a *App) extend(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError{msg: "extend takes TOKEN and DAYS"}
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return usageError{msg: fmt.Sprintf("DAYS must be an integer, got %q", args[1])}
	}

	extra, err := timex.Days(days)
	if err != nil {
		return err
	}

	rec, err := a.manager.Extend(ctx, args[0], extra)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Extended:", rec.Token, "new expiry:", formatTime(rec.ExpiresAt))
	if !rec.Active {
		fmt.Fprintln(a.out, "Note: token is revoked and stays revoked.")
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
