package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/config"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/password"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hiresify/internal/server/services"
)

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errEmptyPassword    = errors.New("password must not be empty")
	errBadDays          = errors.New("days must be a non-negative integer")
)

// userAdmin is the part of services.UserService the console uses.
type userAdmin interface {
	CreateUser(ctx context.Context, username, plain string) (*models.User, error)
	ChangePassword(ctx context.Context, username, plain string) (int64, error)
	DeleteUser(ctx context.Context, username string) error
	ListTokens(ctx context.Context, username string) ([]*models.RefreshToken, error)
	RevokeAll(ctx context.Context, username string) (int64, error)
	PurgeExpired(ctx context.Context, retentionDays int) (int64, error)
}

type App struct {
	users         userAdmin
	retentionDays int
	reader        *bufio.Reader
	out           io.Writer
	db            *sql.DB
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, slog.LevelWarn)
	us := services.NewUserService(db, rm, password.NewArgon2(password.DefaultParams), logger)

	return &App{
		users:         us,
		retentionDays: c.RefreshRetentionDays,
		reader:        bufio.NewReader(os.Stdin),
		out:           os.Stdout,
		db:            db,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		if a.db != nil {
			_ = a.db.Close()
		}
	}()
	printlnFn(helpText)
	runREPL(ctx, a, a.reader)
}

// username takes the name from args or prompts for it.
func (a *App) username(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	name, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", common.ErrInvalidRequest
	}
	return name, nil
}

func (a *App) AddUser(ctx context.Context, args []string) error {
	name, err := a.username(args)
	if err != nil {
		return err
	}
	pw, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}
	u, err := a.users.CreateUser(ctx, name, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s (%s)\n", u.UserName, u.ID)
	return nil
}

func (a *App) Passwd(ctx context.Context, args []string) error {
	name, err := a.username(args)
	if err != nil {
		return err
	}
	pw, err := GetNewPassword(a.out)
	if err != nil {
		return err
	}
	n, err := a.users.ChangePassword(ctx, name, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password changed, %d refresh token(s) revoked\n", n)
	return nil
}

func (a *App) DelUser(ctx context.Context, args []string) error {
	name, err := a.username(args)
	if err != nil {
		return err
	}
	if err := a.users.DeleteUser(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s\n", name)
	return nil
}

func (a *App) Tokens(ctx context.Context, args []string) error {
	name, err := a.username(args)
	if err != nil {
		return err
	}
	tokens, err := a.users.ListTokens(ctx, name)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		fmt.Fprintln(a.out, "no refresh tokens")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tISSUED\tEXPIRES\tSTATE\tDEVICE\tIP\tPLATFORM")
	now := time.Now()
	for _, t := range tokens {
		state := "active"
		switch {
		case t.Revoked:
			state = "revoked"
		case !t.Usable(now):
			state = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.IssuedAt.Format(time.RFC3339), t.ExpireAt.Format(time.RFC3339), state,
			deref(t.Device), deref(t.IP), deref(t.Platform))
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func (a *App) RevokeAll(ctx context.Context, args []string) error {
	name, err := a.username(args)
	if err != nil {
		return err
	}
	n, err := a.users.RevokeAll(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d refresh token(s) revoked\n", n)
	return nil
}

// Purge deletes revoked ledger records and those expired more than the given
// number of days ago, the configured retention by default.
func (a *App) Purge(ctx context.Context, args []string) error {
	days := a.retentionDays
	if len(args) > 0 {
		d, err := strconv.Atoi(args[0])
		if err != nil || d < 0 {
			return errBadDays
		}
		days = d
	}
	n, err := a.users.PurgeExpired(ctx, days)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d ledger record(s) purged\n", n)
	return nil
}
