// Package authctl is the operator tool for provisioning the auth core:
// creating users and roles, changing passwords, granting policies and
// purging expired tokens.
package authctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

// Admin is satisfied by *services.UserService.
type Admin interface {
	CreateUser(ctx context.Context, username, description, password, roleName string) (*models.User, error)
	ChangePassword(ctx context.Context, username, newPassword string) (int64, error)
	CreateRole(ctx context.Context, name string) (*models.Role, error)
	DeleteRole(ctx context.Context, name string) error
	GrantPolicy(ctx context.Context, roleName, policyName string) error
	ListPolicies(ctx context.Context) ([]models.Policy, error)
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// ErrUsage is returned for unknown commands and malformed arguments.
var ErrUsage = errors.New("usage error")

const usage = `Usage: authctl [-c config.json] [-d dsn] <command> [args]

Commands:
  useradd -role <role> [-desc <text>] <username>   create a user (password is prompted)
  passwd <username>                                set a new password and revoke the user's tokens
  role add <name>                                  create a role
  role del <name>                                  delete a role that no user holds
  grant <role> <policy>                            assign a policy to a role
  policies                                         list the policy catalog
  purge-tokens                                     delete expired access tokens
`

type App struct {
	admin Admin
	out   io.Writer
}

func NewApp(admin Admin, out io.Writer) *App {
	return &App{admin: admin, out: out}
}

// Run executes a single command. args starts with the command name.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	case "useradd":
		return a.userAdd(ctx, rest)
	case "passwd":
		return a.passwd(ctx, rest)
	case "role":
		return a.role(ctx, rest)
	case "grant":
		return a.grant(ctx, rest)
	case "policies":
		return a.policies(ctx)
	case "purge-tokens":
		return a.purgeTokens(ctx)
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) userAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(a.out)
	role := fs.String("role", "", "role name")
	desc := fs.String("desc", "", "description")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 1 || *role == "" {
		return fmt.Errorf("%w: useradd -role <role> [-desc <text>] <username>", ErrUsage)
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}

	u, err := a.admin.CreateUser(ctx, fs.Arg(0), *desc, password, *role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(a.out, "created user %s (id %d)\n", u.UserName, u.ID)
	return nil
}

func (a *App) passwd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: passwd <username>", ErrUsage)
	}

	password, err := getNewPassword(a.out)
	if err != nil {
		return err
	}

	revoked, err := a.admin.ChangePassword(ctx, args[0], password)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	fmt.Fprintf(a.out, "password changed, %d token(s) revoked\n", revoked)
	return nil
}

func (a *App) role(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: role add|del <name>", ErrUsage)
	}

	switch args[0] {
	case "add":
		r, err := a.admin.CreateRole(ctx, args[1])
		if err != nil {
			return fmt.Errorf("create role: %w", err)
		}
		fmt.Fprintf(a.out, "created role %s (id %d)\n", r.Name, r.ID)
	case "del":
		if err := a.admin.DeleteRole(ctx, args[1]); err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		fmt.Fprintf(a.out, "deleted role %s\n", args[1])
	default:
		return fmt.Errorf("%w: role add|del <name>", ErrUsage)
	}
	return nil
}

func (a *App) grant(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: grant <role> <policy>", ErrUsage)
	}
	if err := a.admin.GrantPolicy(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("grant policy: %w", err)
	}
	fmt.Fprintf(a.out, "granted %s to %s\n", args[1], args[0])
	return nil
}

func (a *App) policies(ctx context.Context) error {
	list, err := a.admin.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("list policies: %w", err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, p := range list {
		fmt.Fprintf(tw, "%d\t%s\n", p.ID, p.Name)
	}
	return tw.Flush()
}

func (a *App) purgeTokens(ctx context.Context) error {
	n, err := a.admin.PurgeExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("purge tokens: %w", err)
	}
	fmt.Fprintf(a.out, "purged %d expired token(s)\n", n)
	return nil
}

// SplitArgs separates the leading configuration flags from the command.
// Every configuration flag takes a value, so "-d dsn useradd" splits after
// "dsn".
func SplitArgs(args []string) (global, command []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-h" || arg == "--help" {
			return args[:i], args[i:]
		}
		if !strings.Contains(arg, "=") {
			i++
		}
	}
	return args, nil
}
