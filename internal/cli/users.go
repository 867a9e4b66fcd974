package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/config"
	"github.com/zarlcorp/zguard/internal/editor"
)

// ErrUsage is returned for bad arguments after the flag set prints usage.
var ErrUsage = errors.New("usage")

func newFlagSet(env Env, name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.Stderr, "usage: zguard %s\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and requires exactly want positional arguments.
func parse(fs *pflag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrUsage
		}
		return nil, err
	}
	if fs.NArg() != want {
		fs.Usage()
		return nil, ErrUsage
	}
	return fs.Args(), nil
}

// Users lists the accounts on a device.
func Users(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "users", "users [--profile name] [--json]")
	profileName := fs.StringP("profile", "p", "", "device profile")
	asJSON := fs.Bool("json", false, "print JSON")
	if _, err := parse(fs, args, 0); err != nil {
		return err
	}

	r, err := dial(ctx, env, *profileName)
	if err != nil {
		return err
	}
	defer r.Close()

	accounts := account.Sorted(r.ctrl.Accounts())
	if *asJSON {
		return printJSON(env.Stdout, accounts)
	}
	printAccounts(env.Stdout, accounts)
	return nil
}

// UserAdd creates an account.
func UserAdd(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "useradd", "useradd <username> [--admin] [--profile name]")
	profileName := fs.StringP("profile", "p", "", "device profile")
	admin := fs.Bool("admin", false, "grant administrator rights")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	username := pos[0]
	if username == "" {
		return errors.New("username is required")
	}

	r, err := dial(ctx, env, *profileName)
	if err != nil {
		return err
	}
	defer r.Close()

	if r.ctrl.IsUsernameTaken(username) {
		return fmt.Errorf("user %q already exists", username)
	}
	pass, err := ReadNewPassword(env.Prompt, "password for "+username)
	if err != nil {
		return err
	}

	r.ctrl.BeginCreate()
	r.ctrl.UpdateField(editor.FieldUsername, username)
	r.ctrl.UpdateField(editor.FieldPassword, pass)
	r.ctrl.UpdateField(editor.FieldAdmin, *admin)
	if !r.ctrl.Confirm() {
		r.ctrl.Cancel()
		return fmt.Errorf("user %q already exists", username)
	}

	if err := r.submit(); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "added %s\n", username)
	return nil
}

// UserDel removes an account.
func UserDel(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "userdel", "userdel <username> [--profile name]")
	profileName := fs.StringP("profile", "p", "", "device profile")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	username := pos[0]

	r, err := dial(ctx, env, *profileName)
	if err != nil {
		return err
	}
	defer r.Close()

	a, ok := account.Find(r.ctrl.Accounts(), username)
	if !ok {
		return fmt.Errorf("user %q not found", username)
	}
	r.ctrl.DeleteAccount(a)

	if err := r.submit(); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "deleted %s\n", username)
	return nil
}

// Passwd changes an account's password.
func Passwd(ctx context.Context, env Env, args []string) error {
	fs := newFlagSet(env, "passwd", "passwd <username> [--profile name]")
	profileName := fs.StringP("profile", "p", "", "device profile")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}
	username := pos[0]

	r, err := dial(ctx, env, *profileName)
	if err != nil {
		return err
	}
	defer r.Close()

	a, ok := account.Find(r.ctrl.Accounts(), username)
	if !ok {
		return fmt.Errorf("user %q not found", username)
	}
	pass, err := ReadNewPassword(env.Prompt, "new password for "+username)
	if err != nil {
		return err
	}

	r.ctrl.BeginEdit(a)
	r.ctrl.UpdateField(editor.FieldPassword, pass)
	if !r.ctrl.Confirm() {
		r.ctrl.Cancel()
		return fmt.Errorf("cannot update %q", username)
	}

	if err := r.submit(); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "password changed for %s\n", username)
	return nil
}

// accountView is the listing shape. Passwords are never printed.
type accountView struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

func printJSON(w io.Writer, accounts []account.Account) error {
	out := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView{Username: a.Username, Admin: a.Admin})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printAccounts(w io.Writer, accounts []account.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "no accounts")
		return
	}
	for _, a := range accounts {
		role := "user"
		if a.Admin {
			role = "admin"
		}
		fmt.Fprintf(w, "  %-24s %s\n", a.Username, role)
	}
}

// SetDefault records the profile used when --profile is omitted.
func SetDefault(env Env, args []string) error {
	fs := newFlagSet(env, "default", "default <profile>")
	pos, err := parse(fs, args, 1)
	if err != nil {
		return err
	}

	store, err := OpenStore(env)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.Get(pos[0])
	if err != nil {
		return fmt.Errorf("profile %q: %w", pos[0], err)
	}

	cfg := env.Config
	cfg.DefaultProfile = p.Name
	if err := config.Save(env.DataDir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "default profile is %s\n", p.Name)
	return nil
}
