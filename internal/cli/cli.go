// Package cli implements zguard's command-line subcommands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/zarlcorp/core/pkg/zcrypto"
	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/zguard/internal/config"
	"github.com/zarlcorp/zguard/internal/profile"
	"golang.org/x/term"
)

// ErrNoProfile is returned when no device profile can be chosen.
var ErrNoProfile = errors.New("no device profile: add one in the console or pass --profile")

// PromptFunc reads a secret after showing prompt.
type PromptFunc func(prompt string) (string, error)

// Env is what a subcommand runs against.
type Env struct {
	Stdout  io.Writer
	Stderr  io.Writer
	DataDir string
	Config  config.Config
	Prompt  PromptFunc

	// FS backs the profile store; nil means DataDir on disk.
	FS zfilesystem.ReadWriteFileFS
}

// DefaultEnv returns an environment on the real terminal.
func DefaultEnv(dataDir string, cfg config.Config) Env {
	return Env{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		DataDir: dataDir,
		Config:  cfg,
		Prompt: func(prompt string) (string, error) {
			return ReadPassword(prompt, os.Stderr)
		},
	}
}

// ReadPassword prompts for a password on w and reads it without echo.
func ReadPassword(prompt string, w io.Writer) (string, error) {
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer zcrypto.Erase(b)
	return string(b), nil
}

// ReadNewPassword prompts for a password twice.
func ReadNewPassword(prompt PromptFunc, what string) (string, error) {
	pass, err := prompt(what + ": ")
	if err != nil {
		return "", err
	}
	confirm, err := prompt("confirm " + what + ": ")
	if err != nil {
		return "", err
	}
	if pass != confirm {
		return "", errors.New("passwords do not match")
	}
	return pass, nil
}

// OpenStore prompts for the store password and unlocks the profile store.
func OpenStore(env Env) (*profile.Store, error) {
	fsys := env.FS
	if fsys == nil {
		if config.IsFirstRun(env.DataDir) {
			return nil, ErrNoProfile
		}
		fsys = zfilesystem.NewOSFileSystem(env.DataDir)
	}

	pass, err := env.Prompt("profile store password: ")
	if err != nil {
		return nil, err
	}
	return profile.Open(fsys, pass)
}

// pickProfile resolves the profile to use: the named one, else the
// configured default, else the only one there is.
func pickProfile(store *profile.Store, name, fallback string) (profile.Profile, error) {
	if name == "" {
		name = fallback
	}
	if name != "" {
		p, err := store.Get(name)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("profile %q: %w", name, err)
		}
		return p, nil
	}

	all, err := store.List()
	if err != nil {
		return profile.Profile{}, err
	}
	if len(all) != 1 {
		return profile.Profile{}, ErrNoProfile
	}
	return all[0], nil
}

// Version prints the program version.
func Version(w io.Writer, version string) {
	fmt.Fprintf(w, "zguard %s\n", version)
}
