package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/device"
	"github.com/zarlcorp/zguard/internal/editor"
	"github.com/zarlcorp/zguard/internal/profile"
	"github.com/zarlcorp/zguard/internal/resource"
	"github.com/zarlcorp/zguard/internal/session"
)

// ErrNoAdmin is returned when a change would leave the device without an
// administrator.
var ErrNoAdmin = errors.New("refusing to save: at least one admin account is required")

// inline runs controller requests synchronously and keeps the error of the
// latest call of each kind.
type inline struct {
	ctx     context.Context
	loader  *resource.Loader[account.Settings]
	session *session.Session

	loadErr    error
	saveErr    error
	refreshErr error
}

func (r *inline) Load() {
	r.loadErr = r.loader.Load(r.ctx)
}

func (r *inline) Save(s account.Settings) {
	r.saveErr = r.loader.Save(r.ctx, s)
}

func (r *inline) Refresh() {
	r.refreshErr = r.session.Refresh(r.ctx)
}

// remote is an open, signed-in device.
type remote struct {
	env     Env
	store   *profile.Store
	profile profile.Profile
	session *session.Session
	ctrl    *editor.Controller
	io      *inline
}

// dial unlocks the store, signs in to the chosen profile when needed and
// loads the device settings.
func dial(ctx context.Context, env Env, profileName string) (*remote, error) {
	store, err := OpenStore(env)
	if err != nil {
		return nil, err
	}

	r, err := dialProfile(ctx, env, store, profileName)
	if err != nil {
		store.Close()
		return nil, err
	}
	return r, nil
}

func dialProfile(ctx context.Context, env Env, store *profile.Store, profileName string) (*remote, error) {
	p, err := pickProfile(store, profileName, env.Config.DefaultProfile)
	if err != nil {
		return nil, err
	}

	client := device.NewClient(device.Config{URL: p.URL, Timeout: env.Config.RequestTimeout()})
	sess, err := session.New(client, p.Token)
	if err != nil {
		// unusable stored token; sign in fresh
		sess, _ = session.New(client, "")
	}

	loader := resource.New[account.Settings](device.SettingsFetcher{Client: client})
	io := &inline{ctx: ctx, loader: loader, session: sess}
	r := &remote{
		env:     env,
		store:   store,
		profile: p,
		session: sess,
		ctrl:    editor.New(io, io),
		io:      io,
	}

	if !sess.Authenticated() {
		if err := r.signIn(ctx); err != nil {
			return nil, err
		}
	}

	if err := r.load(); errors.Is(err, device.ErrUnauthorized) {
		if err := r.signIn(ctx); err != nil {
			return nil, err
		}
		err = r.load()
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *remote) signIn(ctx context.Context) error {
	pass, err := r.env.Prompt(fmt.Sprintf("%s password for %s: ", r.profile.Username, r.profile.Name))
	if err != nil {
		return err
	}
	if err := r.session.SignIn(ctx, r.profile.Username, pass); err != nil {
		if errors.Is(err, device.ErrUnauthorized) {
			return errors.New("sign in: wrong username or password")
		}
		return err
	}
	if err := r.store.SetToken(r.profile.Name, r.session.Token()); err != nil {
		return fmt.Errorf("remember token: %w", err)
	}
	return nil
}

// load resets the controller, which reloads the settings document.
func (r *remote) load() error {
	r.ctrl.Reset()
	if r.io.loadErr != nil {
		return r.io.loadErr
	}
	r.ctrl.Hydrate(r.io.loader.Data())
	return nil
}

// submit saves the committed collection and re-validates the session.
func (r *remote) submit() error {
	if !r.ctrl.Submit() {
		return ErrNoAdmin
	}
	if r.io.saveErr != nil {
		return r.io.saveErr
	}
	r.ctrl.Hydrate(r.io.loader.Data())

	switch {
	case !r.session.Authenticated():
		// the change invalidated our own token
		fmt.Fprintf(r.env.Stderr, "saved; the session for %s ended, sign in again next time\n", r.profile.Name)
		if err := r.store.SetToken(r.profile.Name, ""); err != nil {
			return fmt.Errorf("forget token: %w", err)
		}
	case r.io.refreshErr != nil:
		fmt.Fprintf(r.env.Stderr, "saved; %v\n", r.io.refreshErr)
	}
	return nil
}

func (r *remote) Close() error {
	return r.store.Close()
}
