package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/device"
	"github.com/zarlcorp/zguard/internal/resource"
	"github.com/zarlcorp/zguard/internal/session"
)

// settingsLoadedMsg carries the result of a settings fetch.
type settingsLoadedMsg struct {
	gen      int
	settings account.Settings
	err      error
}

// settingsSavedMsg carries the document the device stored.
type settingsSavedMsg struct {
	gen      int
	settings account.Settings
	err      error
}

// sessionRefreshedMsg carries the outcome of a token verification.
type sessionRefreshedMsg struct {
	gen int
	err error
}

// dispatcher queues device requests made by the controller. Each command
// works on a client snapshot taken when it was queued, so nothing shared
// is touched off the update loop. The root drains the queue after every
// message and runs it in order.
type dispatcher struct {
	gen     int
	client  *device.Client
	session *session.Session
	loader  *resource.Loader[account.Settings]
	timeout time.Duration
	pending []tea.Cmd
}

func newDispatcher(gen int, c *device.Client, s *session.Session, l *resource.Loader[account.Settings], timeout time.Duration) *dispatcher {
	return &dispatcher{gen: gen, client: c, session: s, loader: l, timeout: timeout}
}

func (d *dispatcher) snapshot() device.SettingsFetcher {
	return device.SettingsFetcher{Client: d.client.WithToken(d.session.Token())}
}

// Load implements editor.Resource.
func (d *dispatcher) Load() {
	d.loader.Invalidate()
	f, gen, timeout := d.snapshot(), d.gen, d.timeout
	d.pending = append(d.pending, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s, err := f.Fetch(ctx)
		return settingsLoadedMsg{gen: gen, settings: s, err: err}
	})
}

// Save implements editor.Resource.
func (d *dispatcher) Save(s account.Settings) {
	f, gen, timeout := d.snapshot(), d.gen, d.timeout
	d.pending = append(d.pending, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		stored, err := f.Store(ctx, s)
		return settingsSavedMsg{gen: gen, settings: stored, err: err}
	})
}

// Refresh implements editor.Refresher.
func (d *dispatcher) Refresh() {
	c, gen, timeout := d.client.WithToken(d.session.Token()), d.gen, d.timeout
	d.pending = append(d.pending, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sessionRefreshedMsg{gen: gen, err: c.VerifyAuthorization(ctx)}
	})
}

// drain returns the queued requests as one ordered command.
func (d *dispatcher) drain() tea.Cmd {
	if len(d.pending) == 0 {
		return nil
	}
	cmds := d.pending
	d.pending = nil
	return tea.Sequence(cmds...)
}
