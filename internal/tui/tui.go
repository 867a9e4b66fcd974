// Package tui implements the zguard operator console.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/config"
	"github.com/zarlcorp/zguard/internal/device"
	"github.com/zarlcorp/zguard/internal/editor"
	"github.com/zarlcorp/zguard/internal/profile"
	"github.com/zarlcorp/zguard/internal/resource"
	"github.com/zarlcorp/zguard/internal/session"
)

type viewID int

const (
	viewUnlock viewID = iota
	viewProfiles
	viewProfileForm
	viewAccounts
	viewAccountForm
)

// TODO: switch to a zguard accent once zstyle defines one.
var accent = zstyle.ZburnAccent

// navigateMsg switches to another view.
type navigateMsg struct {
	view viewID
}

// flashMsg clears transient status lines.
type flashMsg struct{}

func clearFlashAfter() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return flashMsg{}
	})
}

// signedInMsg carries the outcome of a sign-in.
type signedInMsg struct {
	original string
	profile  profile.Profile
	token    string
	err      error
}

// Options configure the console.
type Options struct {
	Version  string
	DataDir  string
	FirstRun bool
	Config   config.Config
	Logger   *slog.Logger

	// FS backs the profile store; nil means the data dir on disk.
	FS zfilesystem.ReadWriteFileFS
}

// connection is the state of one signed-in device.
type connection struct {
	gen      int
	profile  profile.Profile
	client   *device.Client
	session  *session.Session
	loader   *resource.Loader[account.Settings]
	dispatch *dispatcher
	ctrl     *editor.Controller
}

// Model is the root TUI model.
type Model struct {
	opts  Options
	log   *slog.Logger
	store *profile.Store
	conn  *connection
	gen   int

	active      viewID
	unlock      unlockModel
	profiles    profilesModel
	profileForm profileFormModel
	accounts    accountsModel
	accountForm accountFormModel

	width  int
	height int
}

// New creates the root TUI model.
func New(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return Model{
		opts:   opts,
		log:    log,
		active: viewUnlock,
		unlock: newUnlockModel(opts.Version, opts.FirstRun),
	}
}

func (m Model) Init() tea.Cmd {
	return m.unlock.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case unlockMsg:
		return m.openStore(msg.password)

	case navigateMsg:
		return m.navigate(msg.view)

	case connectMsg:
		return m.connect(msg.profile)

	case addProfileMsg:
		m.profileForm = newProfileFormModel(nil)
		m.active = viewProfileForm
		return m, m.profileForm.Init()

	case editProfileMsg:
		p := msg.profile
		m.profileForm = newProfileFormModel(&p)
		m.active = viewProfileForm
		return m, m.profileForm.Init()

	case deleteProfileMsg:
		return m.handleDeleteProfile(msg.name)

	case signInMsg:
		return m, m.signIn(msg)

	case signedInMsg:
		return m.handleSignedIn(msg)
	}

	if m.conn != nil {
		if next, cmd, ok := m.updateConnection(msg); ok {
			return next, cmd
		}
	}

	return m.updateActive(msg)
}

// updateConnection handles messages that act on the signed-in device.
func (m Model) updateConnection(msg tea.Msg) (Model, tea.Cmd, bool) {
	c := m.conn.ctrl

	switch msg := msg.(type) {
	case settingsLoadedMsg:
		if m.stale(msg.gen) {
			return m, nil, true
		}
		m.conn.loader.Apply(msg.settings, msg.err)
		if msg.err == nil {
			c.Hydrate(m.conn.loader.Data())
			m = m.closeDroppedDraft()
			m.log.Info("settings loaded", "profile", m.conn.profile.Name, "accounts", len(c.Accounts()))
		} else {
			m.log.Error("load settings", "profile", m.conn.profile.Name, "err", msg.err)
		}
		if errors.Is(msg.err, device.ErrUnauthorized) {
			next, cmd := m.expire()
			return next, cmd, true
		}
		return m.syncAccounts(), nil, true

	case settingsSavedMsg:
		if m.stale(msg.gen) {
			return m, nil, true
		}
		m.accounts.saving = false
		m.conn.loader.Apply(msg.settings, msg.err)
		if msg.err != nil {
			m.log.Error("save settings", "profile", m.conn.profile.Name, "err", msg.err)
			m.accounts.flash = "save failed: " + msg.err.Error()
			return m.syncAccounts(), clearFlashAfter(), true
		}
		c.Hydrate(m.conn.loader.Data())
		dropped := m.active == viewAccountForm
		m = m.closeDroppedDraft()
		m.log.Info("settings saved", "profile", m.conn.profile.Name, "accounts", len(c.Accounts()))
		m.accounts.flash = "saved"
		if dropped {
			m.accounts.flash = "saved; the open edit was discarded"
		}
		return m.syncAccounts(), clearFlashAfter(), true

	case sessionRefreshedMsg:
		if m.stale(msg.gen) {
			return m, nil, true
		}
		err := m.conn.session.Verified(msg.err)
		if !m.conn.session.Authenticated() {
			next, cmd := m.expire()
			return next, cmd, true
		}
		if err != nil {
			m.log.Warn("refresh session", "profile", m.conn.profile.Name, "err", err)
		}
		m.accounts.operator = m.conn.session.Claims().Username
		return m, nil, true

	case beginCreateMsg:
		if !m.editable() || !c.BeginCreate() {
			return m, nil, true
		}
		return m.openAccountForm(), textinput.Blink, true

	case beginEditMsg:
		if !m.editable() || !c.BeginEdit(msg.account) {
			return m, nil, true
		}
		return m.openAccountForm(), textinput.Blink, true

	case confirmEditMsg:
		d, _ := c.Draft()
		if !c.Confirm() {
			m.accountForm.flash = "cannot save: " + confirmRefusal(c)
			return m, clearFlashAfter(), true
		}
		m.active = viewAccounts
		m.accounts.flash = d.Account.Username + " staged, ctrl+s to save"
		return m.syncAccounts(), clearFlashAfter(), true

	case cancelEditMsg:
		c.Cancel()
		m.active = viewAccounts
		return m.syncAccounts(), nil, true

	case deleteAccountMsg:
		if m.editable() && c.DeleteAccount(msg.account) {
			m.accounts.flash = msg.account.Username + " removed, ctrl+s to save"
		}
		return m.syncAccounts(), clearFlashAfter(), true

	case submitMsg:
		if !m.editable() || !c.Submit() {
			return m, nil, true
		}
		m.accounts.saving = true
		m.log.Info("submit settings", "profile", m.conn.profile.Name)
		return m.syncAccounts(), m.conn.dispatch.drain(), true

	case resetMsg:
		if !c.Reset() {
			return m, nil, true
		}
		return m.syncAccounts(), m.conn.dispatch.drain(), true
	}

	return m, nil, false
}

// editable reports whether the collection may be changed: a document is
// loaded and no save is in flight.
func (m Model) editable() bool {
	return m.conn.loader.Status() == resource.Fetched && !m.accounts.saving
}

// closeDroppedDraft leaves the account form once Hydrate has discarded the
// draft behind it.
func (m Model) closeDroppedDraft() Model {
	if m.active == viewAccountForm && m.conn.ctrl.State() == editor.Viewing {
		m.active = viewAccounts
	}
	return m
}

// stale reports whether a device result belongs to an older connection.
func (m Model) stale(gen int) bool {
	return m.conn == nil || m.conn.gen != gen
}

func confirmRefusal(c *editor.Controller) string {
	d, _ := c.Draft()
	if d.Account.Username == "" {
		return "username is required"
	}
	return "username already exists"
}

func (m Model) openAccountForm() Model {
	d, _ := m.conn.ctrl.Draft()
	m.accountForm = newAccountFormModel(d)
	m.active = viewAccountForm
	return m.syncDraft()
}

// syncDraft copies form edits into the controller draft and the
// controller's verdicts back into the form.
func (m Model) syncDraft() Model {
	c := m.conn.ctrl
	d, ok := c.Draft()
	if !ok {
		return m
	}

	username, password, admin := m.accountForm.values()
	if d.Account.Username != username {
		c.UpdateField(editor.FieldUsername, username)
	}
	if d.Account.Password != password {
		c.UpdateField(editor.FieldPassword, password)
	}
	if d.Account.Admin != admin {
		c.UpdateField(editor.FieldAdmin, admin)
	}

	m.accountForm.taken = c.IsUsernameTaken(username)
	m.accountForm.canConfirm = c.CanConfirm()
	return m
}

func (m Model) syncAccounts() Model {
	m.accounts = m.accounts.sync(m.conn.ctrl, m.conn.loader)
	return m
}

func (m Model) View() string {
	if m.active == viewUnlock {
		return m.unlock.View()
	}

	var content string
	switch m.active {
	case viewProfiles:
		content = m.profiles.View()
	case viewProfileForm:
		content = m.profileForm.View()
	case viewAccounts:
		content = m.accounts.View()
	case viewAccountForm:
		content = m.accountForm.View()
	}

	header := zstyle.RenderHeader("zguard", viewTitle(m.active), accent)
	sep := zstyle.RenderSeparator(m.width)
	footer := zstyle.RenderFooter(helpFor(m.active))

	return "\n" + header + "\n" + sep + "\n" + content + "\n" + footer + "\n"
}

func viewTitle(id viewID) string {
	switch id {
	case viewProfiles:
		return "Devices"
	case viewProfileForm:
		return "Sign In"
	case viewAccounts:
		return "Accounts"
	case viewAccountForm:
		return "Account"
	}
	return ""
}

// helpFor returns keybinding pairs for each view's footer.
func helpFor(id viewID) []zstyle.HelpPair {
	switch id {
	case viewProfiles:
		return []zstyle.HelpPair{
			{Key: "j/k", Desc: "navigate"},
			{Key: "enter", Desc: "connect"},
			{Key: "a", Desc: "add"},
			{Key: "e", Desc: "sign in"},
			{Key: "d", Desc: "forget"},
			{Key: "q", Desc: "quit"},
		}
	case viewProfileForm:
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "enter", Desc: "sign in"},
			{Key: "esc", Desc: "back"},
		}
	case viewAccounts:
		return []zstyle.HelpPair{
			{Key: "j/k", Desc: "navigate"},
			{Key: "a", Desc: "add"},
			{Key: "e", Desc: "edit"},
			{Key: "d", Desc: "delete"},
			{Key: "ctrl+s", Desc: "save"},
			{Key: "r", Desc: "reset"},
			{Key: "esc", Desc: "devices"},
			{Key: "q", Desc: "quit"},
		}
	case viewAccountForm:
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "space", Desc: "toggle admin"},
			{Key: "ctrl+g", Desc: "generate"},
			{Key: "ctrl+r", Desc: "reveal"},
			{Key: "ctrl+y", Desc: "copy"},
			{Key: "enter", Desc: "done"},
			{Key: "esc", Desc: "cancel"},
		}
	}
	return nil
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.active {
	case viewUnlock:
		m.unlock, cmd = m.unlock.Update(msg)
	case viewProfiles:
		m.profiles, cmd = m.profiles.Update(msg)
	case viewProfileForm:
		m.profileForm, cmd = m.profileForm.Update(msg)
	case viewAccounts:
		m.accounts, cmd = m.accounts.Update(msg)
	case viewAccountForm:
		m.accountForm, cmd = m.accountForm.Update(msg)
		if m.conn != nil {
			m = m.syncDraft()
		}
	}

	return m, cmd
}

func (m Model) openStore(password string) (tea.Model, tea.Cmd) {
	fsys := m.opts.FS
	if fsys == nil {
		if err := os.MkdirAll(m.opts.DataDir, 0o700); err != nil {
			m.unlock, _ = m.unlock.Update(unlockFailedMsg{err: fmt.Errorf("create data dir: %w", err)})
			return m, nil
		}
		fsys = zfilesystem.NewOSFileSystem(m.opts.DataDir)
	}

	s, err := profile.Open(fsys, password)
	if err != nil {
		m.log.Warn("unlock profile store", "err", err)
		var cmd tea.Cmd
		m.unlock, cmd = m.unlock.Update(unlockFailedMsg{err: err})
		return m, cmd
	}

	m.store = s
	return m.showProfiles(m.opts.Config.DefaultProfile)
}

func (m Model) showProfiles(selected string) (Model, tea.Cmd) {
	profiles, err := m.store.List()
	m.profiles = newProfilesModel(profiles, selected)
	m.active = viewProfiles
	if err != nil {
		m.profiles.flash = "load: " + err.Error()
		return m, clearFlashAfter()
	}
	return m, tea.ClearScreen
}

func (m Model) navigate(view viewID) (tea.Model, tea.Cmd) {
	switch view {
	case viewProfiles:
		var selected string
		if m.conn != nil {
			selected = m.conn.profile.Name
			m.log.Info("disconnect", "profile", selected)
		}
		m.conn = nil
		return m.showProfiles(selected)

	case viewAccounts:
		if m.conn == nil {
			return m, nil
		}
		m.active = viewAccounts
		return m.syncAccounts(), tea.ClearScreen
	}

	return m, nil
}

// connect opens the accounts view of p, or asks for a password when p has
// no usable token.
func (m Model) connect(p profile.Profile) (tea.Model, tea.Cmd) {
	client := device.NewClient(device.Config{URL: p.URL, Timeout: m.opts.Config.RequestTimeout()})
	sess, err := session.New(client, p.Token)
	if err != nil || !sess.Authenticated() {
		m.profileForm = newProfileFormModel(&p)
		if err != nil {
			m.profileForm.errMsg = "stored token is unusable, sign in again"
		}
		m.active = viewProfileForm
		return m, m.profileForm.Init()
	}

	m.gen++
	loader := resource.New[account.Settings](device.SettingsFetcher{Client: client})
	d := newDispatcher(m.gen, client, sess, loader, m.opts.Config.RequestTimeout())
	ctrl := editor.New(d, d)
	m.conn = &connection{
		gen:      m.gen,
		profile:  p,
		client:   client,
		session:  sess,
		loader:   loader,
		dispatch: d,
		ctrl:     ctrl,
	}
	m.log.Info("connect", "profile", p.Name, "url", p.URL, "operator", sess.Claims().Username)

	m.accounts = accountsModel{device: p.Name, operator: sess.Claims().Username}
	m.active = viewAccounts

	// a fresh controller is viewing, so Reset only queues the first load
	ctrl.Reset()
	return m.syncAccounts(), tea.Batch(tea.ClearScreen, d.drain())
}

// expire drops a connection whose token the device no longer accepts.
func (m Model) expire() (Model, tea.Cmd) {
	p := m.conn.profile
	m.log.Warn("session expired", "profile", p.Name)
	if err := m.store.SetToken(p.Name, ""); err != nil {
		m.log.Error("clear token", "profile", p.Name, "err", err)
	}
	p.Token = ""
	m.conn = nil

	m.profileForm = newProfileFormModel(&p)
	m.profileForm.errMsg = "session expired, sign in again"
	m.active = viewProfileForm
	return m, m.profileForm.Init()
}

func (m Model) signIn(msg signInMsg) tea.Cmd {
	client := device.NewClient(device.Config{URL: msg.profile.URL, Timeout: m.opts.Config.RequestTimeout()})
	timeout := m.opts.Config.RequestTimeout()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		token, err := client.SignIn(ctx, msg.profile.Username, msg.password)
		return signedInMsg{original: msg.original, profile: msg.profile, token: token, err: err}
	}
}

func (m Model) handleSignedIn(msg signedInMsg) (tea.Model, tea.Cmd) {
	p := msg.profile
	if msg.err != nil {
		m.log.Warn("sign in", "profile", p.Name, "err", msg.err)
		m.profileForm = m.profileForm.failed(signInError(msg.err))
		return m, nil
	}
	if _, err := session.ParseClaims(msg.token); err != nil {
		m.profileForm = m.profileForm.failed(err)
		return m, nil
	}

	p.Token = msg.token
	if err := m.store.Put(p); err != nil {
		m.profileForm = m.profileForm.failed(err)
		return m, nil
	}
	if msg.original != "" && msg.original != p.Name {
		if err := m.store.Delete(msg.original); err != nil {
			m.log.Error("remove renamed profile", "profile", msg.original, "err", err)
		}
	}
	m.log.Info("signed in", "profile", p.Name, "username", p.Username)
	return m.connect(p)
}

func signInError(err error) error {
	if errors.Is(err, device.ErrUnauthorized) {
		return errors.New("wrong username or password")
	}
	return err
}

func (m Model) handleDeleteProfile(name string) (tea.Model, tea.Cmd) {
	if err := m.store.Delete(name); err != nil {
		m.profiles.flash = "delete: " + err.Error()
		return m, clearFlashAfter()
	}
	m.log.Info("forget profile", "profile", name)
	next, _ := m.showProfiles("")
	next.profiles.flash = "forgot " + name
	return next, clearFlashAfter()
}

// Close locks the profile store. Call after the program exits.
func (m Model) Close() {
	if m.store != nil {
		m.store.Close()
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
