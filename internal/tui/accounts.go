package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/editor"
	"github.com/zarlcorp/zguard/internal/resource"
)

// accountsModel renders the committed account collection of a device.
type accountsModel struct {
	device    string
	operator  string
	accounts  []account.Account
	status    resource.Status
	loadErr   string
	canSubmit bool
	dirty     bool
	saving    bool
	leaving   bool
	cursor    int
	confirm   bool
	flash     string
}

// beginCreateMsg opens the form for a new account.
type beginCreateMsg struct{}

// beginEditMsg opens the form for an existing account.
type beginEditMsg struct {
	account account.Account
}

// deleteAccountMsg removes an account from the committed collection.
type deleteAccountMsg struct {
	account account.Account
}

// submitMsg sends the committed collection to the device.
type submitMsg struct{}

// resetMsg discards local changes and reloads from the device.
type resetMsg struct{}

// sync copies the controller and loader state into the view, keeping the
// cursor on a valid row.
func (m accountsModel) sync(c *editor.Controller, l *resource.Loader[account.Settings]) accountsModel {
	m.accounts = c.Accounts()
	m.status = l.Status()
	m.loadErr = l.Err()
	m.canSubmit = c.CanSubmit()
	m.dirty = l.Status() == resource.Fetched &&
		!slices.Equal(m.accounts, account.Sorted(l.Data().Accounts))

	if m.cursor >= len(m.accounts) {
		m.cursor = max(len(m.accounts)-1, 0)
	}
	return m
}

func (m accountsModel) selected() (account.Account, bool) {
	if len(m.accounts) == 0 {
		return account.Account{}, false
	}
	return m.accounts[m.cursor], true
}

func (m accountsModel) Update(msg tea.Msg) (accountsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case flashMsg:
		m.flash = ""
	}
	return m, nil
}

func (m accountsModel) handleKey(msg tea.KeyMsg) (accountsModel, tea.Cmd) {
	if m.confirm {
		m.confirm = false
		if msg.String() != "y" {
			return m, nil
		}
		a, _ := m.selected()
		return m, func() tea.Msg { return deleteAccountMsg{account: a} }
	}

	leaving := m.leaving
	m.leaving = false

	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyBack) {
		if m.dirty && !leaving {
			m.leaving = true
			m.flash = "unsaved changes, esc again to discard"
			return m, clearFlashAfter()
		}
		return m, func() tea.Msg { return navigateMsg{view: viewProfiles} }
	}

	// until a document is loaded only a retry makes sense
	if m.status != resource.Fetched {
		if msg.String() == "r" {
			return m, func() tea.Msg { return resetMsg{} }
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyUp) {
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyDown) {
		if m.cursor < len(m.accounts)-1 {
			m.cursor++
		}
		return m, nil
	}

	// changes wait for the save in flight to land
	if m.saving {
		return m, nil
	}

	if msg.Type == tea.KeyCtrlS {
		if !m.canSubmit {
			m.flash = "at least one admin account is required"
			return m, clearFlashAfter()
		}
		return m, func() tea.Msg { return submitMsg{} }
	}

	if key.Matches(msg, zstyle.KeyEnter) || msg.String() == "e" {
		a, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return beginEditMsg{account: a} }
	}

	switch msg.String() {
	case "a":
		return m, func() tea.Msg { return beginCreateMsg{} }
	case "d":
		if _, ok := m.selected(); ok {
			m.confirm = true
		}
	case "r":
		return m, func() tea.Msg { return resetMsg{} }
	}
	return m, nil
}

func (m accountsModel) View() string {
	title := zstyle.Title.Render(fmt.Sprintf("accounts on %s (%d)", m.device, len(m.accounts)))
	s := fmt.Sprintf("\n  %s\n", title)
	if m.operator != "" {
		s += "  " + zstyle.MutedText.Render("signed in as "+m.operator) + "\n"
	}
	s += "\n"

	switch m.status {
	case resource.NotFetched:
		return s + "  " + zstyle.MutedText.Render("loading...") + "\n"
	case resource.Failed:
		s += "  " + zstyle.StatusErr.Render(m.loadErr) + "\n"
		return s + "  " + zstyle.MutedText.Render("press r to retry") + "\n"
	}

	if !m.canSubmit {
		s += "  " + zstyle.StatusWarn.Render("no admin account: saving is disabled until one exists") + "\n\n"
	}

	if len(m.accounts) == 0 {
		s += "  " + zstyle.MutedText.Render("no accounts") + "\n"
	}

	s += "  " + zstyle.MutedText.Render(fmt.Sprintf("  %-24s %-8s %s", "username", "role", "password")) + "\n"
	for i, a := range m.accounts {
		role := "user"
		if a.Admin {
			role = "admin"
		}
		line := fmt.Sprintf("%-24s %-8s %s", truncate(a.Username, 22), role, maskPassword(a.Password))
		if i == m.cursor {
			s += zstyle.Highlight.Render("> "+line) + "\n"
		} else {
			s += "  " + line + "\n"
		}
	}

	s += "\n"
	switch {
	case m.confirm:
		a, _ := m.selected()
		s += "  " + zstyle.StatusWarn.Render(fmt.Sprintf("delete account %q? (y/n)", a.Username)) + "\n"
	case m.saving:
		s += "  " + zstyle.MutedText.Render("saving...") + "\n"
	case m.flash != "":
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	case m.dirty:
		s += "  " + zstyle.StatusWarn.Render("unsaved changes, ctrl+s to save") + "\n"
	}
	return s
}

// maskPassword hides a password but keeps empty ones visible.
func maskPassword(p string) string {
	if p == "" {
		return zstyle.MutedText.Render("(none)")
	}
	return "********"
}
