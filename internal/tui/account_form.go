package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zcrypto"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/zguard/internal/editor"
)

const (
	afUsername = iota
	afPassword
	afAdmin
	afCount
)

// generatedPasswordLength is the length of passwords made with ctrl+g.
const generatedPasswordLength = 20

// accountFormModel edits the controller draft. The root copies the form
// values into the draft after every message.
type accountFormModel struct {
	username textinput.Model
	password textinput.Model
	admin    bool
	focus    int
	creating bool
	reveal   bool

	// set by the root from the controller
	taken      bool
	canConfirm bool

	flash string
}

// confirmEditMsg commits the draft.
type confirmEditMsg struct{}

// cancelEditMsg discards the draft.
type cancelEditMsg struct{}

func newAccountFormModel(d editor.Draft) accountFormModel {
	newInput := func(v string) textinput.Model {
		ti := textinput.New()
		ti.CharLimit = 64
		ti.Width = 40
		ti.Prompt = ""
		ti.SetValue(v)
		return ti
	}

	m := accountFormModel{
		username: newInput(d.Account.Username),
		password: newInput(d.Account.Password),
		admin:    d.Account.Admin,
		creating: d.Creating,
	}
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '*'
	m.username.Focus()
	return m
}

func (m accountFormModel) Init() tea.Cmd {
	return textinput.Blink
}

// values returns the form contents as draft fields.
func (m accountFormModel) values() (username, password string, admin bool) {
	return m.username.Value(), m.password.Value(), m.admin
}

func (m accountFormModel) Update(msg tea.Msg) (accountFormModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case flashMsg:
		m.flash = ""
		return m, nil
	}
	return m.updateInput(msg)
}

func (m accountFormModel) handleKey(msg tea.KeyMsg) (accountFormModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyBack) {
		return m, func() tea.Msg { return cancelEditMsg{} }
	}

	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyDown:
		return m.move(1), textinput.Blink
	case tea.KeyShiftTab, tea.KeyUp:
		return m.move(-1), textinput.Blink
	case tea.KeyEnter:
		return m, func() tea.Msg { return confirmEditMsg{} }
	case tea.KeyCtrlG:
		m.password.SetValue(zcrypto.GeneratePassword(generatedPasswordLength))
		m.reveal = true
		m.password.EchoMode = textinput.EchoNormal
		return m, nil
	case tea.KeyCtrlR:
		m.reveal = !m.reveal
		m.password.EchoMode = textinput.EchoPassword
		if m.reveal {
			m.password.EchoMode = textinput.EchoNormal
		}
		return m, nil
	case tea.KeyCtrlY:
		return m.copyPassword()
	}

	if m.focus == afAdmin {
		if msg.String() == " " || msg.String() == "x" {
			m.admin = !m.admin
		}
		return m, nil
	}

	return m.updateInput(msg)
}

func (m accountFormModel) copyPassword() (accountFormModel, tea.Cmd) {
	pw := m.password.Value()
	if pw == "" {
		m.flash = "nothing to copy"
		return m, clearFlashAfter()
	}
	if err := copyToClipboard(pw); err != nil {
		m.flash = err.Error()
		return m, clearFlashAfter()
	}
	m.flash = "password copied"
	return m, clearFlashAfter()
}

func (m accountFormModel) move(delta int) accountFormModel {
	m.username.Blur()
	m.password.Blur()
	m.focus = (m.focus + delta + afCount) % afCount
	switch m.focus {
	case afUsername:
		m.username.Focus()
	case afPassword:
		m.password.Focus()
	}
	return m
}

func (m accountFormModel) updateInput(msg tea.Msg) (accountFormModel, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case afUsername:
		m.username, cmd = m.username.Update(msg)
	case afPassword:
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m accountFormModel) View() string {
	action := "edit account"
	if m.creating {
		action = "new account"
	}
	s := fmt.Sprintf("\n  %s\n\n", zstyle.Title.Render(action))

	row := func(i int, label, value string) string {
		cursor := "  "
		if i == m.focus {
			cursor = "> "
		}
		return fmt.Sprintf("  %s%s %s\n", cursor, zstyle.MutedText.Render(fmt.Sprintf("%-10s", label)), value)
	}

	admin := "[ ]"
	if m.admin {
		admin = "[x]"
	}

	s += row(afUsername, "username", m.username.View())
	s += row(afPassword, "password", m.password.View())
	s += row(afAdmin, "admin", admin)
	s += "\n"

	switch {
	case m.flash != "":
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	case m.taken:
		s += "  " + zstyle.StatusErr.Render("username already exists") + "\n"
	case !m.canConfirm:
		s += "  " + zstyle.MutedText.Render("username is required") + "\n"
	}
	return s
}
