package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstore"
	"github.com/zarlcorp/core/pkg/zstyle"
)

// maxUnlockAttempts is how many wrong passwords end the program.
const maxUnlockAttempts = 3

// unlockModel asks for the password of the profile store.
type unlockModel struct {
	input    textinput.Model
	version  string
	firstRun bool
	confirm  string // first entry while creating
	failures int
	errMsg   string
}

// unlockMsg carries the password to open the profile store with.
type unlockMsg struct {
	password string
}

// unlockFailedMsg reports a store that would not open.
type unlockFailedMsg struct {
	err error
}

func newUnlockModel(version string, firstRun bool) unlockModel {
	ti := textinput.New()
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.CharLimit = 128
	ti.Width = 40
	ti.Focus()

	return unlockModel{input: ti, version: version, firstRun: firstRun}
}

func (m unlockModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m unlockModel) Update(msg tea.Msg) (unlockModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if key.Matches(msg, zstyle.KeyEnter) {
			return m.submit()
		}

	case unlockFailedMsg:
		return m.failed(msg.err)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m unlockModel) submit() (unlockModel, tea.Cmd) {
	val := m.input.Value()
	if val == "" {
		return m, nil
	}
	m.input.SetValue("")
	m.errMsg = ""

	if m.firstRun {
		if m.confirm == "" {
			m.confirm = val
			return m, nil
		}
		if val != m.confirm {
			m.confirm = ""
			m.errMsg = "passwords do not match"
			return m, nil
		}
	}

	return m, func() tea.Msg { return unlockMsg{password: val} }
}

func (m unlockModel) failed(err error) (unlockModel, tea.Cmd) {
	m.input.SetValue("")
	m.confirm = ""

	if !errors.Is(err, zstore.ErrWrongPassword) {
		m.errMsg = err.Error()
		return m, nil
	}

	m.failures++
	if m.failures >= maxUnlockAttempts {
		return m, tea.Quit
	}
	m.errMsg = fmt.Sprintf("wrong password (%d of %d)", m.failures, maxUnlockAttempts)
	return m, nil
}

func (m unlockModel) View() string {
	indent := lipgloss.NewStyle().MarginLeft(2)
	logo := indent.Render(zstyle.StyledLogo(lipgloss.NewStyle().Foreground(accent)))
	name := indent.Render(zstyle.MutedText.Render("zguard " + m.version))

	prompt := "profile store password:"
	switch {
	case m.firstRun && m.confirm != "":
		prompt = "confirm password:"
	case m.firstRun:
		prompt = "create a password for the profile store:"
	}

	s := fmt.Sprintf("\n%s\n%s\n\n  %s\n  %s\n", logo, name, prompt, m.input.View())
	if m.errMsg != "" {
		s += "\n  " + zstyle.StatusErr.Render(m.errMsg)
	}
	return s + "\n"
}
