package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/zguard/internal/profile"
)

const (
	pfName = iota
	pfURL
	pfUsername
	pfPassword
	pfCount
)

var profileFieldLabels = [pfCount]string{"name", "url", "username", "password"}

// profileFormModel adds a device or signs in to one again.
type profileFormModel struct {
	inputs   [pfCount]textinput.Model
	focus    int
	original string // name of the profile being edited
	busy     bool
	errMsg   string
}

// signInMsg asks the root to sign in and save the profile.
type signInMsg struct {
	original string
	profile  profile.Profile
	password string
}

func newProfileFormModel(existing *profile.Profile) profileFormModel {
	var inputs [pfCount]textinput.Model
	for i := range pfCount {
		ti := textinput.New()
		ti.CharLimit = 256
		ti.Width = 40
		ti.Prompt = ""
		inputs[i] = ti
	}
	inputs[pfURL].Placeholder = "http://192.168.1.1"
	inputs[pfPassword].EchoMode = textinput.EchoPassword
	inputs[pfPassword].EchoCharacter = '*'

	m := profileFormModel{inputs: inputs}
	if existing != nil {
		m.original = existing.Name
		m.inputs[pfName].SetValue(existing.Name)
		m.inputs[pfURL].SetValue(existing.URL)
		m.inputs[pfUsername].SetValue(existing.Username)
		// returning users only need the password
		m.focus = pfPassword
	}
	m.inputs[m.focus].Focus()
	return m
}

func (m profileFormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m profileFormModel) Update(msg tea.Msg) (profileFormModel, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}

	if keyMsg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	if key.Matches(keyMsg, zstyle.KeyBack) {
		return m, func() tea.Msg { return navigateMsg{view: viewProfiles} }
	}

	switch keyMsg.Type {
	case tea.KeyTab, tea.KeyDown:
		return m.move(1), textinput.Blink
	case tea.KeyShiftTab, tea.KeyUp:
		return m.move(-1), textinput.Blink
	case tea.KeyCtrlS:
		return m.submit()
	case tea.KeyEnter:
		if m.focus == pfCount-1 {
			return m.submit()
		}
		return m.move(1), textinput.Blink
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m profileFormModel) move(delta int) profileFormModel {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + pfCount) % pfCount
	m.inputs[m.focus].Focus()
	return m
}

func (m profileFormModel) submit() (profileFormModel, tea.Cmd) {
	p := profile.Profile{
		Name:     strings.TrimSpace(m.inputs[pfName].Value()),
		URL:      strings.TrimRight(strings.TrimSpace(m.inputs[pfURL].Value()), "/"),
		Username: strings.TrimSpace(m.inputs[pfUsername].Value()),
	}
	password := m.inputs[pfPassword].Value()

	if err := validateProfile(p); err != nil {
		m.errMsg = err.Error()
		return m, nil
	}
	if password == "" {
		m.errMsg = "password is required"
		return m, nil
	}

	m.errMsg = ""
	m.busy = true
	original := m.original
	return m, func() tea.Msg {
		return signInMsg{original: original, profile: p, password: password}
	}
}

// failed shows a sign-in error and unlocks the form.
func (m profileFormModel) failed(err error) profileFormModel {
	m.busy = false
	m.errMsg = err.Error()
	m.inputs[pfPassword].SetValue("")
	return m
}

func validateProfile(p profile.Profile) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("name is required")
	case p.Username == "":
		return fmt.Errorf("username is required")
	}
	u, err := url.Parse(p.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must look like http://host[:port]")
	}
	return nil
}

func (m profileFormModel) View() string {
	action := "add device"
	if m.original != "" {
		action = "sign in to " + m.original
	}
	s := fmt.Sprintf("\n  %s\n\n", zstyle.Title.Render(action))

	for i := range pfCount {
		label := zstyle.MutedText.Render(fmt.Sprintf("%-10s", profileFieldLabels[i]))
		cursor := "  "
		if i == m.focus {
			cursor = "> "
		}
		s += fmt.Sprintf("  %s%s %s\n", cursor, label, m.inputs[i].View())
	}

	s += "\n"
	switch {
	case m.busy:
		s += "  " + zstyle.MutedText.Render("signing in...") + "\n"
	case m.errMsg != "":
		s += "  " + zstyle.StatusErr.Render(m.errMsg) + "\n"
	}
	return s
}
