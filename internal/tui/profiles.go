package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"
	"github.com/zarlcorp/zguard/internal/profile"
)

// profilesModel lists saved device profiles.
type profilesModel struct {
	profiles []profile.Profile
	cursor   int
	flash    string
	confirm  bool
}

// connectMsg asks the root to open a profile.
type connectMsg struct {
	profile profile.Profile
}

// addProfileMsg opens an empty profile form.
type addProfileMsg struct{}

// editProfileMsg opens the form for an existing profile.
type editProfileMsg struct {
	profile profile.Profile
}

// deleteProfileMsg removes a profile.
type deleteProfileMsg struct {
	name string
}

// newProfilesModel builds the list with the cursor on the named profile.
func newProfilesModel(profiles []profile.Profile, selected string) profilesModel {
	m := profilesModel{profiles: profiles}
	for i, p := range profiles {
		if p.Name == selected {
			m.cursor = i
		}
	}
	return m
}

func (m profilesModel) selected() (profile.Profile, bool) {
	if len(m.profiles) == 0 {
		return profile.Profile{}, false
	}
	return m.profiles[m.cursor], true
}

func (m profilesModel) Update(msg tea.Msg) (profilesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case flashMsg:
		m.flash = ""
	}
	return m, nil
}

func (m profilesModel) handleKey(msg tea.KeyMsg) (profilesModel, tea.Cmd) {
	if m.confirm {
		m.confirm = false
		if msg.String() != "y" {
			return m, nil
		}
		p, _ := m.selected()
		return m, func() tea.Msg { return deleteProfileMsg{name: p.Name} }
	}

	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	if key.Matches(msg, zstyle.KeyUp) {
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyDown) {
		if m.cursor < len(m.profiles)-1 {
			m.cursor++
		}
		return m, nil
	}

	if key.Matches(msg, zstyle.KeyEnter) {
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return connectMsg{profile: p} }
	}

	switch msg.String() {
	case "a":
		return m, func() tea.Msg { return addProfileMsg{} }
	case "e":
		p, ok := m.selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return editProfileMsg{profile: p} }
	case "d":
		if _, ok := m.selected(); ok {
			m.confirm = true
		}
	}
	return m, nil
}

func (m profilesModel) View() string {
	title := zstyle.Title.Render(fmt.Sprintf("devices (%d)", len(m.profiles)))
	s := fmt.Sprintf("\n  %s\n\n", title)

	if len(m.profiles) == 0 {
		s += "  " + zstyle.MutedText.Render("no devices yet, press a to add one") + "\n\n"
	}

	for i, p := range m.profiles {
		state := zstyle.MutedText.Render("signed out")
		if p.Token != "" {
			state = zstyle.StatusOK.Render("signed in")
		}
		line := fmt.Sprintf("%-16s %-36s", truncate(p.Name, 14), truncate(p.URL, 34))
		s += zstyle.RenderMenuItem(zstyle.MenuItem{Label: line, Active: i == m.cursor}, accent) + " " + state + "\n"
	}

	s += "\n"
	switch {
	case m.confirm:
		p, _ := m.selected()
		s += "  " + zstyle.StatusWarn.Render(fmt.Sprintf("forget device %q? (y/n)", p.Name)) + "\n"
	case m.flash != "":
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	}
	return s
}
