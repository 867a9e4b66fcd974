package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/zguard/internal/account"
	"github.com/zarlcorp/zguard/internal/device"
	"github.com/zarlcorp/zguard/internal/editor"
	"github.com/zarlcorp/zguard/internal/profile"
	"github.com/zarlcorp/zguard/internal/resource"
)

// helpers

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func specialKey(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func enterKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func escKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEsc}
}

// typeText sends each rune of s as a key press.
func typeText[M interface{ Update(tea.Msg) (M, tea.Cmd) }](m M, s string) M {
	for _, r := range s {
		m, _ = m.Update(keyMsg(r))
	}
	return m
}

// errTest is a simple error for testing.
type errTest string

func (e errTest) Error() string { return string(e) }

func testAccounts() []account.Account {
	return []account.Account{
		{Username: "admin", Password: "admin", Admin: true},
		{Username: "guest", Password: "guest"},
	}
}

func fetchedAccountsModel(accounts []account.Account) accountsModel {
	return accountsModel{
		device:    "lab",
		accounts:  accounts,
		status:    resource.Fetched,
		canSubmit: account.HasAtLeastOneAdmin(accounts),
	}
}

// profiles view

func TestProfilesEmpty(t *testing.T) {
	m := newProfilesModel(nil, "")
	if !strings.Contains(m.View(), "no devices yet") {
		t.Error("empty list should say so")
	}

	if _, cmd := m.Update(enterKey()); cmd != nil {
		t.Error("enter on empty list should do nothing")
	}
}

func TestProfilesSelectsDefault(t *testing.T) {
	ps := []profile.Profile{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	m := newProfilesModel(ps, "b")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestProfilesConnect(t *testing.T) {
	ps := []profile.Profile{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}
	m := newProfilesModel(ps, "")

	m, _ = m.Update(keyMsg('j'))
	_, cmd := m.Update(enterKey())
	msg, ok := cmd().(connectMsg)
	if !ok {
		t.Fatal("expected connectMsg")
	}
	if msg.profile.Name != "b" {
		t.Errorf("profile = %q, want b", msg.profile.Name)
	}
}

func TestProfilesCursorClamps(t *testing.T) {
	m := newProfilesModel([]profile.Profile{{Name: "a"}}, "")
	m, _ = m.Update(keyMsg('j'))
	m, _ = m.Update(keyMsg('j'))
	if m.cursor != 0 {
		t.Errorf("cursor = %d", m.cursor)
	}
	m, _ = m.Update(keyMsg('k'))
	if m.cursor != 0 {
		t.Errorf("cursor = %d", m.cursor)
	}
}

func TestProfilesDeleteConfirm(t *testing.T) {
	m := newProfilesModel([]profile.Profile{{Name: "lab"}}, "")

	m, _ = m.Update(keyMsg('d'))
	if !strings.Contains(m.View(), `forget device "lab"?`) {
		t.Error("should ask for confirmation")
	}

	_, cmd := m.Update(keyMsg('y'))
	msg, ok := cmd().(deleteProfileMsg)
	if !ok || msg.name != "lab" {
		t.Fatalf("got %#v", msg)
	}
}

func TestProfilesDeleteCancel(t *testing.T) {
	m := newProfilesModel([]profile.Profile{{Name: "lab"}}, "")
	m, _ = m.Update(keyMsg('d'))
	m, cmd := m.Update(keyMsg('n'))
	if cmd != nil || m.confirm {
		t.Error("n should cancel")
	}
}

func TestProfilesShowsSignInState(t *testing.T) {
	m := newProfilesModel([]profile.Profile{{Name: "a", Token: "t"}, {Name: "b"}}, "")
	view := m.View()
	if !strings.Contains(view, "signed in") || !strings.Contains(view, "signed out") {
		t.Error("view should show token state")
	}
}

func TestProfilesAddEdit(t *testing.T) {
	m := newProfilesModel([]profile.Profile{{Name: "a"}}, "")

	_, cmd := m.Update(keyMsg('a'))
	if _, ok := cmd().(addProfileMsg); !ok {
		t.Error("a should add")
	}

	_, cmd = m.Update(keyMsg('e'))
	if msg, ok := cmd().(editProfileMsg); !ok || msg.profile.Name != "a" {
		t.Error("e should edit the selected profile")
	}
}

// profile form

func TestProfileFormSubmit(t *testing.T) {
	m := newProfileFormModel(nil)
	m.inputs[pfName].SetValue(" lab ")
	m.inputs[pfURL].SetValue("http://192.168.1.1/")
	m.inputs[pfUsername].SetValue("admin")
	m.inputs[pfPassword].SetValue("secret")

	m, cmd := m.Update(specialKey(tea.KeyCtrlS))
	if !m.busy {
		t.Error("form should be busy while signing in")
	}
	msg, ok := cmd().(signInMsg)
	if !ok {
		t.Fatal("expected signInMsg")
	}
	want := profile.Profile{Name: "lab", URL: "http://192.168.1.1", Username: "admin"}
	if msg.profile != want {
		t.Errorf("profile = %+v, want %+v", msg.profile, want)
	}
	if msg.password != "secret" || msg.original != "" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestProfileFormValidation(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		user     string
		password string
		want     string
	}{
		{"bad url", "192.168.1.1", "admin", "pw", "url must look like"},
		{"no user", "http://x", "", "pw", "username is required"},
		{"no password", "http://x", "admin", "", "password is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newProfileFormModel(nil)
			m.inputs[pfName].SetValue("lab")
			m.inputs[pfURL].SetValue(tt.url)
			m.inputs[pfUsername].SetValue(tt.user)
			m.inputs[pfPassword].SetValue(tt.password)

			m, cmd := m.Update(specialKey(tea.KeyCtrlS))
			if cmd != nil {
				t.Error("invalid form should not submit")
			}
			if !strings.Contains(m.View(), tt.want) {
				t.Errorf("view missing %q", tt.want)
			}
		})
	}
}

func TestProfileFormExistingFocusesPassword(t *testing.T) {
	p := profile.Profile{Name: "lab", URL: "http://x", Username: "admin"}
	m := newProfileFormModel(&p)

	if m.focus != pfPassword {
		t.Errorf("focus = %d, want password", m.focus)
	}
	m = typeText(m, "pw")
	_, cmd := m.Update(enterKey())
	msg, ok := cmd().(signInMsg)
	if !ok {
		t.Fatal("enter on the last field should submit")
	}
	if msg.original != "lab" || msg.password != "pw" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestProfileFormEnterAdvances(t *testing.T) {
	m := newProfileFormModel(nil)
	m, _ = m.Update(enterKey())
	if m.focus != pfURL {
		t.Errorf("focus = %d, want url", m.focus)
	}
}

func TestProfileFormFailed(t *testing.T) {
	m := newProfileFormModel(nil)
	m.busy = true
	m.inputs[pfPassword].SetValue("pw")

	m = m.failed(errTest("wrong username or password"))
	if m.busy {
		t.Error("failure should unlock the form")
	}
	if m.inputs[pfPassword].Value() != "" {
		t.Error("password should be cleared")
	}
	if !strings.Contains(m.View(), "wrong username or password") {
		t.Error("should show the error")
	}
}

func TestProfileFormBusyIgnoresKeys(t *testing.T) {
	m := newProfileFormModel(nil)
	m.busy = true
	m, _ = m.Update(keyMsg('x'))
	if m.inputs[pfName].Value() != "" {
		t.Error("busy form should not take input")
	}
}

func TestProfileFormEsc(t *testing.T) {
	m := newProfileFormModel(nil)
	_, cmd := m.Update(escKey())
	msg, ok := cmd().(navigateMsg)
	if !ok || msg.view != viewProfiles {
		t.Fatalf("got %#v", msg)
	}
}

// accounts view

func TestAccountsViewRows(t *testing.T) {
	m := fetchedAccountsModel(account.Sorted(testAccounts()))
	view := m.View()

	for _, want := range []string{"accounts on lab (2)", "admin", "guest", "********"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAccountsViewStatus(t *testing.T) {
	m := accountsModel{device: "lab"}
	if !strings.Contains(m.View(), "loading...") {
		t.Error("not fetched should show loading")
	}

	m.status = resource.Failed
	m.loadErr = "load: device unreachable"
	view := m.View()
	if !strings.Contains(view, "device unreachable") || !strings.Contains(view, "press r to retry") {
		t.Error("failure should show error and retry hint")
	}
}

func TestAccountsNoAdminBanner(t *testing.T) {
	m := fetchedAccountsModel([]account.Account{{Username: "guest"}})
	if !strings.Contains(m.View(), "no admin account") {
		t.Error("should warn when no admin exists")
	}

	m, cmd := m.Update(specialKey(tea.KeyCtrlS))
	if !strings.Contains(m.flash, "at least one admin") {
		t.Errorf("flash = %q", m.flash)
	}
	if cmd == nil {
		t.Fatal("expected flash timer")
	}
}

func TestAccountsKeys(t *testing.T) {
	accounts := account.Sorted(testAccounts())

	tests := []struct {
		name string
		key  tea.KeyMsg
		want tea.Msg
	}{
		{"add", keyMsg('a'), beginCreateMsg{}},
		{"edit", keyMsg('e'), beginEditMsg{account: accounts[0]}},
		{"enter edits", enterKey(), beginEditMsg{account: accounts[0]}},
		{"save", specialKey(tea.KeyCtrlS), submitMsg{}},
		{"reset", keyMsg('r'), resetMsg{}},
		{"back", escKey(), navigateMsg{view: viewProfiles}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fetchedAccountsModel(accounts)
			_, cmd := m.Update(tt.key)
			if cmd == nil {
				t.Fatal("expected command")
			}
			if got := cmd(); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAccountsKeysWaitForDocument(t *testing.T) {
	for _, status := range []resource.Status{resource.NotFetched, resource.Failed} {
		t.Run(status.String(), func(t *testing.T) {
			m := fetchedAccountsModel(account.Sorted(testAccounts()))
			m.status = status

			for _, k := range []tea.KeyMsg{keyMsg('a'), keyMsg('e'), keyMsg('d'), enterKey(), specialKey(tea.KeyCtrlS)} {
				next, cmd := m.Update(k)
				if cmd != nil {
					t.Errorf("%s: expected no command", k)
				}
				if next.confirm {
					t.Errorf("%s: should not ask to delete", k)
				}
			}

			_, cmd := m.Update(keyMsg('r'))
			if cmd == nil {
				t.Fatal("r should retry")
			}
			if _, ok := cmd().(resetMsg); !ok {
				t.Error("r should reset")
			}
		})
	}
}

func TestAccountsSavingBlocksChanges(t *testing.T) {
	m := fetchedAccountsModel(account.Sorted(testAccounts()))
	m.saving = true

	for _, k := range []tea.KeyMsg{keyMsg('a'), keyMsg('e'), keyMsg('d'), keyMsg('r'), specialKey(tea.KeyCtrlS)} {
		next, cmd := m.Update(k)
		if cmd != nil || next.confirm {
			t.Errorf("%s: should be ignored while saving", k)
		}
	}

	m, _ = m.Update(keyMsg('j'))
	if m.cursor != 1 {
		t.Error("cursor should still move while saving")
	}
}

func TestAccountsDeleteConfirm(t *testing.T) {
	m := fetchedAccountsModel(account.Sorted(testAccounts()))
	m, _ = m.Update(keyMsg('j'))
	m, _ = m.Update(keyMsg('d'))

	if !strings.Contains(m.View(), `delete account "guest"?`) {
		t.Error("should ask for confirmation")
	}

	_, cmd := m.Update(keyMsg('y'))
	msg, ok := cmd().(deleteAccountMsg)
	if !ok || msg.account.Username != "guest" {
		t.Fatalf("got %#v", msg)
	}
}

func TestAccountsDirtyEscNeedsTwice(t *testing.T) {
	m := fetchedAccountsModel(account.Sorted(testAccounts()))
	m.dirty = true

	m, cmd := m.Update(escKey())
	if !m.leaving {
		t.Fatal("first esc should warn")
	}
	if _, ok := cmd().(navigateMsg); ok {
		t.Fatal("first esc should not leave")
	}

	_, cmd = m.Update(escKey())
	if _, ok := cmd().(navigateMsg); !ok {
		t.Error("second esc should leave")
	}
}

func TestAccountsSync(t *testing.T) {
	ctrl := editor.New(nopResource{}, nopResource{})
	settings := account.Settings{Accounts: testAccounts()}
	ctrl.Hydrate(settings)

	loader := resource.New[account.Settings](nil)
	loader.Apply(settings, nil)

	m := accountsModel{cursor: 5}.sync(ctrl, loader)
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want clamped to 1", m.cursor)
	}
	if m.dirty {
		t.Error("unchanged collection is not dirty")
	}
	if !m.canSubmit {
		t.Error("should be submittable")
	}

	ctrl.DeleteAccount(account.Account{Username: "guest"})
	m = m.sync(ctrl, loader)
	if !m.dirty {
		t.Error("deleted account should mark dirty")
	}
	if len(m.accounts) != 1 || m.cursor != 0 {
		t.Errorf("accounts = %v cursor = %d", m.accounts, m.cursor)
	}
}

type nopResource struct{}

func (nopResource) Load()                 {}
func (nopResource) Save(account.Settings) {}
func (nopResource) Refresh()              {}

// account form

func TestAccountFormFromDraft(t *testing.T) {
	m := newAccountFormModel(editor.Draft{
		OriginalKey: "guest",
		Account:     account.Account{Username: "guest", Password: "pw"},
	})

	u, p, admin := m.values()
	if u != "guest" || p != "pw" || admin {
		t.Errorf("values = %q %q %v", u, p, admin)
	}
	if !strings.Contains(m.View(), "edit account") {
		t.Error("should say edit")
	}
}

func TestAccountFormTyping(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Creating: true, Account: account.Account{Admin: true}})
	m = typeText(m, "bob")
	m, _ = m.Update(specialKey(tea.KeyTab))
	m = typeText(m, "pw1")
	m, _ = m.Update(specialKey(tea.KeyTab))
	m, _ = m.Update(keyMsg(' '))

	u, p, admin := m.values()
	if u != "bob" || p != "pw1" || admin {
		t.Errorf("values = %q %q %v", u, p, admin)
	}
	if !strings.Contains(m.View(), "new account") {
		t.Error("should say new")
	}
}

func TestAccountFormAdminIgnoresText(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Creating: true})
	m.focus = afAdmin
	m, _ = m.Update(keyMsg('z'))
	if u, _, _ := m.values(); u != "" {
		t.Error("admin field should not type into inputs")
	}
}

func TestAccountFormGenerate(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Creating: true})
	m, _ = m.Update(specialKey(tea.KeyCtrlG))

	_, p, _ := m.values()
	if len(p) != generatedPasswordLength {
		t.Errorf("generated %q", p)
	}
	if !m.reveal {
		t.Error("generated password should be revealed")
	}
}

func TestAccountFormRevealToggle(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Account: account.Account{Password: "hunter2"}})
	if strings.Contains(m.View(), "hunter2") {
		t.Error("password should start masked")
	}
	m, _ = m.Update(specialKey(tea.KeyCtrlR))
	if !strings.Contains(m.View(), "hunter2") {
		t.Error("ctrl+r should reveal")
	}
}

func TestAccountFormCopyEmpty(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Creating: true})
	m, _ = m.Update(specialKey(tea.KeyCtrlY))
	if m.flash != "nothing to copy" {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestAccountFormHints(t *testing.T) {
	m := newAccountFormModel(editor.Draft{Creating: true})
	m.taken = true
	if !strings.Contains(m.View(), "username already exists") {
		t.Error("should show taken hint")
	}

	m.taken = false
	m.canConfirm = false
	if !strings.Contains(m.View(), "username is required") {
		t.Error("should show required hint")
	}
}

func TestAccountFormKeys(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyMsg
		want tea.Msg
	}{
		{"enter confirms", enterKey(), confirmEditMsg{}},
		{"esc cancels", escKey(), cancelEditMsg{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newAccountFormModel(editor.Draft{Creating: true})
			_, cmd := m.Update(tt.key)
			if got := cmd(); got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

// root

func TestRootStartsAtUnlock(t *testing.T) {
	m := New(Options{Version: "dev"})
	if m.active != viewUnlock {
		t.Errorf("active = %d", m.active)
	}
	if !strings.Contains(m.View(), "zguard dev") {
		t.Error("unlock view should render directly")
	}
}

func TestRootViewHasFooter(t *testing.T) {
	m := New(Options{})
	m.active = viewProfiles
	if !strings.Contains(m.View(), "connect") {
		t.Error("profiles footer should list connect")
	}
}

func TestRootQuitFromUnlock(t *testing.T) {
	m := New(Options{})
	_, cmd := m.Update(specialKey(tea.KeyCtrlC))
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c should quit")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is t…"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestSignInError(t *testing.T) {
	unauthorized := &device.Error{StatusCode: 401, Message: "Unauthorized"}
	if got := signInError(unauthorized).Error(); got != "wrong username or password" {
		t.Errorf("401: got %q", got)
	}
	if got := signInError(errTest("boom")).Error(); got != "boom" {
		t.Errorf("other: got %q", got)
	}
}
