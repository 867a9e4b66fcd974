// Package editor holds the account editing state machine: a committed
// security settings document, at most one draft account, and the guarded
// transitions between viewing and editing.
//
// Every operation is total. A call that is not allowed in the current
// state, or whose guard fails, returns false and changes nothing.
package editor

import (
	"github.com/zarlcorp/zguard/internal/account"
)

// State is the controller's mode.
type State int

const (
	Viewing State = iota
	Editing
)

func (s State) String() string {
	switch s {
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	}
	return "unknown"
}

// Field names a draft account field.
type Field int

const (
	FieldUsername Field = iota
	FieldPassword
	FieldAdmin
)

// Resource is the remote settings document. Both calls are dispatched and
// forgotten; results come back through Hydrate.
type Resource interface {
	Load()
	Save(account.Settings)
}

// Refresher re-validates the operator's session after a save.
type Refresher interface {
	Refresh()
}

// Draft is the account being edited, keyed by the username it had when the
// edit began. OriginalKey is empty while creating.
type Draft struct {
	OriginalKey string
	Account     account.Account
	Creating    bool
}

// With returns a copy of d with one field replaced. Username and password
// take a string, admin takes a bool; any other value leaves d unchanged.
func (d Draft) With(f Field, value any) Draft {
	switch f {
	case FieldUsername:
		if v, ok := value.(string); ok {
			d.Account.Username = v
		}
	case FieldPassword:
		if v, ok := value.(string); ok {
			d.Account.Password = v
		}
	case FieldAdmin:
		if v, ok := value.(bool); ok {
			d.Account.Admin = v
		}
	}
	return d
}

// Controller owns the committed settings and the edit buffer.
type Controller struct {
	resource  Resource
	refresher Refresher

	committed account.Settings
	draft     *Draft

	// hydrated is false from New or Reset until the next Hydrate.
	hydrated bool
}

// New creates a controller in the viewing state with an empty collection.
func New(resource Resource, refresher Refresher) *Controller {
	return &Controller{
		resource:  resource,
		refresher: refresher,
		committed: account.Settings{Accounts: []account.Account{}},
	}
}

// Hydrate replaces the committed settings with a freshly loaded document.
// Any edit in progress is discarded.
func (c *Controller) Hydrate(s account.Settings) {
	c.committed = s.Clone()
	c.draft = nil
	c.hydrated = true
}

// Hydrated reports whether the committed collection came from a loaded
// document rather than the empty placeholder used before a load lands.
func (c *Controller) Hydrated() bool {
	return c.hydrated
}

// State reports whether a draft is open.
func (c *Controller) State() State {
	if c.draft != nil {
		return Editing
	}
	return Viewing
}

// Accounts returns the committed accounts in display order.
func (c *Controller) Accounts() []account.Account {
	return account.Sorted(c.committed.Accounts)
}

// Settings returns a copy of the committed document.
func (c *Controller) Settings() account.Settings {
	return c.committed.Clone()
}

// Draft returns the open draft, if any.
func (c *Controller) Draft() (Draft, bool) {
	if c.draft == nil {
		return Draft{}, false
	}
	return *c.draft, true
}

// Creating reports whether the open draft is a new account.
func (c *Controller) Creating() bool {
	return c.draft != nil && c.draft.Creating
}

// CanSubmit reports whether the committed collection may be saved.
func (c *Controller) CanSubmit() bool {
	return account.HasAtLeastOneAdmin(c.committed.Accounts)
}

// IsUsernameTaken reports whether candidate collides with a committed
// account other than the one being edited.
func (c *Controller) IsUsernameTaken(candidate string) bool {
	excluding := ""
	if c.draft != nil {
		excluding = c.draft.OriginalKey
	}
	return !account.IsUsernameUnique(c.committed.Accounts, candidate, excluding)
}

// CanConfirm reports whether the open draft may be merged.
func (c *Controller) CanConfirm() bool {
	if c.draft == nil {
		return false
	}
	name := c.draft.Account.Username
	return name != "" && !c.IsUsernameTaken(name)
}

// BeginCreate opens a draft for a new account. New accounts default to
// administrator.
func (c *Controller) BeginCreate() bool {
	if c.draft != nil {
		return false
	}
	c.draft = &Draft{
		Account:  account.Account{Admin: true},
		Creating: true,
	}
	return true
}

// BeginEdit opens a draft copied from a committed account.
func (c *Controller) BeginEdit(a account.Account) bool {
	if c.draft != nil {
		return false
	}
	existing, ok := account.Find(c.committed.Accounts, a.Username)
	if !ok {
		return false
	}
	c.draft = &Draft{
		OriginalKey: existing.Username,
		Account:     existing,
	}
	return true
}

// UpdateField replaces the draft with one field changed.
func (c *Controller) UpdateField(f Field, value any) bool {
	if c.draft == nil {
		return false
	}
	next := c.draft.With(f, value)
	c.draft = &next
	return true
}

// Cancel drops the draft. The committed collection is untouched.
func (c *Controller) Cancel() bool {
	if c.draft == nil {
		return false
	}
	c.draft = nil
	return true
}

// Confirm merges the draft into the committed collection, replacing the
// record it was opened from.
func (c *Controller) Confirm() bool {
	if !c.CanConfirm() {
		return false
	}
	d := *c.draft
	c.committed.Accounts = account.Replace(c.committed.Accounts, d.OriginalKey, d.Account)
	c.draft = nil
	return true
}

// DeleteAccount removes a committed account. Removing the last
// administrator is allowed; Submit is what stays blocked.
func (c *Controller) DeleteAccount(a account.Account) bool {
	if c.draft != nil {
		return false
	}
	if _, ok := account.Find(c.committed.Accounts, a.Username); !ok {
		return false
	}
	c.committed.Accounts = account.Remove(c.committed.Accounts, a.Username)
	return true
}

// Submit dispatches a save of the committed document and then asks for a
// session refresh. Nothing is saved until a document has been hydrated, so
// the placeholder never overwrites the device.
func (c *Controller) Submit() bool {
	if c.draft != nil || !c.hydrated || !c.CanSubmit() {
		return false
	}
	c.resource.Save(c.committed.Clone())
	c.refresher.Refresh()
	return true
}

// Reset discards local changes and reloads the document.
func (c *Controller) Reset() bool {
	if c.draft != nil {
		return false
	}
	c.committed = account.Settings{Accounts: []account.Account{}}
	c.hydrated = false
	c.resource.Load()
	return true
}
