// Package account defines device login accounts and the pure rules over a
// collection of them: display ordering, the uniqueness and admin checks,
// and copy-on-write create/update/delete.
package account

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Account is a single device login.
type Account struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

// Compare orders accounts by username, byte-wise.
func Compare(a, b Account) int {
	switch {
	case a.Username < b.Username:
		return -1
	case a.Username > b.Username:
		return 1
	}
	return 0
}

// Sorted returns a copy of accounts in display order.
func Sorted(accounts []Account) []Account {
	out := make([]Account, len(accounts))
	copy(out, accounts)
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j]) < 0
	})
	return out
}

// IsUsernameUnique reports whether candidate is free to use. An account
// named excluding does not count as a collision, so a record being edited
// never collides with itself. An empty excluding disables the exclusion.
func IsUsernameUnique(accounts []Account, candidate, excluding string) bool {
	for _, a := range accounts {
		if a.Username != candidate {
			continue
		}
		if excluding == "" || a.Username != excluding {
			return false
		}
	}
	return true
}

// HasAtLeastOneAdmin reports whether any account is an administrator.
func HasAtLeastOneAdmin(accounts []Account) bool {
	for _, a := range accounts {
		if a.Admin {
			return true
		}
	}
	return false
}

// Find returns the account with the given username.
func Find(accounts []Account, username string) (Account, bool) {
	for _, a := range accounts {
		if a.Username == username {
			return a, true
		}
	}
	return Account{}, false
}

// Remove returns a new collection without the named account. The input is
// not modified.
func Remove(accounts []Account, username string) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Username != username {
			out = append(out, a)
		}
	}
	return out
}

// Replace drops the account keyed by originalKey and appends a. An empty
// originalKey inserts a without removing anything. Any account already
// holding a's username is dropped as well so the result never carries a
// duplicate.
func Replace(accounts []Account, originalKey string, a Account) []Account {
	out := make([]Account, 0, len(accounts)+1)
	for _, existing := range accounts {
		if originalKey != "" && existing.Username == originalKey {
			continue
		}
		if existing.Username == a.Username {
			continue
		}
		out = append(out, existing)
	}
	return append(out, a)
}

// usersKey is the wire key of the account list.
const usersKey = "users"

// Settings is the security settings document exchanged with the device:
// the account list plus every sibling field, which is carried through
// untouched.
type Settings struct {
	Accounts []Account

	// passthrough holds every non-account key verbatim (jwt_secret, ...).
	passthrough map[string]json.RawMessage
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := Settings{Accounts: make([]Account, len(s.Accounts))}
	copy(c.Accounts, s.Accounts)
	if s.passthrough != nil {
		c.passthrough = make(map[string]json.RawMessage, len(s.passthrough))
		for k, v := range s.passthrough {
			c.passthrough[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// WithAccounts returns a copy of s carrying accounts and the same
// passthrough fields.
func (s Settings) WithAccounts(accounts []Account) Settings {
	c := s.Clone()
	c.Accounts = make([]Account, len(accounts))
	copy(c.Accounts, accounts)
	return c
}

// Passthrough returns the raw JSON of a non-account field.
func (s Settings) Passthrough(key string) (json.RawMessage, bool) {
	v, ok := s.passthrough[key]
	return v, ok
}

// WithPassthrough returns a copy of s with a non-account field set to raw.
func (s Settings) WithPassthrough(key string, raw json.RawMessage) Settings {
	c := s.Clone()
	if key == usersKey {
		return c
	}
	if c.passthrough == nil {
		c.passthrough = make(map[string]json.RawMessage, 1)
	}
	c.passthrough[key] = append(json.RawMessage(nil), raw...)
	return c
}

func (s Settings) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(s.passthrough)+1)
	for k, v := range s.passthrough {
		doc[k] = v
	}

	accounts := s.Accounts
	if accounts == nil {
		accounts = []Account{}
	}
	users, err := json.Marshal(accounts)
	if err != nil {
		return nil, fmt.Errorf("marshal users: %w", err)
	}
	doc[usersKey] = users

	return json.Marshal(doc)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	var accounts []Account
	if raw, ok := doc[usersKey]; ok {
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return fmt.Errorf("unmarshal users: %w", err)
		}
		delete(doc, usersKey)
	}
	if accounts == nil {
		accounts = []Account{}
	}

	s.Accounts = accounts
	s.passthrough = doc
	return nil
}
