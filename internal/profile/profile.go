// Package profile stores device connection profiles in an encrypted zstore
// collection. A profile remembers where a device lives and the access token
// last issued for it.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"
)

const collectionName = "profiles"

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("profile not found")

// ErrInvalid is returned for a profile missing its name or URL.
var ErrInvalid = errors.New("profile needs a name and url")

// Profile is a saved device connection.
type Profile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// Store holds profiles.
type Store struct {
	store    *zstore.Store
	profiles *zstore.Collection[Profile]
}

// Open unlocks (or on first run initializes) the profile store in fsys.
// A wrong password fails with zstore.ErrWrongPassword.
func Open(fsys zfilesystem.ReadWriteFileFS, password string) (*Store, error) {
	s, err := zstore.Open(fsys, []byte(password))
	if err != nil {
		return nil, err
	}

	col, err := zstore.NewCollection[Profile](s, collectionName)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open profiles: %w", err)
	}

	return &Store{store: s, profiles: col}, nil
}

// Put saves p, replacing any profile of the same name.
func (s *Store) Put(p Profile) error {
	p.Name = strings.TrimSpace(p.Name)
	p.URL = strings.TrimSpace(p.URL)
	if p.Name == "" || p.URL == "" {
		return ErrInvalid
	}

	if err := s.profiles.Put(p.Name, p); err != nil {
		return fmt.Errorf("save profile %s: %w", p.Name, err)
	}
	return nil
}

// Get returns the named profile.
func (s *Store) Get(name string) (Profile, error) {
	all, err := s.List()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range all {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

// List returns all profiles sorted by name.
func (s *Store) List() ([]Profile, error) {
	all, err := s.profiles.List()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	return all, nil
}

// Delete removes the named profile.
func (s *Store) Delete(name string) error {
	if _, err := s.Get(name); err != nil {
		return err
	}
	if err := s.profiles.Delete(name); err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	return nil
}

// SetToken updates the stored token of a profile.
func (s *Store) SetToken(name, token string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	p.Token = token
	return s.Put(p)
}

// Close locks the store.
func (s *Store) Close() error {
	s.store.Close()
	return nil
}
