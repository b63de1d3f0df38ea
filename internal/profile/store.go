// Package profile holds the in-memory model of named extractor profiles.
//
// A Store is read by argument composition and resolution and mutated only
// by alias registration during the sequential resolve phase. It does no I/O;
// configstore loads and saves it.
package profile

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultID = "default"
	GlobalID  = "global"
)

var (
	ErrDuplicateProfile = errors.New("duplicate profile id")
	ErrReservedProfile  = errors.New("reserved profile id")
	ErrEmptyProfileID   = errors.New("empty profile id")
)

type Profile struct {
	ID      string
	Aliases []string
	Args    []string
}

// New lowercases the id and aliases and copies args.
func New(id string, aliases, args []string) Profile {
	p := Profile{
		ID:   normalize(id),
		Args: append([]string{}, args...),
	}
	for _, a := range aliases {
		if v := normalize(a); v != "" {
			p.Aliases = append(p.Aliases, v)
		}
	}
	return p
}

type Store struct {
	global  Profile
	def     Profile
	order   []string
	byID    map[string]*Profile
	aliases map[string]string
	dirty   bool
}

// NewStore builds a store from the reserved profiles and the named ones in
// config order. Aliases that collide with a profile id or with an alias
// already taken are dropped.
func NewStore(global, def Profile, named ...Profile) (*Store, error) {
	s := &Store{
		global:  New(GlobalID, nil, global.Args),
		def:     New(DefaultID, nil, def.Args),
		order:   make([]string, 0, len(named)),
		byID:    make(map[string]*Profile, len(named)),
		aliases: make(map[string]string),
	}
	for _, raw := range named {
		p := New(raw.ID, nil, raw.Args)
		switch {
		case p.ID == "":
			return nil, ErrEmptyProfileID
		case p.ID == DefaultID || p.ID == GlobalID:
			return nil, errors.Wrapf(ErrReservedProfile, "profile %q", p.ID)
		}
		if _, ok := s.byID[p.ID]; ok {
			return nil, errors.Wrapf(ErrDuplicateProfile, "profile %q", p.ID)
		}
		s.byID[p.ID] = &p
		s.order = append(s.order, p.ID)
	}
	// aliases go in after every id is known so a later id still shadows them
	for _, raw := range named {
		id := normalize(raw.ID)
		for _, a := range New(id, raw.Aliases, nil).Aliases {
			s.addAlias(id, a)
		}
	}
	return s, nil
}

func (s *Store) Global() Profile  { return clone(&s.global) }
func (s *Store) Default() Profile { return clone(&s.def) }

// Get looks up a named profile by id.
func (s *Store) Get(id string) (Profile, bool) {
	p, ok := s.byID[normalize(id)]
	if !ok {
		return Profile{}, false
	}
	return clone(p), true
}

func (s *Store) GetByAlias(alias string) (Profile, bool) {
	id, ok := s.aliases[normalize(alias)]
	if !ok {
		return Profile{}, false
	}
	return s.Get(id)
}

// RegisterAlias adds alias to the profile unless it is already mapped
// anywhere or equals a profile id. It reports whether the store changed.
func (s *Store) RegisterAlias(profileID, alias string) bool {
	id := normalize(profileID)
	if _, ok := s.byID[id]; !ok {
		return false
	}
	if !s.addAlias(id, normalize(alias)) {
		return false
	}
	s.dirty = true
	return true
}

// IDs returns named profile ids in insertion (config) order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.order...)
}

// Dirty reports whether an alias was registered since the store was built
// or last saved.
func (s *Store) Dirty() bool {
	return s.dirty
}

// MarkClean is called once the store has been written out.
func (s *Store) MarkClean() {
	s.dirty = false
}

type Snapshot struct {
	Global  Profile
	Default Profile
	Named   []Profile
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Global:  s.Global(),
		Default: s.Default(),
		Named:   make([]Profile, 0, len(s.order)),
	}
	for _, id := range s.order {
		snap.Named = append(snap.Named, clone(s.byID[id]))
	}
	return snap
}

func (s *Store) addAlias(id, alias string) bool {
	if alias == "" || alias == DefaultID || alias == GlobalID {
		return false
	}
	if _, isID := s.byID[alias]; isID {
		return false
	}
	if _, taken := s.aliases[alias]; taken {
		return false
	}
	s.aliases[alias] = id
	p := s.byID[id]
	p.Aliases = append(p.Aliases, alias)
	return true
}

func clone(p *Profile) Profile {
	return Profile{
		ID:      p.ID,
		Aliases: append([]string(nil), p.Aliases...),
		Args:    append([]string{}, p.Args...),
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
