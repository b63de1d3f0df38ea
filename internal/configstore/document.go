package configstore

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"ytbatch/internal/profile"
	"ytbatch/internal/runstore"
)

const extractorTable = "extractor"

var (
	ErrNotFound = errors.New("config file not found")
	ErrExists   = errors.New("config file already exists")

	bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

type rawProfile struct {
	Aliases []string `toml:"aliases,omitempty"`
	Args    []string `toml:"args"`
}

type rawFile struct {
	Extractor map[string]rawProfile `toml:"extractor"`
}

// Document is a loaded config file. Everything outside [extractor] is kept
// as decoded and written back unchanged on Save.
type Document struct {
	Path string

	rest  map[string]any
	store *profile.Store
}

func Load(path string) (*Document, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, path)
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(path, data)
}

// Parse builds a Document from TOML bytes. Named profiles keep the order in
// which their tables appear.
func Parse(path string, data []byte) (*Document, error) {
	var raw rawFile
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	rest := map[string]any{}
	if _, err := toml.Decode(string(data), &rest); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	delete(rest, extractorTable)

	named := make([]profile.Profile, 0, len(raw.Extractor))
	seen := map[string]bool{}
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != extractorTable {
			continue
		}
		id := key[1]
		if seen[id] || id == profile.GlobalID || id == profile.DefaultID {
			continue
		}
		seen[id] = true
		p := raw.Extractor[id]
		named = append(named, profile.New(id, p.Aliases, p.Args))
	}

	global := raw.Extractor[profile.GlobalID]
	def := raw.Extractor[profile.DefaultID]
	store, err := profile.NewStore(
		profile.New(profile.GlobalID, nil, global.Args),
		profile.New(profile.DefaultID, nil, def.Args),
		named...,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "load profiles from %s", path)
	}
	return &Document{Path: path, rest: rest, store: store}, nil
}

func (d *Document) Store() *profile.Store {
	return d.store
}

// Save writes the document with the profiles of store: the non-profile
// sections first, then global, default and the named profiles in store
// order.
func (d *Document) Save(store *profile.Store) error {
	data, err := d.Encode(store)
	if err != nil {
		return err
	}
	if err := runstore.WriteBytes(d.Path, data); err != nil {
		return errors.Wrap(err, "save config")
	}
	return nil
}

func (d *Document) Encode(store *profile.Store) ([]byte, error) {
	if store == nil {
		store = d.store
	}
	var buf bytes.Buffer
	if len(d.rest) > 0 {
		if err := toml.NewEncoder(&buf).Encode(d.rest); err != nil {
			return nil, errors.Wrap(err, "encode settings")
		}
		buf.WriteString("\n")
	}

	snap := store.Snapshot()
	profiles := append([]profile.Profile{snap.Global, snap.Default}, snap.Named...)
	for i, p := range profiles {
		if i > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "[%s.%s]\n", extractorTable, tableKey(p.ID))
		raw := rawProfile{Aliases: p.Aliases, Args: p.Args}
		if raw.Args == nil {
			raw.Args = []string{}
		}
		if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
			return nil, errors.Wrapf(err, "encode profile %s", p.ID)
		}
	}
	return buf.Bytes(), nil
}

func tableKey(id string) string {
	if bareKey.MatchString(id) {
		return id
	}
	return strconv.Quote(id)
}

func Lock(path string) (runstore.Lock, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return runstore.Lock{}, err
	}
	return runstore.AcquireLock(path)
}

const starter = `[yt-dlp]
binary = "yt-dlp"
classify_timeout = "2m"
concurrency = 4
confirm = "prompt"

# answer closest-match suggestions per profile without asking
# [yt-dlp.confirm_rules]
# youtube = true

[extractor.global]
args = ["--embed-metadata"]

[extractor.default]
args = ["-f", "bv*+ba/b"]

[extractor.youtube]
aliases = ["youtube:tab"]
args = ["--sponsorblock-remove", "all"]
`

// Init writes a starter config. An existing file is never overwritten.
func Init(path string) (string, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	if runstore.Exists(path) {
		return path, errors.Wrap(ErrExists, path)
	}
	if err := runstore.WriteBytes(path, []byte(starter)); err != nil {
		return path, err
	}
	return path, nil
}
