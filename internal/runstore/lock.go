package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	lockSuffix    = ".lock"
	lockOwnerFile = "owner.json"
)

var ErrLocked = errors.New("locked by another process")

// Lock is a lock directory next to the guarded file.
type Lock struct {
	dir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func LockPath(path string) string {
	return path + lockSuffix
}

func AcquireLock(path string) (Lock, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return Lock{}, errors.New("lock target is required")
	}
	if err := Mkdir(filepath.Dir(target)); err != nil {
		return Lock{}, err
	}

	dir := LockPath(target)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			var owner lockOwner
			if readErr := ReadJSON(filepath.Join(dir, lockOwnerFile), &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return Lock{}, errors.Wrapf(ErrLocked,
					"%s (pid=%d created_at=%s host=%s)",
					target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return Lock{}, errors.Wrap(ErrLocked, target)
		}
		return Lock{}, errors.Wrapf(err, "acquire lock for %s", target)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(dir, lockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(dir)
		return Lock{}, errors.Wrapf(err, "write lock owner for %s", target)
	}
	return Lock{dir: dir}, nil
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.dir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "release lock %s", l.dir)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
