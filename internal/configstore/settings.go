// Package configstore reads and writes the ytbatch TOML config: engine
// settings under [yt-dlp] and extractor profiles under [extractor.<id>].
package configstore

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const DefaultPath = "config.toml"

type Settings struct {
	Engine EngineSettings `toml:"yt-dlp"`
}

type EngineSettings struct {
	Directory       string        `toml:"directory" env:"YTBATCH_DIRECTORY" env-description:"yt-dlp source checkout run through uv"`
	Binary          string        `toml:"binary" env:"YTBATCH_BINARY" env-default:"yt-dlp" validate:"required"`
	ClassifyTimeout time.Duration `toml:"classify_timeout" env:"YTBATCH_CLASSIFY_TIMEOUT" env-default:"2m" validate:"gte=0"`
	DownloadTimeout time.Duration `toml:"download_timeout" env:"YTBATCH_DOWNLOAD_TIMEOUT" validate:"gte=0"`
	Concurrency     int           `toml:"concurrency" env:"YTBATCH_CONCURRENCY" env-default:"4" validate:"min=1,max=64"`
	Confirm         string        `toml:"confirm" env:"YTBATCH_CONFIRM" env-default:"prompt" validate:"oneof=prompt always never yes no"`

	// ConfirmRules answers closest-match suggestions per profile id before
	// Confirm is consulted. File only.
	ConfirmRules map[string]bool `toml:"confirm_rules"`
}

var validate = validator.New()

// LoadSettings decodes the [yt-dlp] section of path, then applies
// YTBATCH_* environment overrides and defaults. A missing file yields
// env/default settings only.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	path, err := ExpandPath(path)
	if err != nil {
		return s, err
	}
	if _, err := toml.DecodeFile(path, &s); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return s, errors.Wrapf(err, "read settings %s", path)
	}
	if err := cleanenv.ReadEnv(&s); err != nil {
		return s, errors.Wrap(err, "read settings from environment")
	}
	s.Engine.Confirm = strings.ToLower(strings.TrimSpace(s.Engine.Confirm))
	if err := validate.Struct(s); err != nil {
		return s, errors.Wrapf(err, "invalid settings in %s", path)
	}
	if s.Engine.Directory != "" {
		dir, err := ExpandPath(s.Engine.Directory)
		if err != nil {
			return s, err
		}
		s.Engine.Directory = dir
	}
	return s, nil
}

// SettingsHelp describes the environment overrides.
func SettingsHelp() string {
	var s Settings
	help, err := cleanenv.GetDescription(&s, nil)
	if err != nil {
		return ""
	}
	return help
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.Wrapf(err, "expand path %s", path)
	}
	return expanded, nil
}
