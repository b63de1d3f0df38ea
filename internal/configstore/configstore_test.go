package configstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytbatch/internal/runstore"
)

const sample = `[yt-dlp]
directory = "/opt/yt-dlp"
concurrency = 2

[extractor.global]
args = ["--embed-metadata"]

[extractor.default]
args = ["-f", "best"]

[extractor.zeta]
args = ["--write-subs"]

[extractor.youtube]
aliases = ["youtube:tab", "YouTube:Playlist"]
args = ["--sponsorblock-remove", "all"]

[extractor.alpha]
args = []
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadKeepsTableOrder(t *testing.T) {
	doc, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	s := doc.Store()
	assert.Equal(t, []string{"zeta", "youtube", "alpha"}, s.IDs())
	assert.Equal(t, []string{"--embed-metadata"}, s.Global().Args)
	assert.Equal(t, []string{"-f", "best"}, s.Default().Args)

	p, ok := s.GetByAlias("youtube:playlist")
	require.True(t, ok)
	assert.Equal(t, "youtube", p.ID)
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeConfig(t, sample)
	doc, err := Load(path)
	require.NoError(t, err)

	s := doc.Store()
	require.True(t, s.RegisterAlias("zeta", "ZetaSite"))
	require.NoError(t, doc.Save(s))

	again, err := Load(path)
	require.NoError(t, err)
	s2 := again.Store()
	assert.Equal(t, []string{"zeta", "youtube", "alpha"}, s2.IDs())
	p, ok := s2.GetByAlias("zetasite")
	require.True(t, ok)
	assert.Equal(t, "zeta", p.ID)
	assert.Equal(t, s.Snapshot(), s2.Snapshot())

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/yt-dlp", settings.Engine.Directory)
	assert.Equal(t, 2, settings.Engine.Concurrency)
}

func TestSaveDoesNotPersistEnvOverrides(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("YTBATCH_CONCURRENCY", "9")

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 9, settings.Engine.Concurrency)

	doc, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, doc.Save(doc.Store()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "concurrency = 2")
	assert.NotContains(t, string(data), "concurrency = 9")
}

func TestEncodeQuotesNonBareIDs(t *testing.T) {
	doc, err := Parse("mem.toml", []byte(`[extractor."youtube:tab"]
args = ["-x"]
`))
	require.NoError(t, err)
	out, err := doc.Encode(nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), `[extractor."youtube:tab"]`)

	back, err := Parse("mem.toml", out)
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube:tab"}, back.Store().IDs())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = Load(writeConfig(t, "[extractor\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[extractor.Default]\nargs = []\n"))
	assert.Error(t, err, "reserved id in another case")
}

func TestLoadSettingsDefaultsAndValidation(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "yt-dlp", settings.Engine.Binary)
	assert.Equal(t, 2*time.Minute, settings.Engine.ClassifyTimeout)
	assert.Equal(t, 4, settings.Engine.Concurrency)
	assert.Equal(t, "prompt", settings.Engine.Confirm)

	_, err = LoadSettings(writeConfig(t, "[yt-dlp]\nconfirm = \"sometimes\"\n"))
	assert.Error(t, err)

	_, err = LoadSettings(writeConfig(t, "[yt-dlp]\nconcurrency = 500\n"))
	assert.Error(t, err)
}

func TestInitAndLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.toml")
	got, err := Init(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = Init(path)
	assert.True(t, errors.Is(err, ErrExists))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"youtube"}, doc.Store().IDs())

	lock, err := Lock(path)
	require.NoError(t, err)
	_, err = Lock(path)
	assert.True(t, errors.Is(err, runstore.ErrLocked))
	require.NoError(t, lock.Release())
}
