package ytdlp

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type DependencyReport struct {
	EngineFound bool   `json:"engine_found"`
	EnginePath  string `json:"engine_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	GitFound    bool   `json:"git_found"`
	GitPath     string `json:"git_path,omitempty"`
}

// DependencyStatus looks up the programs this engine needs. A source
// checkout needs uv and the checkout itself; git is only needed to update it.
func (e *Engine) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	name, prefix := e.command()
	if path, err := exec.LookPath(name); err == nil {
		report.EngineFound = true
		report.EnginePath = path
		if len(prefix) > 0 {
			script := prefix[len(prefix)-1]
			if _, err := os.Stat(script); err != nil {
				report.EngineFound = false
			}
			report.EnginePath = path + " " + script
		}
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("git"); err == nil {
		report.GitFound = true
		report.GitPath = path
	}
	return report
}

func (e *Engine) CheckDependencies() error {
	report := e.DependencyStatus()
	if !report.EngineFound {
		if dir := strings.TrimSpace(e.Directory); dir != "" {
			return errors.Errorf("missing dependency: uv is not on PATH or %s is not a yt-dlp checkout", filepath.Clean(dir))
		}
		name, _ := e.command()
		return errors.Errorf("missing dependency: %s is not installed or not on PATH", name)
	}
	if !report.FFmpegFound {
		return errors.New("missing dependency: ffmpeg is required for merging and audio extraction and was not found on PATH")
	}
	return nil
}
