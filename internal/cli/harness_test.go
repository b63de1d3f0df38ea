package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"ytbatch/internal/batch"
	"ytbatch/internal/configstore"
	"ytbatch/internal/runstore"
)

const fakeEngine = `#!/usr/bin/env bash
set -euo pipefail
url="${@: -1}"
if printf '%s ' "$@" | grep -q -- '--print extractor'; then
  case "$url" in
    *weird*) echo "WeirdSite" ;;
    *bad*) echo "ERROR: Unsupported URL: $url" >&2; exit 1 ;;
    *) echo "generic" ;;
  esac
  exit 0
fi
printf '%s\n' "$@" >> "$ARGS_LOG"
name="$(basename "$url").mp3"
echo "ytbatch:pre_process \"$name\""
touch "$name"
echo "ytbatch:post_process \"$PWD/$name\""
`

const harnessConfig = `[yt-dlp]
concurrency = 2

[extractor.global]
args = ["--no-mtime"]

[extractor.default]
args = ["-f", "best"]

[extractor.weird]
args = ["--write-subs"]
`

type harness struct {
	dir     string
	config  string
	argsLog string
}

func newHarness(t *testing.T) harness {
	t.Helper()
	tmp := t.TempDir()
	fakeBin := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(fakeEngine), 0o755); err != nil {
		t.Fatal(err)
	}
	h := harness{dir: tmp, config: filepath.Join(tmp, "config.toml"), argsLog: filepath.Join(tmp, "args.log")}
	if err := os.WriteFile(h.config, []byte(harnessConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	t.Setenv("ARGS_LOG", h.argsLog)
	for _, k := range []string{"YTBATCH_BINARY", "YTBATCH_DIRECTORY", "YTBATCH_CONFIRM", "YTBATCH_CONCURRENCY", "YTBATCH_CLASSIFY_TIMEOUT", "YTBATCH_DOWNLOAD_TIMEOUT"} {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatal(err)
		}
	}
	return h
}

func TestHarnessRunLearnsAliasAndDownloads(t *testing.T) {
	h := newHarness(t)
	input := filepath.Join(h.dir, "urls.txt")
	body := "-a:mp3 https://weird.example/clip1\n# skipped\n\nhttps://bad.example/x\n"
	if err := os.WriteFile(input, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(h.dir, "out")
	reportPath := filepath.Join(h.dir, "report.json")

	err := Run([]string{"run", "-c", h.config, "-i", input, "-o", outDir, "--yes", "--progress=false", "--report", reportPath, "https://other.example/clip2"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var report batch.Report
	if err := runstore.ReadJSON(reportPath, &report); err != nil {
		t.Fatal(err)
	}
	if report.RunID == "" {
		t.Fatal("expected a run id")
	}
	if len(report.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(report.Entries))
	}
	first, bad, direct := report.Entries[0], report.Entries[1], report.Entries[2]
	if first.Profile != "weird" || first.Outcome != batch.OutcomeCompleted {
		t.Fatalf("unexpected first entry: %+v", first)
	}
	if len(first.Files) != 1 || first.Files[0] != filepath.Join(outDir, "clip1.mp3") {
		t.Fatalf("unexpected files: %v", first.Files)
	}
	if bad.Outcome != batch.OutcomeError || !strings.Contains(strings.Join(bad.Errors, " "), "Unsupported URL") {
		t.Fatalf("unexpected error entry: %+v", bad)
	}
	if direct.Profile != "default" || direct.Source != "direct-argument" {
		t.Fatalf("unexpected direct entry: %+v", direct)
	}

	raw, err := os.ReadFile(h.argsLog)
	if err != nil {
		t.Fatal(err)
	}
	calls := string(raw)
	if !strings.Contains(calls, "--no-mtime\n--write-subs\n--extract-audio\n--audio-format\nmp3\n") {
		t.Fatalf("composed args missing from first call:\n%s", calls)
	}
	if strings.Contains(calls, "bad.example") {
		t.Fatalf("failed classification must not be downloaded:\n%s", calls)
	}

	doc, err := configstore.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := doc.Store().GetByAlias("weirdsite")
	if !ok || p.ID != "weird" {
		t.Fatalf("expected learned alias weirdsite -> weird, got %+v ok=%v", p, ok)
	}
	if runstore.Exists(runstore.LockPath(h.config)) {
		t.Fatal("config lock left behind")
	}
}

func TestHarnessDefaultCommandDryRun(t *testing.T) {
	h := newHarness(t)

	if err := Run([]string{"-c", h.config, "--dry-run", "--no", "--progress=false", "https://weird.example/clip3"}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if runstore.Exists(h.argsLog) {
		t.Fatal("dry run must not invoke the download")
	}

	doc, err := configstore.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := doc.Store().GetByAlias("weirdsite"); ok {
		t.Fatal("--no must not learn aliases")
	}
}

func TestHarnessConfirmRulesFromConfig(t *testing.T) {
	h := newHarness(t)
	cfg := strings.Replace(harnessConfig, "concurrency = 2\n", "concurrency = 2\n\n[yt-dlp.confirm_rules]\nweird = true\n", 1)
	if err := os.WriteFile(h.config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Run([]string{"-c", h.config, "--dry-run", "--progress=false", "https://weird.example/clip4"}); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	doc, err := configstore.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := doc.Store().GetByAlias("weirdsite"); !ok || p.ID != "weird" {
		t.Fatalf("rule should have accepted weirdsite -> weird, got %+v ok=%v", p, ok)
	}
	settings, err := configstore.LoadSettings(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if !settings.Engine.ConfirmRules["weird"] {
		t.Fatalf("confirm_rules lost on save: %+v", settings.Engine.ConfirmRules)
	}
}

func TestConfirmerPrecedence(t *testing.T) {
	engine := configstore.EngineSettings{Confirm: "never", ConfirmRules: map[string]bool{"Weird": true}}
	log := zap.NewNop()

	c, err := confirmer(engine, false, true, false, log)
	if err != nil {
		t.Fatal(err)
	}
	if c.Confirm("weird", "") {
		t.Fatal("--no must override confirm rules")
	}

	c, err = confirmer(engine, false, false, false, log)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Confirm("weird", "") || c.Confirm("other", "") {
		t.Fatal("rules should accept weird and fall back to never for the rest")
	}

	engine.Confirm = "bogus"
	if _, err := confirmer(engine, false, false, false, log); err == nil {
		t.Fatal("expected invalid confirm mode error")
	}
}

func TestHarnessAliasCommand(t *testing.T) {
	h := newHarness(t)

	if err := Run([]string{"alias", "-c", h.config, "weird", "WeirdSite"}); err != nil {
		t.Fatalf("alias failed: %v", err)
	}
	if err := Run([]string{"alias", "-c", h.config, "weird", "weirdsite"}); err == nil {
		t.Fatal("expected duplicate alias to fail")
	}
	if err := Run([]string{"alias", "-c", h.config, "nope", "x"}); err == nil {
		t.Fatal("expected unknown profile to fail")
	}

	doc, err := configstore.Load(h.config)
	if err != nil {
		t.Fatal(err)
	}
	if p, ok := doc.Store().GetByAlias("weirdsite"); !ok || p.ID != "weird" {
		t.Fatalf("alias not saved: %+v", p)
	}
}

func TestHarnessRejectsEmptyRun(t *testing.T) {
	h := newHarness(t)
	if err := Run([]string{"run", "-c", h.config}); err == nil {
		t.Fatal("expected error with no input")
	}
	if err := Run([]string{"run", "-c", h.config, "--yes", "--no", "https://x.example/1"}); err == nil {
		t.Fatal("expected --yes/--no conflict")
	}
	if err := Run([]string{"bogus"}); err == nil {
		t.Fatal("expected unknown command error")
	}
}
