package ytdlp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ytbatch/internal/model"
)

func installFakeYTDLP(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "yt-dlp"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
	return bin
}

const classifyScript = `#!/usr/bin/env bash
set -euo pipefail
url="${@: -1}"
case "$url" in
  *youtube*) echo "youtube" ;;
  *broken*) echo "ERROR: [generic] Unable to download webpage: HTTP Error 404" >&2; exit 1 ;;
  *unsupported*) echo "ERROR: Unsupported URL: $url" >&2; exit 1 ;;
  *silent*) exit 3 ;;
  *slow*) exec sleep 5 ;;
esac
`

func TestClassify(t *testing.T) {
	installFakeYTDLP(t, classifyScript)
	e := &Engine{}
	ctx := context.Background()

	got, err := e.Classify(ctx, "https://youtube.com/watch?v=1")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.ExtractorID != "youtube" || got.Err != "" {
		t.Fatalf("unexpected classification: %+v", got)
	}

	got, err = e.Classify(ctx, "https://broken.example/x")
	if err != nil {
		t.Fatalf("bracketed error should not fail: %v", err)
	}
	if got.ExtractorID != "generic" || got.Err != "" {
		t.Fatalf("expected extractor from error tag, got %+v", got)
	}

	got, err = e.Classify(ctx, "https://unsupported.example/x")
	if err != nil {
		t.Fatalf("unsupported should be a record error, got %v", err)
	}
	if got.ExtractorID != "" || got.Err != "Unsupported URL: https://unsupported.example/x" {
		t.Fatalf("unexpected classification: %+v", got)
	}

	if _, err := e.Classify(ctx, "https://silent.example/x"); err == nil {
		t.Fatalf("expected error for silent failure")
	}
}

func TestClassifyHonoursContext(t *testing.T) {
	installFakeYTDLP(t, classifyScript)
	e := &Engine{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := e.Classify(ctx, "https://slow.example/x"); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > 4*time.Second {
		t.Fatalf("classify did not stop on context cancel")
	}
}

func TestClassifyIgnoresStderrNoise(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
echo "Deprecated Feature: Support for Python version 3.8 has been deprecated" >&2
sleep 0.05
echo "youtube"
`)
	e := &Engine{}

	got, err := e.Classify(context.Background(), "https://youtube.com/watch?v=1")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.ExtractorID != "youtube" || got.Err != "" {
		t.Fatalf("extractor = %q (err %q), want youtube", got.ExtractorID, got.Err)
	}
}

func TestClassifyErrorAfterStderrNoise(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
echo "warning: uv lock is stale" >&2
echo "ERROR: Unsupported URL: ${@: -1}" >&2
exit 1
`)
	e := &Engine{}

	got, err := e.Classify(context.Background(), "https://nowhere.example/x")
	if err != nil {
		t.Fatalf("unsupported should be a record error, got %v", err)
	}
	if got.ExtractorID != "" || !strings.HasPrefix(got.Err, "Unsupported URL:") {
		t.Fatalf("unexpected classification: %+v", got)
	}
}

func TestInvokeCollectsMarkers(t *testing.T) {
	argsLog := filepath.Join(t.TempDir(), "args.txt")
	t.Setenv("ARGS_LOG", argsLog)
	installFakeYTDLP(t, `#!/usr/bin/env bash
set -euo pipefail
printf '%s\n' "$@" > "$ARGS_LOG"
echo "[download] Destination: clip.webm"
echo 'ytbatch:pre_process "clip.webm"'
echo 'ytbatch:process "'"$PWD"'/clip.webm"'
echo 'ytbatch:post_process "'"$PWD"'/clip.opus"'
echo "[ExtractAudio] done" >&2
`)

	outDir := filepath.Join(t.TempDir(), "out")
	var stdout, stderr bytes.Buffer
	e := &Engine{OutputDir: outDir, Verbose: true, Stdout: &stdout, Stderr: &stderr, EchoOutput: true}

	inv, err := e.Invoke(context.Background(), []string{"--extract-audio"}, "https://example.com/v")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !inv.Completed {
		t.Fatalf("expected completed invocation")
	}
	want := []model.ProducedFile{
		{Path: filepath.Join(outDir, "clip.webm"), Stage: model.StagePreProcess},
		{Path: filepath.Join(outDir, "clip.webm"), Stage: model.StageProcess},
		{Path: filepath.Join(outDir, "clip.opus"), Stage: model.StagePostProcess},
	}
	if len(inv.Files) != len(want) {
		t.Fatalf("unexpected files: %+v", inv.Files)
	}
	for i := range want {
		if inv.Files[i] != want[i] {
			t.Fatalf("file %d: got %+v want %+v", i, inv.Files[i], want[i])
		}
	}

	if strings.Contains(stdout.String(), "ytbatch:") {
		t.Fatalf("markers must not be echoed: %q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "[download] Destination") {
		t.Fatalf("engine output not echoed: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "[ExtractAudio] done") {
		t.Fatalf("stderr not echoed: %q", stderr.String())
	}

	raw, err := os.ReadFile(argsLog)
	if err != nil {
		t.Fatal(err)
	}
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if args[0] != "--extract-audio" {
		t.Fatalf("composed args must come first: %v", args)
	}
	if args[len(args)-1] != "https://example.com/v" || args[len(args)-2] != "-v" {
		t.Fatalf("expected -v then url at the end: %v", args)
	}
}

func TestInvokeFailureKeepsPotentialFiles(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
echo 'ytbatch:pre_process "/tmp/partial.mp4"'
echo "ERROR: unable to download video data" >&2
exit 1
`)
	e := &Engine{OutputDir: t.TempDir()}
	inv, err := e.Invoke(context.Background(), nil, "https://example.com/v")
	if err == nil {
		t.Fatalf("expected invocation error")
	}
	if inv.Completed {
		t.Fatalf("pre-process marker alone must not complete")
	}
	if len(inv.Files) != 1 || inv.Files[0].Path != "/tmp/partial.mp4" {
		t.Fatalf("unexpected files: %+v", inv.Files)
	}
}

func TestParseMarker(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
		path string
	}{
		{`ytbatch:process "/a/b c.mkv"`, true, "/a/b c.mkv"},
		{`ytbatch:post_process "sub/x.mp3"`, true, "/work/sub/x.mp3"},
		{`ytbatch:process "NA"`, false, ""},
		{`ytbatch:bogus "/a"`, false, ""},
		{`ytbatch:process /a`, false, ""},
		{`[download] 50%`, false, ""},
	}
	for _, tc := range cases {
		f, ok := parseMarker(tc.line, "/work")
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v want %v", tc.line, ok, tc.ok)
		}
		if ok && f.Path != tc.path {
			t.Fatalf("%q: path=%q want %q", tc.line, f.Path, tc.path)
		}
	}
}

func TestCommandUsesSourceCheckout(t *testing.T) {
	e := &Engine{Directory: "/opt/yt-dlp"}
	name, args := e.command()
	if name != "uv" {
		t.Fatalf("expected uv, got %s", name)
	}
	want := []string{"--quiet", "--project", "/opt/yt-dlp", "run", "/opt/yt-dlp/yt_dlp/__main__.py"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected prefix %v", args)
	}

	name, args = (&Engine{Binary: "/usr/local/bin/yt-dlp"}).command()
	if name != "/usr/local/bin/yt-dlp" || len(args) != 0 {
		t.Fatalf("unexpected binary command %s %v", name, args)
	}
}

func TestUpdateRunsSelfUpdateForBinary(t *testing.T) {
	installFakeYTDLP(t, `#!/usr/bin/env bash
if [ "$1" = "-U" ]; then echo "yt-dlp is up to date"; exit 0; fi
exit 2
`)
	var out bytes.Buffer
	e := &Engine{Stdout: &out, EchoOutput: true}
	if err := e.Update(context.Background()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Fatalf("update output not echoed: %q", out.String())
	}
}

func TestSplitByNewlineOrCR(t *testing.T) {
	adv, tok, _ := splitByNewlineOrCR([]byte("50%\r60%\n"), false)
	if adv != 4 || string(tok) != "50%" {
		t.Fatalf("unexpected split: %d %q", adv, tok)
	}
}
