// Package ytdlp runs the yt-dlp engine: classification of a URL to its
// extractor, the download itself, and engine updates.
package ytdlp

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"ytbatch/internal/batch"
	"ytbatch/internal/model"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

const (
	DefaultBinary = "yt-dlp"
	markerPrefix  = "ytbatch:"
	errorPrefix   = "ERROR:"
)

// printMarkers make yt-dlp report each file it touches on stdout as
// "ytbatch:<stage> <json string>".
var printMarkers = []string{
	"--print", "video:" + markerPrefix + string(model.StagePreProcess) + " %(filename)j",
	"--print", "post_process:" + markerPrefix + string(model.StageProcess) + " %(filepath)j",
	"--print", "after_move:" + markerPrefix + string(model.StagePostProcess) + " %(filepath)j",
	"--no-simulate",
	"--progress",
}

// Engine drives yt-dlp as a subprocess. With Directory set, the engine is a
// source checkout started through uv; otherwise Binary is run from PATH.
type Engine struct {
	Binary     string
	Directory  string
	OutputDir  string
	Verbose    bool
	Stdout     io.Writer
	Stderr     io.Writer
	EchoOutput bool
	Logger     *zap.Logger
}

var _ batch.Engine = (*Engine)(nil)

func (e *Engine) command() (string, []string) {
	if dir := strings.TrimSpace(e.Directory); dir != "" {
		return "uv", []string{"--quiet", "--project", dir, "run", filepath.Join(dir, "yt_dlp", "__main__.py")}
	}
	bin := strings.TrimSpace(e.Binary)
	if bin == "" {
		bin = DefaultBinary
	}
	return bin, nil
}

// Classify asks yt-dlp which extractor handles url. An "ERROR: [x] ..."
// answer still names extractor x; the download reports the failure itself.
func (e *Engine) Classify(ctx context.Context, url string) (batch.Classification, error) {
	if strings.TrimSpace(url) == "" {
		return batch.Classification{}, errors.New("url is required")
	}
	name, prefix := e.command()
	args := append(prefix, "--no-warnings", "--no-playlist", "--print", "extractor", url)

	// stderr can carry interpreter or uv notices ahead of the answer, so the
	// id only comes from stdout. ERROR lines count from either stream.
	var (
		mu        sync.Mutex
		extractor string
		errLine   string
	)
	runErr := e.run(ctx, e.Directory, name, args, func(stream OutputStream, line string) bool {
		v := strings.TrimSpace(line)
		if v == "" {
			return true
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasPrefix(v, errorPrefix):
			if errLine == "" {
				errLine = v
			}
		case stream == StreamStdout && extractor == "":
			extractor = v
		}
		return true
	})
	if ctx.Err() != nil {
		return batch.Classification{}, ctx.Err()
	}

	if errLine != "" {
		return parseClassifyError(errLine), nil
	}
	if runErr != nil {
		return batch.Classification{}, runErr
	}
	if extractor == "" {
		return batch.Classification{}, errors.Errorf("yt-dlp printed no extractor for %s", url)
	}
	return batch.Classification{ExtractorID: extractor}, nil
}

func parseClassifyError(line string) batch.Classification {
	msg := strings.TrimSpace(strings.TrimPrefix(line, errorPrefix))
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "]"); end > 1 {
			return batch.Classification{ExtractorID: msg[1:end]}
		}
	}
	return batch.Classification{Err: msg}
}

// Invoke downloads url with args. Files are collected from the print
// markers even when yt-dlp exits with an error.
func (e *Engine) Invoke(ctx context.Context, args []string, url string) (batch.Invocation, error) {
	var inv batch.Invocation
	if strings.TrimSpace(url) == "" {
		return inv, errors.New("url is required")
	}
	workDir, err := e.workDir()
	if err != nil {
		return inv, err
	}

	name, cmdArgs := e.command()
	cmdArgs = append(cmdArgs, args...)
	cmdArgs = append(cmdArgs, printMarkers...)
	if e.Verbose {
		cmdArgs = append(cmdArgs, "-v")
	}
	cmdArgs = append(cmdArgs, url)

	var mu sync.Mutex
	runErr := e.run(ctx, workDir, name, cmdArgs, func(stream OutputStream, line string) bool {
		if stream != StreamStdout {
			return false
		}
		f, ok := parseMarker(line, workDir)
		if !ok {
			return false
		}
		mu.Lock()
		inv.Files = append(inv.Files, f)
		if f.Stage != model.StagePreProcess {
			inv.Completed = true
		}
		mu.Unlock()
		return true
	})
	return inv, runErr
}

// parseMarker decodes one "ytbatch:<stage> <json>" line. Relative paths are
// anchored at dir, where yt-dlp ran.
func parseMarker(line, dir string) (model.ProducedFile, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, markerPrefix) {
		return model.ProducedFile{}, false
	}
	tag, payload, ok := strings.Cut(strings.TrimPrefix(line, markerPrefix), " ")
	if !ok || !gjson.Valid(payload) {
		return model.ProducedFile{}, false
	}
	stage := model.Stage(tag)
	path := gjson.Parse(payload).String()
	if !stage.Valid() || strings.TrimSpace(path) == "" || path == "NA" {
		return model.ProducedFile{}, false
	}
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	return model.ProducedFile{Path: filepath.Clean(path), Stage: stage}, true
}

func (e *Engine) workDir() (string, error) {
	dir := strings.TrimSpace(e.OutputDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "resolve working directory")
		}
		return wd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolve output directory %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", errors.Wrapf(err, "create output directory %s", abs)
	}
	return abs, nil
}

// Update brings the engine up to date: a fetch and merge for a source
// checkout, or yt-dlp's own -U for a binary.
func (e *Engine) Update(ctx context.Context) error {
	echo := func(stream OutputStream, line string) bool {
		e.echo(stream, line)
		return true
	}
	if dir := strings.TrimSpace(e.Directory); dir != "" {
		if err := e.run(ctx, dir, "git", []string{"fetch", "origin"}, echo); err != nil {
			return err
		}
		return e.run(ctx, dir, "git", []string{"merge", "origin/master", "--no-edit"}, echo)
	}
	name, prefix := e.command()
	return e.run(ctx, "", name, append(prefix, "-U"), echo)
}

// run starts name in dir and feeds every output line to onLine. Lines that
// onLine does not consume are echoed when EchoOutput is set.
func (e *Engine) run(ctx context.Context, dir, name string, args []string, onLine func(OutputStream, string) bool) error {
	log := e.logger()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	log.Debug("exec", zap.String("cmd", name), zap.Strings("args", args), zap.String("dir", dir))

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "setup stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "setup stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", name)
	}

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			mu.Unlock()

			if onLine != nil && onLine(stream, line) {
				continue
			}
			e.echo(stream, line)
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s interrupted", name)
		}
		mu.Lock()
		defer mu.Unlock()
		return errors.Errorf("%s failed: %v\n%s\n%s", name, err, strings.TrimSpace(errBuf.String()), strings.TrimSpace(outBuf.String()))
	}
	return nil
}

func (e *Engine) echo(stream OutputStream, line string) {
	if !e.EchoOutput {
		return
	}
	w := e.Stdout
	if stream == StreamStderr {
		w = e.Stderr
	}
	if w != nil {
		_, _ = io.WriteString(w, line+"\n")
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
