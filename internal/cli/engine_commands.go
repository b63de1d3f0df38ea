package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ytbatch/internal/configstore"
	"ytbatch/internal/runstore"
	"ytbatch/internal/ytdlp"
)

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type doctorResult struct {
	OK     bool                   `json:"ok"`
	Config string                 `json:"config"`
	Deps   ytdlp.DependencyReport `json:"dependencies"`
	Checks []doctorCheck          `json:"checks"`
}

func runUpdate(args []string) error {
	fs := newFlagSet("update")
	config := configFlag(fs)
	verbose := fs.Bool("verbose", false, "log debug output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := configstore.LoadSettings(*config)
	if err != nil {
		return err
	}
	engine := &ytdlp.Engine{
		Binary:     settings.Engine.Binary,
		Directory:  settings.Engine.Directory,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		EchoOutput: true,
		Logger:     newLogger(os.Stderr, *verbose, ""),
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := engine.Update(ctx); err != nil {
		return err
	}
	fmt.Println("yt-dlp updated")
	return nil
}

func runInit(args []string) error {
	fs := newFlagSet("init")
	config := configFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := configstore.Init(*config)
	if err != nil && !errors.Is(err, configstore.ErrExists) {
		return err
	}
	created := err == nil
	res := doctor(path, ".")
	if *jsonOut {
		return printJSON(struct {
			Created bool `json:"created_config"`
			doctorResult
		}{created, res})
	}

	fmt.Printf("config: %s\n", path)
	fmt.Printf("created_config: %t\n", created)
	fmt.Println("checks:")
	printChecks(res, "  ")
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("next: ytbatch -i urls.txt")
	return nil
}

func runDoctor(args []string) error {
	fs := newFlagSet("doctor")
	config := configFlag(fs)
	output := fs.String("output", ".", "download directory to check")
	fs.StringVar(output, "o", ".", "shorthand for --output")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, err := configstore.ExpandPath(*config)
	if err != nil {
		return err
	}
	outDir, err := configstore.ExpandPath(*output)
	if err != nil {
		return err
	}
	res := doctor(path, outDir)
	if *jsonOut {
		return printJSON(res)
	}
	printChecks(res, "")
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}

func doctor(path, outDir string) doctorResult {
	res := doctorResult{OK: true, Config: path}
	add := func(name string, err error, okMsg string) {
		c := doctorCheck{Name: name, OK: err == nil, Message: okMsg}
		if err != nil {
			c.Message = err.Error()
			res.OK = false
		}
		res.Checks = append(res.Checks, c)
	}

	settings, err := configstore.LoadSettings(path)
	add("settings", err, "valid")

	doc, err := configstore.Load(path)
	msg := ""
	if err == nil {
		msg = fmt.Sprintf("%d named profile(s)", len(doc.Store().IDs()))
	}
	add("profiles", err, msg)

	engine := &ytdlp.Engine{Binary: settings.Engine.Binary, Directory: settings.Engine.Directory}
	res.Deps = engine.DependencyStatus()
	add("dependencies", engine.CheckDependencies(), res.Deps.EnginePath)
	add("output_dir", ensureWritableDir(outDir), outDir+" writable")
	return res
}

func ensureWritableDir(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("empty path")
	}
	if err := runstore.Mkdir(path); err != nil {
		return err
	}
	f, err := os.CreateTemp(path, "ytbatch-check-*.tmp")
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(f.Name())
}

func printChecks(res doctorResult, indent string) {
	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s%s: %s (%s)\n", indent, c.Name, status, c.Message)
	}
}
