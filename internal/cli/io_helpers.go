package cli

import (
	"encoding/json"
	"flag"
	"os"

	"ytbatch/internal/configstore"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTTY() bool {
	return isCharDevice(os.Stdin)
}

func stdoutIsTTY() bool {
	return isCharDevice(os.Stdout)
}

func isCharDevice(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// configFlag registers -c and --config on fs.
func configFlag(fs *flag.FlagSet) *string {
	path := new(string)
	fs.StringVar(path, "config", configstore.DefaultPath, "config file path")
	fs.StringVar(path, "c", configstore.DefaultPath, "shorthand for --config")
	return path
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	return fs
}
