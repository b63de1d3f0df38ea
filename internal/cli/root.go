package cli

import (
	"fmt"
	"strings"

	"ytbatch/internal/configstore"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runBatch(args[1:])
	case "profiles":
		return runProfiles(args[1:])
	case "alias":
		return runAlias(args[1:])
	case "update":
		return runUpdate(args[1:])
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	}

	// anything else is a batch run: flags, URLs or both
	if looksLikeRunArgs(args[0]) {
		return runBatch(args)
	}
	printRootUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func looksLikeRunArgs(first string) bool {
	first = strings.TrimSpace(first)
	return strings.HasPrefix(first, "-") || strings.Contains(first, "://") || strings.Contains(first, " ")
}

func printRootUsage() {
	fmt.Println("ytbatch: batch downloads through yt-dlp with per-extractor profiles")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ytbatch [run] [-c config.toml] [-i urls.txt] [-o dir] [url ...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       classify, resolve and download every URL (default)")
	fmt.Println("  profiles  list configured profiles and their aliases")
	fmt.Println("  alias     map an extractor name to a profile")
	fmt.Println("  update    update yt-dlp (git checkout or binary)")
	fmt.Println("  init      write a starter config")
	fmt.Println("  doctor    check dependencies and config")
	fmt.Println()
	fmt.Println("Input lines are \"[per-url args] <url>\"; blank lines and # comments are skipped.")
	fmt.Println("-a / -a:<format> on a line extracts audio.")
	if help := configstore.SettingsHelp(); help != "" {
		fmt.Println()
		fmt.Print(help)
		fmt.Println()
	}
}
