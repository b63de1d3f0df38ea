// Package compose merges layered yt-dlp argument lists into one command line.
package compose

import (
	"strings"

	"ytbatch/internal/profile"
)

const flagPrefix = "-"

// RestrictedFlags break unattended batch runs: help/update output, extractor
// listings, simulation/printing modes that hide downloads, and batch-file
// input. They are dropped together with their values.
var RestrictedFlags = []string{
	"-h",
	"--help",
	"-U",
	"--update",
	"--update-to",
	"--list-extractors",
	"--extractor-descriptions",
	"--use-extractors",
	"--no-quiet",
	"-s",
	"--simulate",
	"--no-simulate",
	"--ignore-no-formats-error",
	"--no-ignore-no-formats-error",
	"--skip-download",
	"-O",
	"--print",
	"-j",
	"--dump-json",
	"-J",
	"--dump-single-json",
	"--newline",
	"--no-progress",
	"--dump-pages",
	"--print-traffic",
	"-a",
	"--batch-file",
}

var restrictedSet = toSet(RestrictedFlags)

// Compose returns global args, then the profile's args (default args when
// profileID is empty or unknown), then per-URL args after the audio
// shorthand rewrite, with restricted flags filtered out.
func Compose(store *profile.Store, profileID string, perURL []string) []string {
	return Filter(Layers(store, profileID, perURL), restrictedSet)
}

// Layers is Compose without the restricted-flag filter.
func Layers(store *profile.Store, profileID string, perURL []string) []string {
	out := append([]string{}, store.Global().Args...)
	chosen := store.Default()
	if strings.TrimSpace(profileID) != "" {
		if p, ok := store.Get(profileID); ok {
			chosen = p
		}
	}
	out = append(out, chosen.Args...)
	return append(out, RewriteAudioShorthand(perURL)...)
}

// RewriteAudioShorthand expands "-a" and "-a:<fmt>" into yt-dlp's long-form
// audio extraction flags. Other tokens pass through unchanged.
func RewriteAudioShorthand(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok != "-a" && !strings.HasPrefix(tok, "-a:") {
			out = append(out, tok)
			continue
		}
		out = append(out, "--extract-audio")
		if format := strings.TrimPrefix(tok, "-a:"); tok != "-a" && format != "" {
			out = append(out, "--audio-format", format)
		}
	}
	return out
}

// Filter drops every restricted flag and the tokens after it up to the next
// token that starts with "-". A "--flag=value" token is dropped on its own.
// Order of surviving tokens is preserved.
func Filter(tokens []string, restricted map[string]bool) []string {
	out := make([]string, 0, len(tokens))
	skipping := false
	for _, tok := range tokens {
		if strings.HasPrefix(tok, flagPrefix) {
			skipping = false
		}
		if skipping {
			continue
		}
		if restricted[tok] {
			skipping = true
			continue
		}
		if name, _, ok := strings.Cut(tok, "="); ok && strings.HasPrefix(name, flagPrefix) && restricted[name] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
