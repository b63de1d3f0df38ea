package resolve

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Confirmer is the decision source asked before a fuzzy match is promoted
// to an alias. Headless runs use one of the fixed policies.
type Confirmer interface {
	Confirm(profileID, question string) bool
}

type ConfirmFunc func(profileID, question string) bool

func (f ConfirmFunc) Confirm(profileID, question string) bool { return f(profileID, question) }

var (
	Always Confirmer = ConfirmFunc(func(string, string) bool { return true })
	Never  Confirmer = ConfirmFunc(func(string, string) bool { return false })
)

// Rules decides per candidate profile id. Profiles without a rule go to
// Fallback; a nil Fallback declines.
type Rules struct {
	Decisions map[string]bool
	Fallback  Confirmer
}

// NewRules lower-cases the profile ids in decisions.
func NewRules(decisions map[string]bool, fallback Confirmer) Rules {
	r := Rules{Decisions: make(map[string]bool, len(decisions)), Fallback: fallback}
	for id, v := range decisions {
		r.Decisions[strings.ToLower(strings.TrimSpace(id))] = v
	}
	return r
}

func (r Rules) Confirm(profileID, question string) bool {
	if v, ok := r.Decisions[strings.ToLower(profileID)]; ok {
		return v
	}
	if r.Fallback == nil {
		return false
	}
	return r.Fallback.Confirm(profileID, question)
}

// Prompt asks on Out and reads one line per question from In. An empty
// answer accepts; EOF or a read error declines.
type Prompt struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{In: in, Out: out}
}

func (p *Prompt) Confirm(_ string, question string) bool {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprintf(p.Out, "%s [Y/n]: ", question)
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.Out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}

// ParsePolicy maps a configured confirm mode to a fixed Confirmer.
// "prompt" returns nil; the caller supplies the interactive source.
func ParsePolicy(mode string) (Confirmer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "prompt":
		return nil, nil
	case "always", "yes":
		return Always, nil
	case "never", "no":
		return Never, nil
	default:
		return nil, errors.Errorf("invalid confirm mode %q (expected prompt, always, or never)", mode)
	}
}
