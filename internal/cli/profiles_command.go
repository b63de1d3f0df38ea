package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ytbatch/internal/configstore"
	"ytbatch/internal/profile"
)

var (
	profileTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	profileMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	profilePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type profileView struct {
	ID      string   `json:"id"`
	Aliases []string `json:"aliases,omitempty"`
	Args    []string `json:"args"`
}

func runProfiles(args []string) error {
	fs := newFlagSet("profiles")
	config := configFlag(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	doc, err := configstore.Load(*config)
	if err != nil {
		return err
	}
	snap := doc.Store().Snapshot()
	views := make([]profileView, 0, len(snap.Named)+2)
	for _, p := range append([]profile.Profile{snap.Global, snap.Default}, snap.Named...) {
		views = append(views, profileView{ID: p.ID, Aliases: p.Aliases, Args: p.Args})
	}
	if *jsonOut {
		return printJSON(views)
	}
	fmt.Println(renderProfiles(doc.Path, views))
	return nil
}

func renderProfiles(path string, views []profileView) string {
	var b strings.Builder
	b.WriteString(profileTitleStyle.Render("profiles") + " " + profileMutedStyle.Render(path) + "\n")
	for i, v := range views {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(profileTitleStyle.Render(v.ID))
		if len(v.Aliases) > 0 {
			b.WriteString(" " + profileMutedStyle.Render("aka "+strings.Join(v.Aliases, ", ")))
		}
		b.WriteString("\n")
		if len(v.Args) == 0 {
			b.WriteString("  " + profileMutedStyle.Render("(no args)"))
		} else {
			b.WriteString("  " + strings.Join(v.Args, " "))
		}
	}
	return profilePanelStyle.Render(b.String())
}

func runAlias(args []string) error {
	fs := newFlagSet("alias")
	config := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var profileID, alias string
	switch rest := fs.Args(); len(rest) {
	case 2:
		profileID, alias = rest[0], rest[1]
	case 0:
		if !stdinIsTTY() {
			return errors.New("usage: ytbatch alias [-c config] <profile> <alias>")
		}
		var err error
		profileID, alias, err = promptAlias()
		if err != nil {
			return err
		}
	default:
		return errors.New("usage: ytbatch alias [-c config] <profile> <alias>")
	}

	lock, err := configstore.Lock(*config)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	doc, err := configstore.Load(*config)
	if err != nil {
		return err
	}
	store := doc.Store()
	if _, ok := store.Get(profileID); !ok {
		return fmt.Errorf("unknown profile %q", profileID)
	}
	if !store.RegisterAlias(profileID, alias) {
		return fmt.Errorf("alias %q not added (already mapped or not allowed)", alias)
	}
	if err := doc.Save(store); err != nil {
		return err
	}
	fmt.Printf("alias %s -> %s saved to %s\n", strings.ToLower(strings.TrimSpace(alias)), strings.ToLower(strings.TrimSpace(profileID)), doc.Path)
	return nil
}
