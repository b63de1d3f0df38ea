package cli

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type aliasField struct {
	Label string
	Help  string
	Value string
}

type aliasFormModel struct {
	fields    []aliasField
	index     int
	input     textinput.Model
	err       string
	submitted bool
	cancelled bool
}

func newAliasForm(width int) aliasFormModel {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 256
	input.Width = clampInt(width-8, 20, 120)
	input.Focus()
	return aliasFormModel{
		fields: []aliasField{
			{Label: "Profile", Help: "existing profile id, e.g. youtube"},
			{Label: "Alias", Help: "extractor name yt-dlp reports, e.g. youtube:tab"},
		},
		input: input,
	}
}

func (m aliasFormModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m aliasFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.input.Width = clampInt(msg.Width-8, 20, 120)
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyShiftTab, tea.KeyUp:
			m.commit()
			if m.index > 0 {
				m.index--
			}
			m.load()
			return m, nil
		case tea.KeyTab, tea.KeyDown, tea.KeyEnter:
			m.commit()
			if strings.TrimSpace(m.fields[m.index].Value) == "" {
				m.err = strings.ToLower(m.fields[m.index].Label) + " is required"
				return m, nil
			}
			m.err = ""
			if m.index == len(m.fields)-1 {
				if msg.Type != tea.KeyEnter {
					return m, nil
				}
				m.submitted = true
				return m, tea.Quit
			}
			m.index++
			m.load()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *aliasFormModel) commit() {
	m.fields[m.index].Value = strings.TrimSpace(m.input.Value())
}

func (m *aliasFormModel) load() {
	m.input.SetValue(m.fields[m.index].Value)
	m.input.CursorEnd()
}

func (m aliasFormModel) View() string {
	var b strings.Builder
	b.WriteString(profileTitleStyle.Render("add alias") + "\n\n")
	for i, f := range m.fields {
		if i == m.index {
			b.WriteString(profileTitleStyle.Render(f.Label) + " " + profileMutedStyle.Render(f.Help) + "\n")
			b.WriteString(m.input.View() + "\n")
			continue
		}
		b.WriteString(f.Label + ": " + f.Value + "\n")
	}
	if m.err != "" {
		b.WriteString("\n" + classifyErrorStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n" + profileMutedStyle.Render("enter next/save • shift+tab back • esc cancel") + "\n")
	return b.String()
}

func promptAlias() (string, string, error) {
	p := tea.NewProgram(newAliasForm(80))
	final, err := p.Run()
	if err != nil {
		return "", "", err
	}
	m, ok := final.(aliasFormModel)
	if !ok || m.cancelled || !m.submitted {
		return "", "", errors.New("alias cancelled")
	}
	return m.fields[0].Value, m.fields[1].Value, nil
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
