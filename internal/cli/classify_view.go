package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ytbatch/internal/batch"
)

var (
	classifyLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	classifyMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	classifyErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	classifyOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

type classifiedMsg struct {
	url   string
	res   batch.Classification
	done  int
	total int
}

type classifyModel struct {
	spinner spinner.Model
	done    int
	total   int
	failed  int
	last    string
	width   int
}

func newClassifyModel(total int) classifyModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = classifyLabelStyle
	return classifyModel{spinner: s, total: total}
}

func (m classifyModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m classifyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case classifiedMsg:
		m.done = msg.done
		if msg.total > 0 {
			m.total = msg.total
		}
		if msg.res.Err != "" {
			m.failed++
			m.last = classifyErrorStyle.Render("✗") + " " + msg.url
		} else {
			m.last = "[" + msg.res.ExtractorID + "] " + msg.url
		}
		if m.done >= m.total {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m classifyModel) View() string {
	if m.total > 0 && m.done >= m.total {
		summary := fmt.Sprintf("classified %d/%d", m.done, m.total)
		if m.failed > 0 {
			return classifyOKStyle.Render("✓") + " " + summary + " " + classifyErrorStyle.Render(fmt.Sprintf("(%d failed)", m.failed)) + "\n"
		}
		return classifyOKStyle.Render("✓") + " " + summary + "\n"
	}
	line := fmt.Sprintf("%s classifying %d/%d", m.spinner.View(), m.done, m.total)
	if m.last != "" {
		line += "  " + classifyMutedStyle.Render(truncate(m.last, m.width-len(line)-2))
	}
	return line + "\n"
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// classifyProgress runs the spinner while classification is in flight and
// returns the pipeline hook that feeds it. The hook blocks on the last
// result until the view has exited, so later prompts get a clean terminal.
func classifyProgress(out io.Writer, total int) (func(string, batch.Classification, int, int), func()) {
	p := tea.NewProgram(newClassifyModel(total), tea.WithOutput(out), tea.WithInput(nil))
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, _ = p.Run()
	}()

	hook := func(url string, res batch.Classification, done, total int) {
		p.Send(classifiedMsg{url: url, res: res, done: done, total: total})
		if done >= total {
			<-finished
		}
	}
	stop := func() {
		p.Quit()
		<-finished
	}
	return hook, stop
}

func countInputs(fileLines, urls []string) int {
	return len(batch.ParseLines(fileLines, "")) + len(batch.ParseLines(urls, ""))
}
