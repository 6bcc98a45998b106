package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/domforge/domhost/manifest"
	"github.com/domforge/domhost/registry"
	"github.com/domforge/domhost/runtime"
	"github.com/domforge/domhost/schema"
)

func newInspectCmd() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "inspect -m composition.hcl",
		Short: "Browse and call exports of a live composition",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := tea.NewProgram(newInspectModel(manifestPath), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "composition manifest file")
	cmd.MarkFlagRequired("manifest")
	return cmd
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	exportStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// entry is one callable export of one live instance.
type entry struct {
	instance registry.ComponentID
	export   string
	sig      schema.FunctionSignature
}

func (e entry) label() string {
	var params []string
	for _, p := range e.sig.Params {
		params = append(params, p.Name+": "+typeStyle.Render(p.Type.String()))
	}
	result := ""
	if e.sig.Result != nil {
		result = " -> " + typeStyle.Render(e.sig.Result.String())
	}
	return string(e.instance) + "#" + exportStyle.Render(e.export) +
		"(" + strings.Join(params, ", ") + ")" + result
}

type inspectState int

const (
	stateSelectExport inspectState = iota
	stateInputArgs
	stateShowResult
)

type inspectModel struct {
	err          error
	session      *runtime.Session
	manifestPath string
	result       string
	entries      []entry
	inputs       []textinput.Model
	selected     int
	focusIdx     int
	state        inspectState
}

func newInspectModel(manifestPath string) *inspectModel {
	return &inspectModel{
		manifestPath: manifestPath,
		state:        stateSelectExport,
	}
}

type loadedMsg struct {
	err     error
	session *runtime.Session
	entries []entry
}

type callResultMsg struct {
	err    error
	result string
}

func (m *inspectModel) Init() tea.Cmd {
	return m.loadComposition
}

func (m *inspectModel) loadComposition() tea.Msg {
	ctx := context.Background()

	mf, err := manifest.Load(m.manifestPath)
	if err != nil {
		return loadedMsg{err: err}
	}

	rt := runtime.New()
	if err := mf.Apply(rt); err != nil {
		return loadedMsg{err: err}
	}
	graph, err := rt.Linker().Finalize()
	if err != nil {
		return loadedMsg{err: err}
	}
	session, err := rt.InstantiateAll(ctx, graph)
	if err != nil {
		return loadedMsg{err: err}
	}

	var entries []entry
	for _, id := range session.IDs() {
		rec, _ := rt.Registry().Record(id)
		for _, f := range rec.World().Exports {
			entries = append(entries, entry{
				instance: id,
				export:   f.Name,
				sig:      f.Signature,
			})
		}
	}

	return loadedMsg{session: session, entries: entries}
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.session != nil {
				m.session.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectExport && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectExport && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectExport:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callExport
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callExport

			case stateShowResult:
				m.state = stateSelectExport
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectExport
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectExport
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.entries = msg.entries

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *inspectModel) prepareInputs() {
	e := m.entries[m.selected]
	m.inputs = make([]textinput.Model, len(e.sig.Params))
	for i, p := range e.sig.Params {
		ti := textinput.New()
		ti.Placeholder = p.Type.String()
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *inspectModel) callExport() tea.Msg {
	e := m.entries[m.selected]

	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		v, err := convertArg(input.Value(), e.sig.Params[i].Type)
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	out, err := m.session.Invoke(context.Background(), e.instance, e.export, args)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatValue(out)}
}

func (m *inspectModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.session == nil {
		return "Loading composition..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("domhost"))
	b.WriteString(" ")
	b.WriteString(m.manifestPath)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectExport:
		b.WriteString("Select an export to call:\n\n")
		for i, e := range m.entries {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + e.label()))
			} else {
				b.WriteString(cursor + e.label())
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", exportStyle.Render(e.export)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(e.sig.Params[i].Type.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", exportStyle.Render(e.export)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}
