package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wippyai/clrmeta/model"
)

var browseCmd = &cobra.Command{
	Use:     "browse <file>",
	GroupID: "inspect",
	Short:   "Browse types, members and IL interactively",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newBrowseModel(cmd.Context(), args[0]), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

type browseState int

const (
	stateTypes browseState = iota
	stateMethods
	stateBody
)

type browseModel struct {
	ctx      context.Context
	err      error
	filename string
	module   *model.Module
	types    []*model.TypeDef // filtered view of module.Types
	filter   textinput.Model
	body     viewport.Model
	selected int
	method   int
	state    browseState
	width    int
	height   int
}

type moduleLoadedMsg struct {
	err    error
	module *model.Module
}

func newBrowseModel(ctx context.Context, filename string) *browseModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter types"
	ti.Width = 40
	return &browseModel{
		ctx:      ctx,
		filename: filename,
		filter:   ti,
		body:     viewport.New(80, 20),
		state:    stateTypes,
	}
}

func (m *browseModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *browseModel) loadModule() tea.Msg {
	in, err := openInput(m.ctx, m.filename)
	if err != nil {
		return moduleLoadedMsg{err: err}
	}
	mod, err := in.load(false)
	if err != nil {
		return moduleLoadedMsg{err: err}
	}
	return moduleLoadedMsg{module: mod}
}

func (m *browseModel) applyFilter() {
	text := m.filter.Value()
	m.types = m.types[:0]
	for _, t := range m.module.Types {
		if text == "" || strings.Contains(strings.ToLower(t.FullName()), strings.ToLower(text)) {
			m.types = append(m.types, t)
		}
	}
	if m.selected >= len(m.types) {
		m.selected = max(len(m.types)-1, 0)
	}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.body.Width = msg.Width
		m.body.Height = max(msg.Height-4, 1)

	case moduleLoadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.module = msg.module
		m.applyFilter()

	case tea.KeyMsg:
		if m.filter.Focused() {
			switch msg.String() {
			case "enter", "esc":
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "/":
			if m.state == stateTypes {
				m.filter.Focus()
				return m, textinput.Blink
			}

		case "up", "k":
			switch m.state {
			case stateTypes:
				if m.selected > 0 {
					m.selected--
				}
			case stateMethods:
				if m.method > 0 {
					m.method--
				}
			}

		case "down", "j":
			switch m.state {
			case stateTypes:
				if m.selected < len(m.types)-1 {
					m.selected++
				}
			case stateMethods:
				if m.method < len(m.types[m.selected].Methods)-1 {
					m.method++
				}
			}

		case "enter":
			switch m.state {
			case stateTypes:
				if len(m.types) > 0 && len(m.types[m.selected].Methods) > 0 {
					m.method = 0
					m.state = stateMethods
				}
			case stateMethods:
				var b strings.Builder
				writeMethod(&b, m.types[m.selected].Methods[m.method])
				m.body.SetContent(b.String())
				m.body.GotoTop()
				m.state = stateBody
			}

		case "esc", "backspace":
			switch m.state {
			case stateMethods:
				m.state = stateTypes
			case stateBody:
				m.state = stateMethods
			}
		}
	}

	if m.state == stateBody {
		var cmd tea.Cmd
		m.body, cmd = m.body.Update(msg)
		return m, cmd
	}
	return m, nil
}

// window returns the slice bounds of a list of n items that keeps cursor
// visible in the available height.
func (m *browseModel) window(n, cursor int) (int, int) {
	rows := m.height - 6
	if rows <= 0 || n <= rows {
		return 0, n
	}
	start := min(max(cursor-rows/2, 0), n-rows)
	return start, start + rows
}

func (m *browseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.module == nil {
		return "Loading " + m.filename + "..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("clrmeta"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateTypes:
		b.WriteString(m.filter.View())
		b.WriteString("\n")
		start, end := m.window(len(m.types), m.selected)
		for i := start; i < end; i++ {
			t := m.types[i]
			line := fmt.Sprintf("%s  (%d fields, %d methods)", t.FullName(), len(t.Fields), len(t.Methods))
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter methods • / filter • q quit"))

	case stateMethods:
		t := m.types[m.selected]
		b.WriteString(fmt.Sprintf("Methods of %s\n\n", nameStyle.Render(t.FullName())))
		start, end := m.window(len(t.Methods), m.method)
		for i := start; i < end; i++ {
			meth := t.Methods[i]
			line := meth.MethodName + " " + typeStyle.Render(meth.Signature.String())
			if i == m.method {
				b.WriteString(selectedStyle.Render("> " + meth.MethodName + " " + meth.Signature.String()))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter disassemble • esc back • q quit"))

	case stateBody:
		b.WriteString(m.body.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("%3.f%% • ↑/↓ scroll • esc back • q quit", m.body.ScrollPercent()*100)))
	}
	return b.String()
}
