package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-decoder/engine"
	"github.com/wippyai/wasm-decoder/flat"
	"github.com/wippyai/wasm-decoder/visitor"
	"github.com/wippyai/wasm-decoder/wasm"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	importStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

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

// listingHeight is the number of listing lines shown at once.
const listingHeight = 30

type modelState int

const (
	stateSelectFunc modelState = iota
	stateShowListing
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	log      *zap.Logger
	eng      *engine.Engine
	module   *wasm.Module
	filename string
	data     []byte
	result   string
	filter   textinput.Model
	visible  []*wasm.Function
	inputs   []textinput.Model
	listing  []string
	selected int
	focusIdx int
	scroll   int
	state    modelState
}

func newInteractiveModel(filename string, log *zap.Logger) *interactiveModel {
	filter := textinput.New()
	filter.Placeholder = "filter functions"
	filter.Prompt = "/ "
	filter.Width = 40
	filter.Focus()
	return &interactiveModel{
		filename: filename,
		log:      log,
		filter:   filter,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err    error
	eng    *engine.Engine
	module *wasm.Module
	data   []byte
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.loadModule, textinput.Blink)
}

func (m *interactiveModel) loadModule() tea.Msg {
	data, mod, err := load(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	eng, err := engine.NewEngine(context.Background(), nil)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{eng: eng, module: mod, data: data}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()

		case "up":
			switch m.state {
			case stateSelectFunc:
				if m.selected > 0 {
					m.selected--
				}
			case stateShowListing:
				if m.scroll > 0 {
					m.scroll--
				}
			}
			return m, nil

		case "down":
			switch m.state {
			case stateSelectFunc:
				if m.selected < len(m.visible)-1 {
					m.selected++
				}
			case stateShowListing:
				if m.scroll < len(m.listing)-listingHeight {
					m.scroll++
				}
			}
			return m, nil

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if fn := m.current(); fn != nil {
					m.showListing(fn)
				}
				return m, nil

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateShowListing
				m.result = ""
				m.err = nil
				return m, nil
			}

		case "ctrl+r":
			if m.state == stateShowListing {
				fn := m.current()
				if !m.exported(fn) {
					m.err = fmt.Errorf("%s is not exported", fn.Name())
					m.state = stateShowResult
					return m, nil
				}
				m.prepareInputs(fn)
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
			return m, nil

		case "esc":
			switch m.state {
			case stateSelectFunc:
				if m.filter.Value() == "" {
					return m, m.quit()
				}
				m.filter.SetValue("")
				m.applyFilter()
			case stateShowListing:
				m.state = stateSelectFunc
				m.listing = nil
			case stateInputArgs:
				m.state = stateShowListing
				m.inputs = nil
			case stateShowResult:
				m.state = stateShowListing
				m.result = ""
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.eng = msg.eng
		m.module = msg.module
		m.data = msg.data
		m.applyFilter()
		return m, nil

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
		return m, nil
	}

	switch m.state {
	case stateSelectFunc:
		var cmd tea.Cmd
		before := m.filter.Value()
		m.filter, cmd = m.filter.Update(msg)
		if m.filter.Value() != before {
			m.applyFilter()
		}
		return m, cmd

	case stateInputArgs:
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

func (m *interactiveModel) quit() tea.Cmd {
	if m.eng != nil {
		_ = m.eng.Close(context.Background())
	}
	return tea.Quit
}

func (m *interactiveModel) current() *wasm.Function {
	if m.selected < 0 || m.selected >= len(m.visible) {
		return nil
	}
	return m.visible[m.selected]
}

func (m *interactiveModel) exported(fn *wasm.Function) bool {
	return fn != nil && len(fn.Exports) > 0
}

// applyFilter keeps the functions whose name contains the filter text.
func (m *interactiveModel) applyFilter() {
	if m.module == nil {
		return
	}
	needle := strings.ToLower(m.filter.Value())
	m.visible = m.visible[:0]
	for _, fn := range m.module.Functions {
		if needle == "" || strings.Contains(strings.ToLower(fn.Name()), needle) {
			m.visible = append(m.visible, fn)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) showListing(fn *wasm.Function) {
	m.scroll = 0
	m.state = stateShowListing
	if fn.IsImported() {
		m.listing = []string{
			importStyle.Render(fmt.Sprintf("imported from %s.%s", fn.Import.Module, fn.Import.Name)),
		}
		return
	}
	p, err := flat.Compile(m.module, fn, visitor.WithLogger(m.log))
	if err != nil {
		m.listing = []string{errorStyle.Render(err.Error())}
		return
	}
	m.listing = strings.Split(strings.TrimSuffix(p.String(), "\n"), "\n")
}

func (m *interactiveModel) prepareInputs(fn *wasm.Function) {
	m.inputs = make([]textinput.Model, len(fn.Type.Params))
	for i, p := range fn.Type.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	if m.eng == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}
	fn := m.current()
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = input.Value()
	}

	results, err := m.eng.Invoke(context.Background(), m.data, m.module, fn.Exports[0], args)
	if err != nil {
		return callResultMsg{err: err}
	}
	if len(results) == 0 {
		return callResultMsg{result: "(no results)"}
	}
	return callResultMsg{result: strings.Join(results, ", ")}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}

	if m.module == nil {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("wasmdump"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		for i, fn := range m.visible {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatFunc(fn)))
			} else {
				b.WriteString("  " + m.formatFunc(fn))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • type to filter • enter listing • esc quit"))

	case stateShowListing:
		end := min(m.scroll+listingHeight, len(m.listing))
		for _, line := range m.listing[m.scroll:end] {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • ctrl+r invoke • esc back"))

	case stateInputArgs:
		fn := m.current()
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(fn.Exports[0])))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(fn.Type.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		fn := m.current()
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(fn.Name())))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • ctrl+c quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(fn *wasm.Function) string {
	s := fmt.Sprintf("[%d] %s %s", fn.Index, funcStyle.Render(fn.Name()), typeStyle.Render(fn.Type.String()))
	if fn.IsImported() {
		s += " " + importStyle.Render("(import "+fn.Import.Module+")")
	}
	return s
}

func runInteractive(filename string, log *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(filename, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
