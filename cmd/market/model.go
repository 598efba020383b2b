package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Prompt states.
const (
	StateProviderSelect = iota
	StateAPIKeyInput
	StateSymbolInput
	StateIntervalSelect
	StateStartInput
	StateEndInput
	StateDone
)

// Model is the Bubble Tea model that asks for missing download parameters.
type Model struct {
	state        int
	values       PromptValues
	providerList list.Model
	apiKeyInput  textinput.Model
	symbolInput  textinput.Model
	intervalList list.Model
	startInput   textinput.Model
	endInput     textinput.Model
	aborted      bool
	err          error
	width        int
	height       int
}

// NewModel creates a prompt that starts at the first missing value.
func NewModel(values PromptValues) Model {
	m := Model{
		values:       values,
		providerList: NewProviderList(),
		apiKeyInput:  NewApiKeyInput(),
		symbolInput:  NewSymbolInput(),
		intervalList: NewIntervalList(),
		startInput:   NewDateInput("2025-07-16"),
		endInput:     NewDateInput("2025-08-20"),
	}

	m.state = m.nextState(-1)
	m.focus()

	return m
}

// Values returns what the prompt has collected so far.
func (m Model) Values() PromptValues {
	return m.values
}

// Aborted reports whether the user quit before finishing.
func (m Model) Aborted() bool {
	return m.aborted
}

// nextState returns the first state after from whose value is still missing.
func (m Model) nextState(from int) int {
	for state := from + 1; state < StateDone; state++ {
		if m.missing(state) {
			return state
		}
	}

	return StateDone
}

func (m Model) missing(state int) bool {
	switch state {
	case StateProviderSelect:
		return m.values.Provider == ""
	case StateAPIKeyInput:
		return m.values.needsAPIKey()
	case StateSymbolInput:
		return m.values.Symbol == ""
	case StateIntervalSelect:
		return !m.values.knownInterval()
	case StateStartInput:
		return m.values.Start == ""
	case StateEndInput:
		return m.values.End == ""
	}

	return false
}

func (m *Model) focus() {
	m.apiKeyInput.Blur()
	m.symbolInput.Blur()
	m.startInput.Blur()
	m.endInput.Blur()

	if input := m.activeInput(); input != nil {
		input.Focus()
	}
}

func (m *Model) activeInput() *textinput.Model {
	switch m.state {
	case StateAPIKeyInput:
		return &m.apiKeyInput
	case StateSymbolInput:
		return &m.symbolInput
	case StateStartInput:
		return &m.startInput
	case StateEndInput:
		return &m.endInput
	}

	return nil
}

// advance moves to the next missing value, quitting once everything is collected.
func (m Model) advance() (tea.Model, tea.Cmd) {
	m.err = nil
	m.state = m.nextState(m.state)
	m.focus()

	if m.state == StateDone {
		return m, tea.Quit
	}

	if m.activeInput() != nil {
		return m, textinput.Blink
	}

	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.state == StateDone {
		return tea.Quit
	}

	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		case "q":
			// Only quit on 'q' if not in text input mode
			if m.activeInput() == nil {
				m.aborted = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.providerList.SetSize(msg.Width, msg.Height-4)
		m.intervalList.SetSize(msg.Width, msg.Height-4)
		return m, nil
	}

	switch m.state {
	case StateProviderSelect:
		return m.updateProviderSelect(msg)
	case StateIntervalSelect:
		return m.updateIntervalSelect(msg)
	case StateAPIKeyInput, StateSymbolInput, StateStartInput, StateEndInput:
		return m.updateInput(msg)
	}

	return m, nil
}

func (m Model) updateProviderSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if item, ok := m.providerList.SelectedItem().(listItem); ok {
			m.values.Provider = item.name
			return m.advance()
		}
	}

	var cmd tea.Cmd
	m.providerList, cmd = m.providerList.Update(msg)
	return m, cmd
}

func (m Model) updateIntervalSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if item, ok := m.intervalList.SelectedItem().(listItem); ok {
			m.values.Interval = item.name
			return m.advance()
		}
	}

	var cmd tea.Cmd
	m.intervalList, cmd = m.intervalList.Update(msg)
	return m, cmd
}

func (m Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		if err := m.submit(strings.TrimSpace(m.activeInput().Value())); err != nil {
			m.err = err
			return m, nil
		}

		return m.advance()
	}

	var cmd tea.Cmd
	input := m.activeInput()
	*input, cmd = input.Update(msg)
	return m, cmd
}

// submit stores the value of the active input after validating it.
func (m *Model) submit(value string) error {
	if value == "" {
		return fmt.Errorf("a value is required")
	}

	switch m.state {
	case StateAPIKeyInput:
		m.values.APIKey = value
	case StateSymbolInput:
		m.values.Symbol = strings.ToUpper(value)
	case StateStartInput:
		if _, err := parseDate(value); err != nil {
			return err
		}

		m.values.Start = value
	case StateEndInput:
		end, err := parseEndDate(value)
		if err != nil {
			return err
		}

		if start, err := parseDate(m.values.Start); err == nil && !start.Before(end) {
			return fmt.Errorf("end date must not be before %s", m.values.Start)
		}

		m.values.End = value
	}

	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	var s strings.Builder

	switch m.state {
	case StateProviderSelect:
		s.WriteString(TitleStyle.Render("Argo History - Download Bars"))
		s.WriteString("\n\n")
		s.WriteString(m.providerList.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to select, q to quit"))

	case StateAPIKeyInput:
		m.writeInputView(&s, "Polygon API Key", "Enter your Polygon.io API key:", m.apiKeyInput)

	case StateSymbolInput:
		m.writeInputView(&s, "Enter Symbol", "Symbol to download (e.g., BTCUSDT, SPY, X:BTCUSD):", m.symbolInput)

	case StateIntervalSelect:
		s.WriteString(TitleStyle.Render(fmt.Sprintf("Select Interval for %s", m.values.Symbol)))
		s.WriteString("\n\n")
		s.WriteString(m.intervalList.View())
		s.WriteString("\n")
		s.WriteString(HelpStyle.Render("Press Enter to select, q to quit"))

	case StateStartInput:
		m.writeInputView(&s, "Start Date", "First day of the range (YYYY-MM-DD):", m.startInput)

	case StateEndInput:
		m.writeInputView(&s, "End Date", "Last day of the range, inclusive (YYYY-MM-DD):", m.endInput)

	case StateDone:
		s.WriteString(TitleStyle.Render("Ready"))
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("Downloading %s %s from %s to %s via %s\n",
			ValueStyle.Render(m.values.Symbol),
			ValueStyle.Render(m.values.Interval),
			m.values.Start, m.values.End, m.values.Provider))
	}

	return s.String()
}

func (m Model) writeInputView(s *strings.Builder, title, label string, input textinput.Model) {
	s.WriteString(TitleStyle.Render(title))
	s.WriteString("\n\n")
	s.WriteString(label)
	s.WriteString("\n\n")
	s.WriteString(input.View())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	s.WriteString(HelpStyle.Render("Press Enter to confirm, Ctrl+C to quit"))
}

// RunPrompt asks for the missing values on the terminal.
func RunPrompt(values PromptValues, opts ...tea.ProgramOption) (PromptValues, error) {
	if values.Complete() {
		return values, nil
	}

	final, err := tea.NewProgram(NewModel(values), opts...).Run()
	if err != nil {
		return values, err
	}

	m, ok := final.(Model)
	if !ok {
		return values, fmt.Errorf("unexpected prompt model %T", final)
	}

	if m.Aborted() {
		return m.Values(), fmt.Errorf("prompt cancelled")
	}

	return m.Values(), nil
}
