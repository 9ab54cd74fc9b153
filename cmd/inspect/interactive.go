package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shapekit/shapekit/partial"
	"github.com/shapekit/shapekit/shape"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	setStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectType modelState = iota
	stateFill
	stateInput
	stateResult
)

// interactiveModel walks a demo shape and fills a value through the partial
// builder, one leaf at a time.
type interactiveModel struct {
	reg     *shape.Registry
	names   []string
	builder *partial.Builder
	rows    []fillRow
	input   textinput.Model
	result  string
	err     error

	typeIdx int
	rowIdx  int
	state   modelState
}

// fillRow is one assignable slot of the value under construction.
type fillRow struct {
	label string
	shape *shape.Shape
	kind  rowKind
	// caseName is set for variant case rows.
	caseName string
}

type rowKind int

const (
	rowLeaf rowKind = iota
	rowOption
	rowCase
	rowSkip
)

func newInteractiveModel() *interactiveModel {
	return &interactiveModel{
		reg:   shape.NewRegistry(),
		names: demoNames(),
		state: stateSelectType,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateInput {
		switch key.String() {
		case "ctrl+c":
			m.closeBuilder()
			return m, tea.Quit
		case "esc":
			m.state = stateFill
			return m, nil
		case "enter":
			m.err = m.applyInput()
			m.state = stateFill
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		m.closeBuilder()
		return m, tea.Quit

	case "up", "k":
		switch m.state {
		case stateSelectType:
			if m.typeIdx > 0 {
				m.typeIdx--
			}
		case stateFill:
			if m.rowIdx > 0 {
				m.rowIdx--
			}
		}

	case "down", "j":
		switch m.state {
		case stateSelectType:
			if m.typeIdx < len(m.names)-1 {
				m.typeIdx++
			}
		case stateFill:
			if m.rowIdx < len(m.rows)-1 {
				m.rowIdx++
			}
		}

	case "enter":
		switch m.state {
		case stateSelectType:
			m.err = m.openBuilder()
		case stateFill:
			m.err = m.enterRow()
		case stateResult:
			m.closeBuilder()
			m.result = ""
			m.err = nil
			m.state = stateSelectType
		}

	case "f":
		if m.state == stateFill {
			m.finalize()
		}

	case "esc":
		if m.state == stateFill {
			m.closeBuilder()
			m.state = stateSelectType
		}
	}

	return m, nil
}

func (m *interactiveModel) openBuilder() error {
	t := demoTypes[m.names[m.typeIdx]]
	s, err := m.reg.ShapeOf(t)
	if err != nil {
		return err
	}
	b, err := partial.Alloc(m.reg, s)
	if err != nil {
		return err
	}
	m.builder = b
	m.rows = buildRows(s, m.builder)
	m.rowIdx = 0
	m.state = stateFill
	return nil
}

func (m *interactiveModel) closeBuilder() {
	if m.builder != nil {
		m.builder.Close()
		m.builder = nil
	}
}

// buildRows flattens the current frame's assignable slots. Variants show
// their cases until one is selected, then the selected case's fields.
func buildRows(s *shape.Shape, b *partial.Builder) []fillRow {
	var rows []fillRow
	switch s.Kind {
	case shape.KindVariant:
		if c, ok := b.SelectedCase(); ok {
			for _, f := range c.CaseFields() {
				rows = append(rows, slotRow(f.Name, f.Shape))
			}
			return rows
		}
		for _, c := range s.Cases {
			rows = append(rows, fillRow{
				label:    c.Name + " (" + c.Payload.Name + ")",
				shape:    c.Payload,
				kind:     rowCase,
				caseName: c.Name,
			})
		}
	case shape.KindStruct:
		for _, f := range s.Fields {
			rows = append(rows, slotRow(f.Name, f.Shape))
		}
	default:
		rows = append(rows, slotRow("value", s))
	}
	return rows
}

func slotRow(name string, s *shape.Shape) fillRow {
	switch {
	case s.Kind.IsScalar() || s.Inner != nil:
		return fillRow{label: name, shape: s, kind: rowLeaf}
	case s.Kind == shape.KindOption && s.Elem.Kind.IsScalar():
		return fillRow{label: name, shape: s, kind: rowOption}
	default:
		return fillRow{label: name, shape: s, kind: rowSkip}
	}
}

func (m *interactiveModel) enterRow() error {
	if len(m.rows) == 0 {
		return nil
	}
	row := m.rows[m.rowIdx]
	switch row.kind {
	case rowCase:
		if err := m.builder.SelectCase(row.caseName); err != nil {
			return err
		}
		m.rows = buildRows(m.builder.CurrentShape(), m.builder)
		m.rowIdx = 0
		return nil

	case rowLeaf, rowOption:
		ti := textinput.New()
		ti.Placeholder = row.shape.Name
		ti.Prompt = row.label + ": "
		ti.Width = 40
		ti.Focus()
		m.input = ti
		m.state = stateInput
		return nil

	default:
		return nil
	}
}

// applyInput parses the typed text against the row's scalar kind and assigns
// it through the builder.
func (m *interactiveModel) applyInput() error {
	row := m.rows[m.rowIdx]

	leaf := row.shape
	if row.kind == rowOption {
		leaf = leaf.Elem
	}
	if leaf.Inner != nil {
		leaf = leaf.Inner
	}
	v, err := parseScalar(m.input.Value(), leaf.Kind)
	if err != nil {
		return err
	}

	// Top-level leaf shapes assign directly; struct and case fields descend
	// first.
	cur := m.builder.CurrentShape()
	if cur.Kind != shape.KindStruct && cur.Kind != shape.KindVariant {
		return m.builder.Set(v)
	}
	if err := m.builder.BeginField(row.label); err != nil {
		return err
	}
	if err := m.builder.Set(v); err != nil {
		// Abandon the field frame; the Set failure is the error worth showing.
		_ = m.builder.Pop()
		return err
	}
	return m.builder.Pop()
}

func parseScalar(value string, k shape.Kind) (any, error) {
	switch k {
	case shape.KindBool:
		return value == "true" || value == "1", nil
	case shape.KindString:
		return value, nil
	case shape.KindFloat32, shape.KindFloat64:
		return strconv.ParseFloat(value, 64)
	case shape.KindUint, shape.KindUint8, shape.KindUint16, shape.KindUint32, shape.KindUint64:
		return strconv.ParseUint(value, 10, 64)
	default:
		return strconv.ParseInt(value, 10, 64)
	}
}

func (m *interactiveModel) finalize() {
	v, err := m.builder.Finalize()
	if err != nil {
		m.err = err
		return
	}
	m.builder = nil
	m.result = fmt.Sprintf("%+v", v)
	m.err = nil
	m.state = stateResult
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Shape Inspector"))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectType:
		b.WriteString("Select a type to build:\n\n")
		for i, name := range m.names {
			cursor := "  "
			if i == m.typeIdx {
				b.WriteString(selectedStyle.Render("> " + name))
			} else {
				b.WriteString(cursor + name)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter open • q quit"))

	case stateFill:
		b.WriteString(m.builder.CurrentShape().Name)
		b.WriteString("\n\n")
		for i, row := range m.rows {
			line := row.label
			if row.kind == rowSkip {
				line += " " + helpStyle.Render("(view only)")
			} else if m.builder.IsFieldSet(i) && row.kind != rowCase {
				line += " " + setStyle.Render("✓")
			}
			if i == m.rowIdx {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter edit • f finalize • esc back • q quit"))

	case stateInput:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter apply • esc cancel"))

	case stateResult:
		b.WriteString("Built value:\n\n")
		b.WriteString(setStyle.Render(m.result))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return b.String()
}

func runInteractive() error {
	p := tea.NewProgram(newInteractiveModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
