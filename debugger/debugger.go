// Package debugger is a single-stepping terminal UI over a vm.Machine,
// built as a bubbletea model: a tea.Model driving a textinput.Model for
// commands, lipgloss styles for panes, and a disassembly/frame/history
// view refreshed every step (machine registers are not shown).
package debugger

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rvm/vm"
)

var (
	paneStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1)
	pcStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// breakpoints is a set of word addresses the "b <addr>" command adds to.
type breakpoints map[uint32]bool

// Model is the bubbletea model driving the debug session.
type Model struct {
	m       *vm.Machine
	input   textinput.Model
	bps     breakpoints
	history []string
	err     error
	done    bool
}

// New wraps m in a fresh debugger model, ready to run via tea.NewProgram.
func New(m *vm.Machine) Model {
	ti := textinput.New()
	ti.Placeholder = "n | s | r | b <addr> | q"
	ti.Focus()
	return Model{m: m, input: ti, bps: breakpoints{}}
}

func (Model) Init() tea.Cmd { return textinput.Blink }

func (d Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			d.done = true
			return d, tea.Quit
		case tea.KeyEnter:
			cmd := strings.TrimSpace(d.input.Value())
			d.input.SetValue("")
			d.runCommand(cmd)
			if d.done {
				return d, tea.Quit
			}
			return d, nil
		}
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return d, cmd
}

func (d *Model) runCommand(cmd string) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "n", "s":
		d.step()
	case "r":
		d.runToBreakpoint()
	case "b":
		if len(fields) == 2 {
			var addr uint32
			fmt.Sscanf(fields[1], "%d", &addr)
			d.bps[addr] = true
			d.history = append(d.history, fmt.Sprintf("breakpoint set at %d", addr))
		}
	case "q":
		d.done = true
	default:
		d.history = append(d.history, fmt.Sprintf("unknown command %q", cmd))
	}
}

func (d *Model) step() {
	defer func() {
		if r := recover(); r != nil {
			d.history = append(d.history, fmt.Sprintf("halted: %v", r))
			d.done = true
		}
	}()
	if d.m.Halted {
		d.history = append(d.history, "machine already halted")
		return
	}
	if err := d.m.Step(); err != nil {
		d.err = err
		d.history = append(d.history, err.Error())
	}
}

func (d *Model) runToBreakpoint() {
	defer func() {
		if r := recover(); r != nil {
			d.history = append(d.history, fmt.Sprintf("halted: %v", r))
			d.done = true
		}
	}()
	for !d.m.Halted {
		pc := d.currentPC()
		if d.bps[pc] {
			d.history = append(d.history, fmt.Sprintf("stopped at breakpoint %d", pc))
			return
		}
		if err := d.m.Step(); err != nil {
			d.err = err
			return
		}
	}
}

func (d *Model) currentPC() uint32 {
	if d.m.Cur < 0 || d.m.Cur >= len(d.m.Stacks) {
		return 0
	}
	return d.m.Stacks[d.m.Cur].PC
}

func (d Model) View() string {
	var b strings.Builder
	pc := d.currentPC()

	code, _ := vm.Disassemble(d.m.Code, decBefore(pc, 4), pc+24)
	codePane := paneStyle.Render("pc=" + pcStyle.Render(fmt.Sprintf("%d", pc)) + "\n" + strings.Join(code, "\n"))

	var frameLines []string
	if d.m.Cur >= 0 && d.m.Cur < len(d.m.Stacks) {
		s := d.m.Stacks[d.m.Cur]
		frameLines = append(frameLines, fmt.Sprintf("sp=%d  state=%s", s.SP, s.State))
		n := s.CurrentNumLocals()
		for i := uint16(0); i < n && i < 16; i++ {
			frameLines = append(frameLines, fmt.Sprintf("local[%d] = 0x%016x", i, s.Slot(i).Raw()))
		}
	}
	framePane := paneStyle.Render(strings.Join(frameLines, "\n"))

	histPane := paneStyle.Render(strings.Join(tail(d.history, 8), "\n"))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, codePane, framePane))
	b.WriteString("\n")
	b.WriteString(histPane)
	b.WriteString("\n")
	b.WriteString(d.input.View())
	return b.String()
}

func decBefore(pc uint32, n uint32) uint32 {
	if pc < n {
		return 0
	}
	return pc - n
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
