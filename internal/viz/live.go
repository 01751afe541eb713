package viz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/elevsim/internal/config"
	"github.com/san-kum/elevsim/internal/experiment"
	"github.com/san-kum/elevsim/internal/metrics"
)

const (
	shaftRows       = 18
	historyCapacity = 300
	graphWidth      = 50

	// Nudge is how far Up/Down move the position target, in meters.
	Nudge = 0.05
	// CruiseVelocity is the speed V runs at, in m/s.
	CruiseVelocity = 0.2
)

var errInjected = errors.New("injected fault")

type TickMsg time.Time

// Model runs the elevator rig one control period per frame.
type Model struct {
	cfg    *config.Config
	logger *zap.Logger
	rig    *experiment.Rig

	running  bool
	faulted  bool
	showHelp bool
	ticks    int
	target   float64
	last     metrics.Sample
	err      error

	heights   []float64
	setpoints []float64
	currents  []float64
}

// NewModel wires a fresh rig from cfg. The rig's clock never advances;
// the frame rate is the control period.
func NewModel(cfg *config.Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := Model{cfg: cfg, logger: logger, running: true}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m *Model) reset() error {
	rig, err := experiment.NewRig(context.Background(), m.cfg, clock.NewMock(), m.logger)
	if err != nil {
		return err
	}
	m.rig = rig
	m.ticks = 0
	m.faulted = false
	m.err = nil
	m.target = m.cfg.Plant.StartHeight
	m.last = rig.Sample(0)
	m.heights = m.heights[:0]
	m.setpoints = m.setpoints[:0]
	m.currents = m.currents[:0]
	return nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Loop.Period, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles keys and advances the loop on every tick.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.handleKey(msg.String())
		if m.quitting(msg.String()) {
			return m, tea.Quit
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) quitting(key string) bool {
	return key == "q" || key == "ctrl+c"
}

func (m *Model) handleKey(key string) {
	sub := m.rig.Subsystem
	switch key {
	case " ":
		m.running = !m.running
	case "r":
		if err := m.reset(); err != nil {
			m.err = err
		}
	case "up", "k":
		m.moveTo(m.target + Nudge)
	case "down", "j":
		m.moveTo(m.target - Nudge)
	case "v":
		sub.SetVelocity(CruiseVelocity)
	case "V":
		sub.SetVelocity(-CruiseVelocity)
	case "s":
		sub.Stop()
	case "o":
		sub.SetVoltage(0)
	case "f":
		m.faulted = !m.faulted
		if m.faulted {
			m.rig.Sim.SetFault(errInjected)
		} else {
			m.rig.Sim.SetFault(nil)
		}
	case "?":
		m.showHelp = !m.showHelp
	default:
		if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
			lo, hi := sub.MinHeight(), sub.MaxHeight()
			m.moveTo(lo + (hi-lo)*float64(key[0]-'0')/9)
		}
	}
}

func (m *Model) moveTo(meters float64) {
	sub := m.rig.Subsystem
	m.target = math.Max(sub.MinHeight(), math.Min(sub.MaxHeight(), meters))
	sub.SetPosition(m.target)
}

// step runs one control period and records the result.
func (m *Model) step() {
	m.err = m.rig.Loop.Step(context.Background())
	m.ticks++
	m.last = m.rig.Sample(float64(m.ticks) * m.cfg.Loop.Period.Seconds())

	m.heights = appendCapped(m.heights, m.last.Height)
	m.setpoints = appendCapped(m.setpoints, m.last.Setpoint)
	m.currents = appendCapped(m.currents, m.last.Current)
}

func appendCapped(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

// View renders the shaft beside the readouts.
func (m Model) View() string {
	shaft := Panel.Render(m.drawShaft())

	var s strings.Builder
	s.WriteString(Title.Render("ELEVATOR") + "  " + m.status() + "\n\n")

	sub := m.rig.Subsystem
	row := func(label, value string) {
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.2f s", m.last.Time))
	row("Mode", sub.Mode().String())
	row("Height", fmt.Sprintf("%.3f m", m.last.Height))
	row("Velocity", fmt.Sprintf("%+.3f m/s", m.last.Velocity))
	row("Setpoint", fmt.Sprintf("%.3f m", m.last.Setpoint))
	if m.last.HasTarget {
		row("Target", fmt.Sprintf("%.3f m", m.last.Target))
	}
	row("Command", fmt.Sprintf("%+.2f V", m.last.Command))
	row("Current", fmt.Sprintf("%.1f A", m.last.Current))
	s.WriteString(MetricLabel.Render("Temp") +
		Gauge((m.last.Temperature-25)/75, 20) +
		MetricValue.Render(fmt.Sprintf(" %.1f °C", m.last.Temperature)) + "\n")
	s.WriteString(MetricLabel.Render("Amps") + Subtle.Render(Sparkline(m.currents, 30)) + "\n")

	if len(m.heights) > 1 {
		graph := asciigraph.PlotMany([][]float64{m.heights, m.setpoints},
			asciigraph.Height(8),
			asciigraph.Width(graphWidth),
			asciigraph.SeriesColors(asciigraph.Yellow, asciigraph.Green),
			asciigraph.Caption("height (yellow) / setpoint (green)"))
		s.WriteString("\n" + graph + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + StatusFault.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint.Render("↑↓ nudge  0-9 floor  v/V cruise  s stop  o open  f fault  space pause  r reset  ? help  q quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, shaft, "  ", s.String())
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

func (m Model) status() string {
	switch {
	case m.faulted:
		return StatusFault.Render("FAULT")
	case !m.running:
		return StatusPaused.Render("PAUSED")
	}
	return StatusRunning.Render("RUNNING")
}

// drawShaft draws the travel top-down: the carriage as a block, the
// profile setpoint on the right and the target on the left.
func (m Model) drawShaft() string {
	sub := m.rig.Subsystem
	lo, hi := sub.MinHeight(), sub.MaxHeight()
	rowOf := func(h float64) int {
		f := (h - lo) / (hi - lo)
		return int(math.Round(math.Max(0, math.Min(1, f)) * (shaftRows - 1)))
	}
	car := rowOf(m.last.Height)
	sp := rowOf(m.last.Setpoint)
	target := -1
	if m.last.HasTarget {
		target = rowOf(m.last.Target)
	}

	var b strings.Builder
	for r := shaftRows - 1; r >= 0; r-- {
		left, right := " ", " "
		if r == target {
			left = Target.Render("▶")
		}
		if r == sp {
			right = Setpoint.Render("◀")
		}
		body := "    "
		if r == car {
			body = Carriage.Render("████")
		}
		b.WriteString(left + "│" + body + "│" + right)
		if r > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Run starts the live view and blocks until the user quits.
func Run(cfg *config.Config, logger *zap.Logger) error {
	m, err := NewModel(cfg, logger)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

const helpText = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Up/K     - Raise target one nudge   ║
║  Down/J   - Lower target one nudge   ║
║  0-9      - Target a tenth of travel ║
║  V        - Cruise up                ║
║  Shift+V  - Cruise down              ║
║  S        - Stop                     ║
║  O        - Open loop at 0 V         ║
║  F        - Toggle motor fault       ║
║  Space    - Pause/Resume             ║
║  R        - Reset                    ║
║  Q        - Quit                     ║
╚══════════════════════════════════════╝`
