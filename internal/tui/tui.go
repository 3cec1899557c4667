// Package tui is the full-screen terminal view: a radar centered on the
// observer, the flights overhead and the last notification.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/overhead/internal/watcher"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/tracking"
)

// Checker runs one poll of the pipeline.
type Checker interface {
	Check(ctx context.Context) (watcher.Result, error)
	PollInterval() time.Duration
}

const (
	radarWidth  = 61
	radarHeight = 21
	logLines    = 5
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("46")).
			Padding(0, 1)
)

type (
	checkMsg struct {
		res watcher.Result
		err error
	}
	pollMsg  struct{}
	frameMsg time.Time
)

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	checker Checker
	logs    *LogBuffer

	table    table.Model
	spinner  spinner.Model
	checking bool

	location  coordinates.Geographic
	radiusKm  float64
	zoom      float64
	sightings []detect.Sighting
	fresh     map[string]bool
	last      watcher.Result
	checked   bool
	lastErr   error
	notice    string
	now       time.Time
}

type blip struct {
	id       string
	position coordinates.Geographic
	fresh    bool
}

// New returns a Model polling through checker. logs may be nil.
func New(ctx context.Context, checker Checker, logs *LogBuffer) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Flight", Width: 9},
			{Title: "Type", Width: 5},
			{Title: "Alt ft", Width: 7},
			{Title: "Dist km", Width: 7},
			{Title: "Dir", Width: 4},
			{Title: "Elev", Width: 5},
			{Title: "Closest", Width: 8},
			{Title: "", Width: 4},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	return Model{
		ctx:      ctx,
		checker:  checker,
		logs:     logs,
		table:    t,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		checking: true,
		zoom:     1.0,
		fresh:    make(map[string]bool),
		now:      time.Now(),
	}
}

// Init starts the first check and the animation clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.check(), frame(), m.spinner.Tick)
}

func (m Model) check() tea.Cmd {
	return func() tea.Msg {
		res, err := m.checker.Check(m.ctx)
		return checkMsg{res: res, err: err}
	}
}

func frame() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update handles input, check results and clock ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if !m.checking {
				m.checking = true
				return m, m.check()
			}
			return m, nil
		case "+", "=":
			if m.zoom < 8 {
				m.zoom *= 1.5
			}
			return m, nil
		case "-", "_":
			m.zoom = max(1.0, m.zoom/1.5)
			return m, nil
		case "0":
			m.zoom = 1.0
			return m, nil
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case checkMsg:
		m.checking = false
		m.apply(msg.res, msg.err)
		return m, tea.Tick(m.checker.PollInterval(), func(time.Time) tea.Msg { return pollMsg{} })

	case pollMsg:
		if m.checking {
			return m, nil
		}
		m.checking = true
		return m, m.check()

	case frameMsg:
		m.now = time.Time(msg)
		return m, frame()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply folds a check result into the view state.
func (m *Model) apply(res watcher.Result, err error) {
	m.lastErr = err
	if err != nil && res.CheckedAt.IsZero() {
		return
	}

	m.checked = true
	m.last = res
	m.location = res.Location
	m.radiusKm = res.RadiusKm
	m.sightings = res.Overhead

	for _, s := range res.New {
		m.fresh[s.ID()] = true
	}
	overhead := make(map[string]bool, len(res.Overhead))
	for _, s := range res.Overhead {
		overhead[s.ID()] = true
	}
	for id := range m.fresh {
		if !overhead[id] {
			delete(m.fresh, id)
		}
	}

	if res.Notification != nil {
		m.notice = res.Notification.Title + "\n" + res.Notification.Body
	}
	m.table.SetRows(m.rows())
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.sightings))
	for _, s := range m.sightings {
		closest := "-"
		if s.Approaching && s.TimeToClosest > 0 {
			closest = s.TimeToClosest.Round(time.Second).String()
		}
		mark := ""
		if m.fresh[s.ID()] {
			mark = "new"
		}
		rows = append(rows, table.Row{
			s.Aircraft.DisplayName(),
			s.Aircraft.TypeCode,
			fmt.Sprintf("%.0f", s.Aircraft.Altitude),
			fmt.Sprintf("%.1f", s.DistanceKm),
			s.Direction,
			fmt.Sprintf("%.0f°", s.Elevation),
			closest,
			mark,
		})
	}
	return rows
}

// blips projects every sighting to the current clock.
func (m Model) blips() []blip {
	out := make([]blip, 0, len(m.sightings))
	for _, s := range m.sightings {
		p := tracking.PredictPosition(s.Aircraft, m.now)
		out = append(out, blip{id: s.ID(), position: p.Position, fresh: m.fresh[s.ID()]})
	}
	return out
}

func (m Model) selectedID() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.sightings) {
		return ""
	}
	return m.sightings[i].ID()
}

// View renders the screen.
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("OVERHEAD"))
	s.WriteString("  ")
	s.WriteString(m.status())
	s.WriteString("\n\n")

	view := m
	view.radiusKm = m.radiusKm / m.zoom
	radar := view.renderRadar(radarWidth, radarHeight)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, radar, "  ", m.details()))
	s.WriteString("\n")

	s.WriteString(headerStyle.Render(fmt.Sprintf("Overhead (%d)", len(m.sightings))))
	s.WriteString("\n")
	if len(m.sightings) == 0 {
		s.WriteString(dimStyle.Render("  Nothing overhead"))
		s.WriteString("\n")
	} else {
		s.WriteString(m.table.View())
		s.WriteString("\n")
	}

	if m.notice != "" {
		s.WriteString(bannerStyle.Render(m.notice))
		s.WriteString("\n")
	}

	if m.logs != nil {
		for _, line := range m.logs.Tail(logLines) {
			s.WriteString(dimStyle.Render(line))
			s.WriteString("\n")
		}
	}

	s.WriteString(dimStyle.Render("↑/↓: Select  C: Check now  +/-: Zoom  0: Reset  Q: Quit"))
	s.WriteString("\n")
	return s.String()
}

func (m Model) status() string {
	switch {
	case m.checking:
		return m.spinner.View() + " checking"
	case m.lastErr != nil:
		return errStyle.Render("check failed: " + m.lastErr.Error())
	case !m.checked:
		return dimStyle.Render("waiting for first check")
	}

	parts := []string{
		fmt.Sprintf("%.4f, %.4f", m.location.Latitude, m.location.Longitude),
		fmt.Sprintf("%.0f km", m.radiusKm),
		"checked " + m.now.Sub(m.last.CheckedAt).Round(time.Second).String() + " ago",
	}
	line := dimStyle.Render(strings.Join(parts, "  "))
	if m.last.Throttled {
		line += "  " + warnStyle.Render("throttled, retry in "+m.last.RetryIn.Round(time.Second).String())
	}
	return line
}

func (m Model) details() string {
	var d strings.Builder
	d.WriteString(headerStyle.Render("Selected"))
	d.WriteString("\n\n")

	i := m.table.Cursor()
	if i < 0 || i >= len(m.sightings) {
		d.WriteString(dimStyle.Render("none"))
		return d.String()
	}
	s := m.sightings[i]
	ac := s.Aircraft
	fmt.Fprintf(&d, "%s  %s\n", ac.DisplayName(), strings.ToUpper(ac.ICAO))
	if ac.Registration != "" {
		fmt.Fprintf(&d, "Reg   %s\n", ac.Registration)
	}
	if ac.TypeCode != "" {
		fmt.Fprintf(&d, "Type  %s\n", ac.TypeCode)
	}
	fmt.Fprintf(&d, "Alt   %.0f ft\n", ac.Altitude)
	fmt.Fprintf(&d, "Spd   %.0f kt\n", ac.GroundSpeed)
	fmt.Fprintf(&d, "Trk   %.0f°\n", ac.Track)
	fmt.Fprintf(&d, "Dist  %.1f km %s\n", s.DistanceKm, s.Direction)
	fmt.Fprintf(&d, "Look  %.0f° up\n", s.Elevation)
	if s.Approaching {
		d.WriteString("Approaching\n")
	}

	p := tracking.PredictPosition(ac, m.now)
	if p.Confidence < 1 {
		fmt.Fprintf(&d, "\n%s\n", dimStyle.Render(fmt.Sprintf("projected, %.0f%% confidence", p.Confidence*100)))
	}
	return d.String()
}

// Run shows the TUI until the user quits or ctx is cancelled.
func Run(ctx context.Context, checker Checker, logs *LogBuffer) error {
	p := tea.NewProgram(New(ctx, checker, logs), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run tui: %w", err)
	}
	return nil
}
