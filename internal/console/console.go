// Package console is the multi-panel operator console: flights overhead,
// notification history, the cache inspector and the pipeline's logs.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/unklstewy/overhead/internal/watcher"
	"github.com/unklstewy/overhead/pkg/cache"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/notify"
)

// Pipeline is what the console watches and drives.
type Pipeline interface {
	Check(ctx context.Context) (watcher.Result, error)
	Last() (watcher.Result, bool)
	PollInterval() time.Duration
}

// Cache is the inspected cache.
type Cache interface {
	Keys() []string
	Stats() cache.Stats
	Clear(ctx context.Context) error
}

// Throttle is the notification gate.
type Throttle interface {
	Notified() []string
	LastDelivered() time.Time
	Reset()
}

// History holds recent notifications.
type History interface {
	Recent(limit int) []notify.Notification
}

// Config holds the console's dependencies.
type Config struct {
	Pipeline Pipeline
	Cache    Cache
	Throttle Throttle
	History  History
	Logs     *LogManager

	// Refresh is how often panels redraw (default 2s)
	Refresh time.Duration
}

// Console is the tview application.
type Console struct {
	cfg Config

	tviewApp  *tview.Application
	flights   *tview.Table
	telemetry *tview.TextView
	cacheView *tview.TextView
	history   *tview.TextView
	controls  *tview.TextView
	logs      *LogManager

	ctx      context.Context
	checking chan struct{}
	result   watcher.Result
	checked  bool
}

// New builds the console's panels.
func New(cfg Config) *Console {
	if cfg.Refresh <= 0 {
		cfg.Refresh = 2 * time.Second
	}
	if cfg.Logs == nil {
		cfg.Logs = NewLogManager(200)
	}

	c := &Console{
		cfg:      cfg,
		logs:     cfg.Logs,
		ctx:      context.Background(),
		checking: make(chan struct{}, 1),
	}
	c.setupUI()
	return c
}

func (c *Console) setupUI() {
	c.tviewApp = tview.NewApplication()

	c.flights = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	c.flights.SetBorder(true).SetTitle(" Overhead ")
	c.flights.SetSelectionChangedFunc(func(row, _ int) {
		c.updateTelemetry()
	})

	c.telemetry = tview.NewTextView().SetDynamicColors(true)
	c.telemetry.SetBorder(true).SetTitle(" Flight ")

	c.cacheView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	c.cacheView.SetBorder(true).SetTitle(" Cache ")

	c.history = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	c.history.SetBorder(true).SetTitle(" Notifications ")

	c.controls = tview.NewTextView().SetDynamicColors(true)
	c.controls.SetBorder(true).SetTitle(" Controls ")
	c.controls.SetText(`[yellow]NAVIGATION[-]
  [white]↑/↓, j/k[-]  Select

[yellow]ACTIONS[-]
  [white]c[-]         Check now
  [white]x[-]         Clear cache
  [white]r[-]         Reset notified

[yellow]CONTROL[-]
  [white]q[-]         Quit`)

	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.flights, 0, 5, true).
		AddItem(c.history, 0, 3, false).
		AddItem(c.logs.GetView(), 0, 3, false)

	sidebar := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.telemetry, 0, 4, false).
		AddItem(c.cacheView, 0, 4, false).
		AddItem(c.controls, 11, 0, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(left, 0, 7, true).
		AddItem(sidebar, 0, 3, false)

	c.tviewApp.SetRoot(root, true)
	c.tviewApp.SetInputCapture(c.handleKeyboard)
	c.renderFlights()
	c.updateTelemetry()
}

// handleKeyboard handles keyboard input
func (c *Console) handleKeyboard(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape {
		c.tviewApp.Stop()
		return nil
	}
	if event.Key() == tcell.KeyRune && c.action(event.Rune()) {
		return nil
	}
	return event
}

// action runs the command bound to r and reports whether one was.
func (c *Console) action(r rune) bool {
	switch r {
	case 'q':
		c.tviewApp.Stop()
	case 'c':
		c.checkNow()
	case 'x':
		c.clearCache()
	case 'r':
		c.cfg.Throttle.Reset()
		c.logs.Info("notified set cleared")
		c.refreshPanels()
	case 'j':
		c.moveSelection(1)
	case 'k':
		c.moveSelection(-1)
	default:
		return false
	}
	return true
}

func (c *Console) moveSelection(delta int) {
	n := len(c.result.Overhead)
	if n == 0 {
		return
	}
	row, _ := c.flights.GetSelection()
	c.flights.Select(max(1, min(row+delta, n)), 0)
}

// checkNow runs a check in the background unless one is running.
func (c *Console) checkNow() {
	select {
	case c.checking <- struct{}{}:
	default:
		return
	}
	go func() {
		defer func() { <-c.checking }()
		res, err := c.cfg.Pipeline.Check(c.ctx)
		if err != nil {
			c.logs.Error("check failed: %v", err)
		}
		c.tviewApp.QueueUpdateDraw(func() {
			c.setResult(res)
			c.refreshPanels()
		})
	}()
}

func (c *Console) clearCache() {
	if err := c.cfg.Cache.Clear(c.ctx); err != nil {
		c.logs.Error("cache clear failed: %v", err)
		return
	}
	c.logs.Info("cache cleared")
	c.refreshPanels()
}

// setResult keeps res when it came from a completed poll.
func (c *Console) setResult(res watcher.Result) {
	if res.CheckedAt.IsZero() {
		return
	}
	c.result = res
	c.checked = true
	c.renderFlights()
}

func (c *Console) renderFlights() {
	row, _ := c.flights.GetSelection()
	c.flights.Clear()

	for col, title := range []string{"Flight", "ICAO", "Type", "Alt ft", "Dist km", "Dir", "Elev", "Status"} {
		c.flights.SetCell(0, col, tview.NewTableCell(title).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}

	fresh := make(map[string]bool, len(c.result.New))
	for _, s := range c.result.New {
		fresh[s.ID()] = true
	}
	for i, s := range c.result.Overhead {
		for col, text := range flightRow(s, fresh[s.ID()]) {
			cell := tview.NewTableCell(text)
			if fresh[s.ID()] {
				cell.SetTextColor(tcell.ColorGreen)
			}
			c.flights.SetCell(i+1, col, cell)
		}
	}

	if n := len(c.result.Overhead); n > 0 {
		row = max(1, min(row, n))
		c.flights.Select(row, 0)
	}
	c.flights.SetTitle(fmt.Sprintf(" Overhead (%d) ", len(c.result.Overhead)))
}

func flightRow(s detect.Sighting, fresh bool) []string {
	status := ""
	switch {
	case fresh:
		status = "new"
	case s.Approaching:
		status = "approaching"
	}
	return []string{
		s.Aircraft.DisplayName(),
		strings.ToUpper(s.Aircraft.ICAO),
		s.Aircraft.TypeCode,
		fmt.Sprintf("%.0f", s.Aircraft.Altitude),
		fmt.Sprintf("%.1f", s.DistanceKm),
		s.Direction,
		fmt.Sprintf("%.0f°", s.Elevation),
		status,
	}
}

func (c *Console) selected() (detect.Sighting, bool) {
	row, _ := c.flights.GetSelection()
	i := row - 1
	if i < 0 || i >= len(c.result.Overhead) {
		return detect.Sighting{}, false
	}
	return c.result.Overhead[i], true
}

func (c *Console) updateTelemetry() {
	var text string

	if s, ok := c.selected(); ok {
		ac := s.Aircraft
		text += fmt.Sprintf("[yellow]AIRCRAFT:[-] [white]%s[-] [gray](%s)[-]\n", tview.Escape(ac.DisplayName()), strings.ToUpper(ac.ICAO))
		if ac.Registration != "" || ac.TypeCode != "" {
			text += fmt.Sprintf("[gray]Reg:[-]  [white]%s[-]  [gray]Type:[-] [white]%s[-]\n", ac.Registration, ac.TypeCode)
		}
		text += fmt.Sprintf("[gray]Alt:[-]  [white]%.0f ft[-]  [gray]Spd:[-] [white]%.0f kts[-]\n", ac.Altitude, ac.GroundSpeed)
		text += fmt.Sprintf("[gray]Trk:[-]  [white]%.0f°[-]  [gray]Dist:[-] [white]%.1f km %s[-]\n", ac.Track, s.DistanceKm, s.Direction)
		text += fmt.Sprintf("[gray]Look:[-] [white]%.0f° up, %.0f° az[-]\n", s.Elevation, s.Bearing)
		if s.Approaching && s.TimeToClosest > 0 {
			text += fmt.Sprintf("[gray]Closest in:[-] [white]%s[-]\n", s.TimeToClosest.Round(time.Second))
		}
	} else {
		text += "[gray]No aircraft selected[-]\n"
	}

	text += "\n"
	if c.checked {
		r := c.result
		text += fmt.Sprintf("[yellow]OBSERVER:[-] [white]%.4f°, %.4f°[-]\n", r.Location.Latitude, r.Location.Longitude)
		text += fmt.Sprintf("[gray]Radius:[-] [white]%.0f km[-]\n", r.RadiusKm)
		text += fmt.Sprintf("[gray]Checked:[-] [white]%s[-]\n", r.CheckedAt.Format("15:04:05"))
		if r.Throttled {
			text += fmt.Sprintf("[yellow]Throttled[-], retry in %s\n", r.RetryIn.Round(time.Second))
		}
		if r.Error != "" {
			text += fmt.Sprintf("[red]%s[-]\n", tview.Escape(r.Error))
		}
	} else {
		text += "[gray]Waiting for first check[-]\n"
	}
	text += fmt.Sprintf("[gray]Poll:[-] [white]every %s[-]\n", c.cfg.Pipeline.PollInterval())

	c.telemetry.SetText(text)
}

func (c *Console) updateCache() {
	st := c.cfg.Cache.Stats()
	var b strings.Builder
	fmt.Fprintf(&b, "[gray]Entries:[-] [white]%d[-] [gray](%d in memory)[-]\n", st.Entries, st.InMemory)
	fmt.Fprintf(&b, "[gray]Hits:[-] [white]%d[-]  [gray]Misses:[-] [white]%d[-]  [gray]Ratio:[-] [white]%.0f%%[-]\n",
		st.Hits, st.Misses, st.HitRatio*100)
	fmt.Fprintf(&b, "[gray]Sets:[-] [white]%d[-]  [gray]Evicted:[-] [white]%d[-]\n\n", st.Sets, st.Evictions)
	for _, k := range c.cfg.Cache.Keys() {
		fmt.Fprintf(&b, "%s\n", tview.Escape(k))
	}

	notified := c.cfg.Throttle.Notified()
	fmt.Fprintf(&b, "\n[yellow]NOTIFIED:[-] [white]%d[-]\n", len(notified))
	if last := c.cfg.Throttle.LastDelivered(); !last.IsZero() {
		fmt.Fprintf(&b, "[gray]Last sent:[-] [white]%s[-]\n", last.Format("15:04:05"))
	}
	c.cacheView.SetText(b.String())
}

func (c *Console) updateHistory() {
	var b strings.Builder
	for _, n := range c.cfg.History.Recent(20) {
		fmt.Fprintf(&b, "[gray]%s[-] [green]%s[-]\n", n.CreatedAt.Format("15:04:05"), tview.Escape(n.Title))
		if n.Body != "" {
			fmt.Fprintf(&b, "  %s\n", tview.Escape(strings.ReplaceAll(n.Body, "\n", "\n  ")))
		}
	}
	if b.Len() == 0 {
		b.WriteString("[gray]None yet[-]")
	}
	c.history.SetText(b.String())
}

func (c *Console) refreshPanels() {
	c.updateTelemetry()
	c.updateCache()
	c.updateHistory()
}

// updateLoop redraws from the pipeline's latest result until ctx ends.
func (c *Console) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Refresh)
	defer ticker.Stop()

	for {
		res, _ := c.cfg.Pipeline.Last()
		c.tviewApp.QueueUpdateDraw(func() {
			if res.CheckedAt.After(c.result.CheckedAt) {
				c.setResult(res)
			}
			c.refreshPanels()
		})

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run shows the console until the user quits or ctx is cancelled. The
// pipeline is expected to be polling on its own; the console only reads
// its latest result and triggers extra checks.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx

	go c.updateLoop(ctx)
	go func() {
		<-ctx.Done()
		c.tviewApp.Stop()
	}()

	c.logs.Info("console started")
	if err := c.tviewApp.Run(); err != nil {
		return fmt.Errorf("failed to run console: %w", err)
	}
	return nil
}
