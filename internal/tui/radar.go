package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// Character cells are about twice as tall as wide
const aspectRatio = 0.5

var (
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ringStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	observerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	blipStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	newStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	cardinalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// radarToScreen converts a position to a cell of a width x height radar
// centered on center and spanning radiusKm. ok is false when the position
// falls outside the radar.
func radarToScreen(center, pos coordinates.Geographic, radiusKm float64, width, height int) (x, y int, ok bool) {
	distanceKm := coordinates.DistanceKilometers(center, pos)
	if distanceKm > radiusKm || radiusKm <= 0 {
		return 0, 0, false
	}
	bearing := coordinates.Bearing(center, pos) * coordinates.DegreesToRadians

	centerX := width / 2
	centerY := height / 2
	scale := screenRadius(width, height) / radiusKm

	// Bearing 0 is up, screen Y grows downward
	screenDist := distanceKm * scale
	x = centerX + int(math.Round(screenDist*math.Sin(bearing)/aspectRatio))
	y = centerY - int(math.Round(screenDist*math.Cos(bearing)))

	if x < 0 || x >= width || y < 0 || y >= height {
		return 0, 0, false
	}
	return x, y, true
}

// screenRadius is the radar radius in rows, fitted to the smaller axis.
func screenRadius(width, height int) float64 {
	ry := float64(height/2 - 1)
	rx := float64(width/2-1) * aspectRatio
	return math.Max(1, math.Min(rx, ry))
}

// renderRadar draws the radar for the model's current projections.
func (m Model) renderRadar(width, height int) string {
	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	centerX, centerY := width/2, height/2
	r := screenRadius(width, height)

	// Rings at half and full radius
	for _, frac := range []float64{0.5, 1.0} {
		for deg := 0; deg < 360; deg += 3 {
			rad := float64(deg) * coordinates.DegreesToRadians
			x := centerX + int(math.Round(r*frac*math.Sin(rad)/aspectRatio))
			y := centerY - int(math.Round(r*frac*math.Cos(rad)))
			if x >= 0 && x < width && y >= 0 && y < height {
				grid[y][x] = '·'
			}
		}
	}

	top := centerY - int(r)
	bottom := centerY + int(r)
	left := centerX - int(r/aspectRatio)
	right := centerX + int(r/aspectRatio)
	if top >= 0 {
		grid[top][centerX] = 'N'
	}
	if bottom < height {
		grid[bottom][centerX] = 'S'
	}
	if left >= 0 {
		grid[centerY][left] = 'W'
	}
	if right < width {
		grid[centerY][right] = 'E'
	}
	grid[centerY][centerX] = '+'

	selected := m.selectedID()
	for _, b := range m.blips() {
		x, y, ok := radarToScreen(m.location, b.position, m.radiusKm, width, height)
		if !ok {
			continue
		}
		switch {
		case b.id == selected:
			grid[y][x] = '◉'
		case b.fresh:
			grid[y][x] = '●'
		default:
			grid[y][x] = '○'
		}
	}

	var sb strings.Builder
	sb.WriteString(borderStyle.Render("┌" + strings.Repeat("─", width) + "┐"))
	sb.WriteString("\n")
	for _, row := range grid {
		sb.WriteString(borderStyle.Render("│"))
		for _, c := range row {
			switch c {
			case '+':
				sb.WriteString(observerStyle.Render(string(c)))
			case '◉':
				sb.WriteString(selectedStyle.Render(string(c)))
			case '●':
				sb.WriteString(newStyle.Render(string(c)))
			case '○':
				sb.WriteString(blipStyle.Render(string(c)))
			case 'N', 'E', 'S', 'W':
				sb.WriteString(cardinalStyle.Render(string(c)))
			case '·':
				sb.WriteString(ringStyle.Render(string(c)))
			default:
				sb.WriteRune(c)
			}
		}
		sb.WriteString(borderStyle.Render("│"))
		sb.WriteString("\n")
	}
	sb.WriteString(borderStyle.Render("└" + strings.Repeat("─", width) + "┘"))
	return sb.String()
}
