// package ui renders affinity results and listener stats for the terminal
// with [lipgloss] styles
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/soulmate/internal/affinity"
)

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title  lipgloss.Style
	score  lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	accent lipgloss.Style
	faint  lipgloss.Style
}

var styles = NewPalette("#1DB954", "#7D56F4", "#FFFFFF", "#04B575", "#626262")

func NewPalette(brand, score, value, accent, faint string) *Palette {
	return &Palette{
		title:  NewBold(brand).MarginBottom(1),
		score:  NewBold(score),
		label:  NewStyle(faint),
		value:  NewStyle(value),
		accent: NewBold(accent),
		faint:  NewEm(faint),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

const barWidth = 25

// bar renders a percentage as a fixed-width meter.
func bar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

// RenderResult formats an affinity result as a terminal card.
func RenderResult(target string, result *affinity.Result) string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Affinity with %s", target)))
	b.WriteString("\n")
	b.WriteString(styles.score.Render(fmt.Sprintf("%d / 100", result.Score)))
	b.WriteString("\n\n")

	metrics := []struct {
		name  string
		value float64
	}{
		{"Artists", result.Metrics.ArtistSimilarity},
		{"Genres", result.Metrics.GenreSimilarity},
		{"Popularity", result.Metrics.PopularitySimilarity},
	}

	for _, m := range metrics {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			styles.label.Render(fmt.Sprintf("%-11s", m.name)),
			styles.accent.Render(bar(m.value)),
			styles.value.Render(fmt.Sprintf("%5.1f%%", m.value)),
		))
	}

	if len(result.CommonArtists) > 0 {
		b.WriteString("\n")
		b.WriteString(styles.label.Render("Shared artists: "))
		names := make([]string, 0, len(result.CommonArtists))
		for _, artist := range result.CommonArtists {
			names = append(names, artist.Name)
		}
		b.WriteString(styles.value.Render(strings.Join(names, ", ")))
		b.WriteString("\n")
	}

	if len(result.CommonGenres) > 0 {
		b.WriteString(styles.label.Render("Shared genres:  "))
		b.WriteString(styles.value.Render(strings.Join(result.CommonGenres, ", ")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styles.faint.Render(result.Analysis))
	b.WriteString("\n")

	return b.String()
}

// RenderStats formats listener statistics.
func RenderStats(stats affinity.Stats) string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Your listening profile"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", styles.label.Render("Top artists:   "), styles.value.Render(fmt.Sprintf("%d", stats.ArtistCount))))
	b.WriteString(fmt.Sprintf("%s %s\n", styles.label.Render("Distinct genres:"), styles.value.Render(fmt.Sprintf("%d", stats.GenreCount))))
	b.WriteString(fmt.Sprintf("%s %s\n", styles.label.Render("Variety:       "), styles.accent.Render(stats.Variety)))
	b.WriteString(fmt.Sprintf("%s %s\n", styles.label.Render("Diversity:     "), styles.value.Render(fmt.Sprintf("%.2f", stats.Diversity))))

	return b.String()
}
