package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/seenimoa/yausma/internal/datasource"
	"github.com/seenimoa/yausma/pkg/models"
	"github.com/seenimoa/yausma/pkg/utils"
)

var (
	upColor    = lipgloss.Color("#10B981")
	downColor  = lipgloss.Color("#EF4444")
	mutedColor = lipgloss.Color("#6B7280")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9CA3AF"))
	upStyle     = lipgloss.NewStyle().Foreground(upColor)
	downStyle   = lipgloss.NewStyle().Foreground(downColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	panelStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1)

	rule = strings.Repeat("═", 39)
)

// column widths for the overview table
const (
	colSymbol = 10
	colName   = 24
	colPrice  = 14
	colChange = 9
	colVolume = 9
)

func renderOverview(ov *datasource.Overview) string {
	records := ov.Records
	var b strings.Builder
	b.WriteString(titleStyle.Render("Market Overview"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(utils.MarketStatus()))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(
		pad("SYMBOL", colSymbol) + pad("NAME", colName) +
			padLeft("PRICE", colPrice) + padLeft("CHG", colChange) + padLeft("VOL", colVolume)))
	b.WriteString("\n")

	for _, r := range records {
		change := padLeft(utils.FormatPct(r.ChangePct), colChange)
		switch {
		case r.ChangePct > 0:
			change = upStyle.Render(change)
		case r.ChangePct < 0:
			change = downStyle.Render(change)
		}
		b.WriteString(pad(r.Symbol, colSymbol))
		b.WriteString(pad(truncate(r.Name, colName-1), colName))
		b.WriteString(padLeft(utils.FormatUSD(r.Price), colPrice))
		b.WriteString(change)
		b.WriteString(padLeft(utils.FormatVolume(r.Volume), colVolume))
		b.WriteString("\n")
		if r.NewsItem != nil {
			b.WriteString(mutedStyle.Render("  └ " + truncate(r.NewsItem.Title, colName+colPrice+colChange+colVolume)))
			b.WriteString("\n")
		}
	}
	for _, f := range ov.Failures {
		b.WriteString(downStyle.Render(fmt.Sprintf("%s failed (%s): %s", f.Symbol, f.Step, f.Error)))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(fmt.Sprintf("%s symbols", utils.FormatInt(int64(len(records))))))
	return panelStyle.Render(b.String())
}

func renderNews(items []models.NewsItem) string {
	if len(items) == 0 {
		return mutedStyle.Render("No news.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Latest News"))
	b.WriteString("\n")
	for i, n := range items {
		b.WriteString("\n")
		b.WriteString(n.Title)
		b.WriteString("\n")
		meta := n.Publisher
		if !n.PublishedAt.IsZero() {
			meta += " · " + n.PublishedAt.In(utils.Eastern).Format("Jan 2 15:04 MST")
		}
		b.WriteString(mutedStyle.Render(meta))
		if n.SourceURL != "" {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render(n.SourceURL))
		}
		if i < len(items)-1 {
			b.WriteString("\n")
		}
	}
	return panelStyle.Render(b.String())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func pad(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s
}

func padLeft(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return strings.Repeat(" ", n-w) + s
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
