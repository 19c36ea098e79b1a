package render

import (
	"html"
	"strconv"
	"strings"

	"github.com/livetemplate/colorplay/internal/runtime"
)

// Swatches renders color groups as swatch bars.
//
// Consecutive plain color groups share one bar. A row always gets a bar of
// its own, as does every steps or ramp gradient. Steps use hard stops at
// equal percentages, ramps interpolate smoothly between their colors.
func Swatches(groups []runtime.ColorGroup) string {
	var (
		b      strings.Builder
		values []string
		bar    bool
	)
	flush := func() {
		b.WriteString(`<div class="swatch-bar">`)
		b.WriteString(strings.Join(values, " "))
		b.WriteString(`</div>`)
		values = nil
	}

	for _, g := range groups {
		switch g.Kind {
		case runtime.GroupSteps, runtime.GroupRamp:
			if bar {
				flush()
			}
			b.WriteString(`<div class="swatch-bar"><span class="swatch swatch-gradient">`)
			b.WriteString(`<span class="swatch-color" style="--swatch-stops: `)
			b.WriteString(html.EscapeString(strings.Join(gradientStops(g), ",")))
			b.WriteString(`"></span></span></div>`)
			bar = false

		default:
			row := g.Kind == runtime.GroupRow
			if row {
				if bar && len(values) > 0 {
					flush()
				}
				bar = false
			}
			bar = true
			for _, c := range g.Colors {
				values = append(values, swatch(c))
			}
			if row && len(values) > 0 {
				flush()
				bar = false
			}
		}
	}
	if bar {
		flush()
	}
	return b.String()
}

func gradientStops(g runtime.ColorGroup) []string {
	var stops []string
	if g.Kind == runtime.GroupSteps && len(g.Colors) > 0 {
		total := len(g.Colors)
		percent := 100 / float64(total)
		last, current := 0.0, percent
		for i, c := range g.Colors {
			stops = append(stops, c.CSS+" "+formatPercent(last), c.CSS+" "+formatPercent(current))
			last = current
			if i < total-1 {
				current += percent
			} else {
				current = 100
			}
		}
	} else {
		for _, c := range g.Colors {
			stops = append(stops, c.CSS)
		}
	}

	switch len(stops) {
	case 0:
		stops = []string{"transparent", "transparent"}
	case 1:
		stops = append(stops, stops[0])
	}
	return stops
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func swatch(c runtime.Color) string {
	classes := "swatch"
	if !c.InGamut {
		classes += " out-of-gamut"
	}
	style := "--swatch-stops: " + c.CSSOpaque + " 50%, " + c.CSS + " 50%"
	return `<span class="` + classes + `" title="` + html.EscapeString(c.String) + `&#013;Copy to clipboard">` +
		`<span class="swatch-color" style="` + html.EscapeString(style) + `"></span></span>`
}
