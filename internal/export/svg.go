// Package export renders stored runs for viewing outside the terminal.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/elevsim/internal/metrics"
)

// Trace is one line of a plot.
type Trace struct {
	Label  string
	Color  string
	Values func(metrics.Sample) float64
}

// HeightTraces are the default plot: where the carriage was and where the
// profile wanted it.
var HeightTraces = []Trace{
	{Label: "height", Color: "#ffcc00", Values: func(s metrics.Sample) float64 { return s.Height }},
	{Label: "setpoint", Color: "#00ff88", Values: func(s metrics.Sample) float64 { return s.Setpoint }},
}

// RunToSVG draws traces against sample time. The y range covers every
// trace with 10% padding.
func RunToSVG(w io.Writer, samples []metrics.Sample, traces []Trace, width, height int) error {
	if len(samples) < 2 {
		return fmt.Errorf("need at least 2 samples, got %d", len(samples))
	}

	minX, maxX := samples[0].Time, samples[len(samples)-1].Time
	minY, maxY := traces[0].Values(samples[0]), traces[0].Values(samples[0])
	for _, tr := range traces {
		for _, s := range samples {
			v := tr.Values(s)
			minY = min(minY, v)
			maxY = max(maxY, v)
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeY = maxY - minY

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for i, tr := range traces {
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, tr.Color))
		for j, s := range samples {
			x := (s.Time - minX) / rangeX * float64(width)
			y := float64(height) - (tr.Values(s)-minY)/rangeY*float64(height)
			if j == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+14*i, tr.Color, tr.Label))
	}

	sb.WriteString(`</svg>`)
	_, err := io.WriteString(w, sb.String())
	return err
}
