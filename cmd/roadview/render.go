package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/wricardo/endless-road/game/road"
)

const (
	roadTop    = 3
	roadHeight = 5
)

// canvas is the part of tcell.Screen the renderer draws on.
type canvas interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Size() (int, int)
}

var segmentColors = []tcell.Color{
	tcell.ColorSteelBlue,
	tcell.ColorDarkOliveGreen,
	tcell.ColorSlateGray,
	tcell.ColorSaddleBrown,
	tcell.ColorDarkCyan,
	tcell.ColorIndigo,
}

var (
	textStyle     = tcell.StyleDefault
	dimStyle      = tcell.StyleDefault.Foreground(tcell.ColorGray)
	boundaryStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	warnStyle     = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

// projection maps a coordinate along the travel axis to a screen column.
type projection struct {
	lo, hi float32
	width  int
}

func newProjection(state *road.RoadState, width int) projection {
	axis, _ := road.ParseAxis(state.Axis)
	lo := min(axis.Of(state.Geometry.Start), axis.Of(state.Geometry.End))
	hi := max(axis.Of(state.Geometry.Start), axis.Of(state.Geometry.End))

	// Leave room for the half segments that hang over each boundary.
	var margin float32
	for _, seg := range state.Segments {
		margin = max(margin, seg.Depth)
	}
	lo -= margin
	hi += margin
	if hi <= lo {
		hi = lo + 1
	}
	return projection{lo: lo, hi: hi, width: width}
}

// column returns the screen column of v, which may lie off screen.
func (p projection) column(v float32) int {
	if p.width <= 1 {
		return 0
	}
	return int((v - p.lo) / (p.hi - p.lo) * float32(p.width-1))
}

func drawText(c canvas, x, y int, style tcell.Style, text string) {
	width, height := c.Size()
	if y < 0 || y >= height {
		return
	}
	for _, r := range text {
		if x >= width {
			return
		}
		if x >= 0 {
			c.SetContent(x, y, r, nil, style)
		}
		x++
	}
}

// segmentLabel is the rune drawn across a segment.
func segmentLabel(seg road.SegmentState) rune {
	id := seg.ID
	if i := strings.LastIndexAny(id, "_-"); i >= 0 && i < len(id)-1 {
		id = id[i+1:]
	}
	if id == "" {
		return rune('0' + seg.Index%10)
	}
	return []rune(id)[0]
}

// render draws the header, the road strip and the status lines.
func render(c canvas, state *road.RoadState, status string) {
	width, height := c.Size()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c.SetContent(x, y, ' ', nil, textStyle)
		}
	}
	if state == nil {
		drawText(c, 0, 0, dimStyle, "waiting for road state...")
		drawText(c, 0, 1, dimStyle, status)
		return
	}

	drawText(c, 0, 0, textStyle, fmt.Sprintf("%s  frame %d  %.1fs", state.ConfigName, state.Frame, state.Elapsed))
	drawText(c, 0, 1, dimStyle, fmt.Sprintf("axis %s  speed %g  spacing %g  recycles %d",
		state.Axis, state.Speed, state.Spacing, state.TotalRecycles))

	axis, _ := road.ParseAxis(state.Axis)
	proj := newProjection(state, width)

	for _, seg := range state.Segments {
		center := axis.Of(seg.Position)
		from := proj.column(center - seg.Depth/2)
		to := proj.column(center + seg.Depth/2)
		if to <= from {
			to = from + 1
		}

		style := tcell.StyleDefault.
			Background(segmentColors[seg.Index%len(segmentColors)]).
			Foreground(tcell.ColorWhite)
		label := segmentLabel(seg)
		for x := max(from, 0); x < min(to, width); x++ {
			for y := roadTop; y < roadTop+roadHeight && y < height; y++ {
				r := ' '
				if y == roadTop+roadHeight/2 {
					r = label
				}
				c.SetContent(x, y, r, nil, style)
			}
		}
	}

	// Start and end markers sit on the lines around the strip.
	for _, marker := range []struct {
		v     float32
		label string
	}{
		{axis.Of(state.Geometry.Start), "S"},
		{axis.Of(state.Geometry.End), "E"},
	} {
		x := proj.column(marker.v)
		drawText(c, x, roadTop-1, boundaryStyle, marker.label)
		drawText(c, x, roadTop+roadHeight, boundaryStyle, "|")
	}

	line := roadTop + roadHeight + 1
	if state.Gaps != nil {
		dev := state.Gaps.MaxSeamDeviation(state.Spacing)
		style := dimStyle
		if dev > 1e-3 {
			style = warnStyle
		}
		drawText(c, 0, line, style, fmt.Sprintf("gaps: max %.3f  overlap %.3f  deviation %.4f",
			state.Gaps.MaxGap, state.Gaps.MaxOverlap, dev))
	}
	line++
	if n := len(state.RecycleHistory); n > 0 {
		last := state.RecycleHistory[n-1]
		drawText(c, 0, line, dimStyle, fmt.Sprintf("last recycle: frame %d %s -> %s of %s",
			last.Frame, last.SegmentID, last.Boundary, last.NeighborID))
	}
	line++
	if state.Message != "" {
		drawText(c, 0, line, textStyle, state.Message)
	}

	drawText(c, 0, height-1, dimStyle, status)
}
