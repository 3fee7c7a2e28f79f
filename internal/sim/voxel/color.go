package voxel

import "strings"

// Color is a cycle's team color.
type Color uint8

const (
	White Color = iota
	Red
	Blue
	Orange
	Purple
	Green
	Yellow
	Pink
)

var colorNames = [...]string{"WHITE", "RED", "BLUE", "ORANGE", "PURPLE", "GREEN", "YELLOW", "PINK"}

var colorPanes = [...]Material{WhitePane, RedPane, BluePane, OrangePane, PurplePane, GreenPane, YellowPane, PinkPane}

var colorRGB = [...][3]uint8{
	{245, 245, 245},
	{255, 60, 60},
	{80, 120, 255},
	{255, 160, 60},
	{180, 80, 255},
	{80, 255, 120},
	{255, 255, 80},
	{255, 120, 200},
}

func Colors() []Color {
	out := make([]Color, len(colorNames))
	for i := range colorNames {
		out[i] = Color(i)
	}
	return out
}

func (c Color) String() string {
	if int(c) >= len(colorNames) {
		return colorNames[White]
	}
	return colorNames[c]
}

// Pane is the trail material drawn for this color.
func (c Color) Pane() Material {
	if int(c) >= len(colorPanes) {
		return WhitePane
	}
	return colorPanes[c]
}

func (c Color) RGB() [3]uint8 {
	if int(c) >= len(colorRGB) {
		return colorRGB[White]
	}
	return colorRGB[c]
}

// ParseColor accepts color names in any case. ok is false for unknown names.
func ParseColor(s string) (Color, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range colorNames {
		if name == s {
			return Color(i), true
		}
	}
	return White, false
}
