package monitor

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// identityColours returns n evenly spaced, fully opaque hues.
func identityColours(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colours := make([]color.Color, n)
	for i := range colours {
		c := colorful.Hsv(360*float64(i)/float64(n), 0.7, 0.85)
		r, g, b := c.RGB255()
		colours[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colours
}

// hexColour formats c as a CSS hex colour.
func hexColour(c color.Color) string {
	cf, _ := colorful.MakeColor(c)
	return cf.Hex()
}
