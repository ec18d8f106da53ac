package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

const iconSize = 22

var iconBytes = renderIcon()

// renderIcon draws a waveform glyph: vertical bars of varying height.
func renderIcon() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	bar := color.NRGBA{R: 0x4f, G: 0x9d, B: 0xde, A: 0xff}
	heights := []int{6, 12, 18, 10, 16, 8, 14, 4, 10}
	for i, h := range heights {
		x := 1 + i*2 + i/3
		top := (iconSize - h) / 2
		for y := top; y < top+h; y++ {
			img.SetNRGBA(x, y, bar)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
