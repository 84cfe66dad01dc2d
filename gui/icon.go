//go:build gui

package gui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// trayIcon draws a 22px candle flame for the system tray.
func trayIcon() []byte {
	const size = 22
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	center := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) - center + 0.5
			// Flame: a circle stretched upwards above the wick.
			dy := float64(y) - 8
			if dy < 0 {
				dy /= 2
			}
			dist := math.Sqrt(dx*dx + dy*dy)

			switch {
			case dist < 2:
				img.Set(x, y, color.RGBA{255, 235, 90, 255})
			case dist < 4:
				t := (dist - 2) / 2
				img.Set(x, y, color.RGBA{255, uint8(200 - t*80), 0, 255})
			case y >= 13 && math.Abs(dx) < 3:
				img.Set(x, y, color.RGBA{135, 205, 255, 255})
			}
		}
	}

	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
