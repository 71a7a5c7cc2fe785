package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Tray icons are filled discs; the color shows the agent state.
var (
	iconData          = renderIcon(color.RGBA{0x60, 0x60, 0x60, 0xff})
	iconDataConnected = renderIcon(color.RGBA{0x2e, 0xa0, 0x43, 0xff})
	iconDataScanning  = renderIcon(color.RGBA{0x1f, 0x6f, 0xeb, 0xff})
	iconDataError     = renderIcon(color.RGBA{0xd0, 0x30, 0x30, 0xff})
)

const iconSize = 32

func renderIcon(c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	center, radius := iconSize/2, iconSize/2-2
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := x-center, y-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
