package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"voiceassistant/pkg/session"
)

var (
	iconIdle     = circleIcon(color.NRGBA{R: 0x86, G: 0x86, B: 0x8B, A: 0xff})
	iconStarting = circleIcon(color.NRGBA{R: 0x00, G: 0x71, B: 0xE3, A: 0xff})
	iconActive   = circleIcon(color.NRGBA{R: 0xFF, G: 0x3B, B: 0x30, A: 0xff})
)

const iconSize = 22

// circleIcon renders a filled disc on a transparent square as PNG.
func circleIcon(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	center := float64(iconSize-1) / 2
	radius := float64(iconSize)/2 - 3
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-center, float64(y)-center
			if dx*dx+dy*dy <= radius*radius {
				img.SetNRGBA(x, y, c)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func stateIcon(s session.State) []byte {
	switch s {
	case session.Active:
		return iconActive
	case session.Starting, session.Stopping:
		return iconStarting
	default:
		return iconIdle
	}
}
