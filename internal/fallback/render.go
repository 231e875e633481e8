package fallback

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// dimensions scales the aspect ratio so its long side equals longSide.
func dimensions(aspect string, longSide int) (int, int) {
	a, b := 1, 1
	if left, right, ok := strings.Cut(strings.TrimSpace(aspect), ":"); ok {
		x, errX := strconv.Atoi(strings.TrimSpace(left))
		y, errY := strconv.Atoi(strings.TrimSpace(right))
		if errX == nil && errY == nil && x > 0 && y > 0 {
			a, b = x, y
		}
	}
	if a >= b {
		return longSide, evenAtLeast(longSide*b/a, 2)
	}
	return evenAtLeast(longSide*a/b, 2), longSide
}

func evenAtLeast(v, min int) int {
	if v < min {
		v = min
	}
	return v &^ 1
}

// renderFrame paints the seeded placeholder. offset shifts the stripes so
// successive frames animate; frame zero doubles as the still image.
func renderFrame(width, height int, seed string, offset int) *image.NRGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	stripeHeight := max(8, height/12)
	period := stripeHeight * 2
	shift := offset % period
	for y := -period + shift; y < height; y += period {
		stripe := image.Rect(0, max(0, y), width, min(height, y+stripeHeight))
		if stripe.Empty() {
			continue
		}
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	step := max(16, width/32)
	for x := 0; x < max(width, height); x += step {
		for y := 0; y < height; y++ {
			xx := x + y
			if xx >= width {
				break
			}
			img.Set(xx, y, diagonal)
		}
	}

	return imaging.Blur(img, 1.2)
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: parseHexByte(segment[0:2]),
		G: parseHexByte(segment[2:4]),
		B: parseHexByte(segment[4:6]),
		A: 255,
	}
}

func parseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}
