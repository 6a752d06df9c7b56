package wheel

import (
	"fmt"
	"math"
)

// basePalette holds hand-picked colors used before any generated ones.
var basePalette = [...]Color{
	"#ff6b6b", "#feca57", "#48dbfb", "#1dd1a1", "#5f27cd", "#ff9ff3", "#54a0ff", "#00d2d3",
	"#ff9f43", "#10ac84", "#ee5253", "#0abde3", "#341f97", "#f368e0", "#2e86de", "#01a3a4",
	"#c8d6e5", "#576574", "#e15f41", "#3dc1d3", "#f78fb3", "#786fa6", "#f19066", "#63cdda",
	"#cf6a87", "#574b90", "#e77f67", "#3c6382", "#b8e994", "#78e08f", "#fad390", "#82ccdd",
}

const (
	goldenAngle      = 137.508
	paletteSat       = 0.65
	paletteLight     = 0.55
	paletteLightStep = 0.04
)

// PaletteFor returns n distinct colors. The first 32 come from the base
// palette; the rest are spread by golden-angle hue rotation. The result only
// depends on n.
func PaletteFor(n int) []Color {
	if n <= 0 {
		return nil
	}
	out := make([]Color, 0, n)
	used := make(map[Color]struct{}, n)
	for i := 0; i < n && i < len(basePalette); i++ {
		out = append(out, basePalette[i])
		used[basePalette[i]] = struct{}{}
	}
	for i := len(basePalette); i < n; i++ {
		hue := math.Mod(float64(i)*goldenAngle, 360)
		c := hslToHex(hue, paletteSat, paletteLight)
		// 8-bit rounding can fold two hues together; walk lightness
		// alternately down and up until the color is free.
		for step := 1; isUsed(used, c); step++ {
			offset := float64((step+1)/2) * paletteLightStep
			if step%2 == 1 {
				offset = -offset
			}
			c = hslToHex(hue, paletteSat, clamp01(paletteLight+offset))
			if step > 20 {
				c = Color(fmt.Sprintf("#%06x", uint32(i*7919+step*104729)&0xffffff))
			}
		}
		out = append(out, c)
		used[c] = struct{}{}
	}
	return out
}

func isUsed(used map[Color]struct{}, c Color) bool {
	_, ok := used[c]
	return ok
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// hslToHex converts hue in degrees and s, l in [0,1] to "#rrggbb".
func hslToHex(h, s, l float64) Color {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := l - c/2
	to8 := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return Color(fmt.Sprintf("#%02x%02x%02x", to8(r), to8(g), to8(b)))
}

// BuildSlices expands enabled entries into equal-width slices, one per unit
// of weight, colors them by label and shuffles them once so repeated labels
// do not cluster. An empty result means the wheel cannot spin.
func BuildSlices(entries []Entry, rng RandomSource) []Slice {
	if rng == nil {
		rng = DefaultRNG()
	}

	var labels []string
	seen := make(map[string]int)
	total := 0
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if _, ok := seen[e.Text]; !ok {
			seen[e.Text] = len(labels)
			labels = append(labels, e.Text)
		}
		total += sliceWeight(e.Weight)
	}
	if total == 0 {
		return []Slice{}
	}

	palette := PaletteFor(len(labels))
	slices := make([]Slice, 0, total)
	for i, e := range entries {
		if !e.Enabled {
			continue
		}
		color := palette[seen[e.Text]]
		for k := 0; k < sliceWeight(e.Weight); k++ {
			slices = append(slices, Slice{Text: e.Text, Color: color, EntryIndex: i})
		}
	}

	for i := len(slices) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		slices[i], slices[j] = slices[j], slices[i]
	}
	return slices
}

func sliceWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > maxSliceWeight {
		return maxSliceWeight
	}
	return w
}

// SelectRandomIndex picks the winning slice uniformly. The rotation is
// derived from this choice, never the other way round.
func SelectRandomIndex(sliceCount int, rng RandomSource) (int, error) {
	if sliceCount <= 0 {
		return 0, ErrNoEnabledEntries
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	return rng.IntN(sliceCount), nil
}
