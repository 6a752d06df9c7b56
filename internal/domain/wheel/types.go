// Package wheel implements the weighted spin-selector behind the raffle and
// theme wheels: slice expansion, palette generation, winner selection and
// the rotation geometry that lands a chosen slice under the pointer.
package wheel

import (
	"encoding/json"
	"math"
	"strings"
)

// Color is a CSS hex color, e.g. "#ff6b6b".
type Color string

// Entry is one named, weighted option before expansion into slices.
type Entry struct {
	Text    string `json:"text"`
	Weight  int    `json:"weight"`
	Enabled bool   `json:"enabled"`
	Color   Color  `json:"color,omitempty"`
}

// entryWire is the loose shape accepted from files and HTTP bodies.
type entryWire struct {
	Text    string   `json:"text"`
	Weight  *float64 `json:"weight"`
	Enabled *bool    `json:"enabled"`
	Color   Color    `json:"color"`
}

// UnmarshalJSON normalizes weight and defaults enabled to true.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Text = strings.TrimSpace(w.Text)
	e.Weight = 1
	if w.Weight != nil {
		e.Weight = NormalizeWeight(*w.Weight)
	}
	e.Enabled = true
	if w.Enabled != nil {
		e.Enabled = *w.Enabled
	}
	e.Color = w.Color
	return nil
}

// NormalizeWeight maps any weight onto a repeat count of at least 1.
// Non-finite and non-positive weights become 1; others are rounded.
func NormalizeWeight(w float64) int {
	if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return 1
	}
	r := math.Round(w)
	if r < 1 {
		return 1
	}
	if r > maxSliceWeight {
		return maxSliceWeight
	}
	return int(r)
}

// maxSliceWeight caps the repeat count of a single entry.
const maxSliceWeight = 1000

// MaxSlices caps the slices a whole configuration may expand into.
const MaxSlices = 10000

// Configuration is a titled, ordered list of entries.
type Configuration struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"entries"`
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	out := Configuration{Title: c.Title}
	if c.Entries != nil {
		out.Entries = append([]Entry(nil), c.Entries...)
	}
	return out
}

// EnabledCount returns how many entries take part in the wheel.
func (c Configuration) EnabledCount() int {
	n := 0
	for _, e := range c.Entries {
		if e.Enabled {
			n++
		}
	}
	return n
}

// SliceCount returns how many slices BuildSlices would produce.
func (c Configuration) SliceCount() int {
	n := 0
	for _, e := range c.Entries {
		if e.Enabled {
			n += sliceWeight(e.Weight)
		}
	}
	return n
}

// Slice is one equal-angle wedge. EntryIndex points back into the
// configuration's Entries.
type Slice struct {
	Text       string `json:"text"`
	Color      Color  `json:"color"`
	EntryIndex int    `json:"entryIndex"`
}

// State is a snapshot of a spinner.
type State struct {
	RotationDegrees float64 `json:"rotationDegrees"`
	Spinning        bool    `json:"spinning"`
	Winner          *Slice  `json:"winner,omitempty"`
}
