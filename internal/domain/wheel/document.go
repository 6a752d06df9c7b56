package wheel

import "fmt"

// Kind names one of a jam's wheels. Each kind has its own document and its
// own spinner.
type Kind string

const (
	// KindTheme picks the jam's theme; its winner becomes Document.Theme.
	KindTheme Kind = "theme"
	// KindRaffle draws among the jam's teams.
	KindRaffle Kind = "raffle"
)

// Kinds lists every wheel kind.
var Kinds = []Kind{KindTheme, KindRaffle}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// SetsTheme reports whether winners of this kind become the jam's theme.
func (k Kind) SetsTheme() bool { return k == KindTheme }

// Document is what a jam persists for one wheel. Theme is only written on
// the theme wheel.
type Document struct {
	Theme       *string       `json:"theme,omitempty"`
	WheelConfig Configuration `json:"wheelConfig"`
	LastWinner  *Entry        `json:"lastWinner,omitempty"`
}

// WinnerEntry maps a winning slice back to the entry it was expanded from.
func (c Configuration) WinnerEntry(s Slice) Entry {
	if s.EntryIndex >= 0 && s.EntryIndex < len(c.Entries) && c.Entries[s.EntryIndex].Text == s.Text {
		return c.Entries[s.EntryIndex]
	}
	for _, e := range c.Entries {
		if e.Text == s.Text {
			return e
		}
	}
	return Entry{Text: s.Text, Weight: 1, Enabled: true, Color: s.Color}
}
