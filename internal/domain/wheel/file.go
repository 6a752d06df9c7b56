package wheel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FileExtension is appended to exported wheel files.
const FileExtension = ".wheel"

// DecodeFile parses an uploaded .json or .wheel file. On any error the
// caller's current configuration must be left as it was; DecodeFile never
// returns a partial result.
func DecodeFile(name string, data []byte) (Configuration, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".json" && ext != FileExtension {
		return Configuration{}, fmt.Errorf("%w: unsupported extension %q", ErrInvalidWheelFile, ext)
	}
	return DecodeConfiguration(data)
}

// DecodeConfiguration parses and validates a JSON wheel configuration.
func DecodeConfiguration(data []byte) (Configuration, error) {
	var cfg Configuration
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidWheelFile, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Configuration{}, fmt.Errorf("%w: trailing data after configuration", ErrInvalidWheelFile)
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Validate checks the invariants every stored configuration must hold.
func (c Configuration) Validate() error {
	for i, e := range c.Entries {
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%w: entry %d has empty text", ErrInvalidWheelFile, i)
		}
	}
	if n := c.SliceCount(); n > MaxSlices {
		return fmt.Errorf("%w: %d slices exceeds the limit of %d", ErrInvalidWheelFile, n, MaxSlices)
	}
	return nil
}

// EncodeFile renders cfg as pretty-printed JSON and derives a filename from
// its title.
func EncodeFile(cfg Configuration) (string, []byte, error) {
	if cfg.Entries == nil {
		cfg.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode wheel: %w", err)
	}
	return FileName(cfg.Title), data, nil
}

// FileName turns a wheel title into a safe download name.
func FileName(title string) string {
	slug := slugify(title)
	if slug == "" {
		slug = "wheel"
	}
	return slug + FileExtension
}

func slugify(s string) string {
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripAccents, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
