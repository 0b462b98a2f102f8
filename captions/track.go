// Package captions discovers the caption tracks of a video, picks one for a
// requested language and turns its timed-text payload into cues.
package captions

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// TrackKind tells human-authored tracks apart from speech-recognition ones.
type TrackKind int

const (
	KindManual TrackKind = iota
	KindGenerated
)

func (k TrackKind) String() string {
	if k == KindGenerated {
		return "generated"
	}
	return "manual"
}

func (k TrackKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TrackKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "manual", "":
		*k = KindManual
	case "generated", "asr":
		*k = KindGenerated
	default:
		return fmt.Errorf("captions: unknown track kind %q", text)
	}
	return nil
}

// Track is one fetchable caption stream.
type Track struct {
	LanguageCode string    `json:"language_code"`
	Kind         TrackKind `json:"kind"`
	SourceURL    string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Translatable bool      `json:"translatable"`
}

// Key is the exact lookup key of the track: the language code, with an
// "__asr" suffix for generated tracks.
func (t Track) Key() string {
	return ExactKey(t.LanguageCode, t.Kind)
}

// Cue is one timed unit of text. Start and Duration are in seconds.
type Cue struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the time at which the cue stops being displayed.
func (c Cue) End() float64 {
	return c.Start + c.Duration
}

// Transcript is an ordered cue sequence, in payload order.
type Transcript []Cue

// Text joins the cue texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t))
	for _, cue := range t {
		if s := strings.TrimSpace(cue.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

const generatedSuffix = "__asr"

// ExactKey returns the catalog key for a language code and track kind.
func ExactKey(code string, kind TrackKind) string {
	code = CanonicalLanguage(code)
	if kind == KindGenerated {
		return code + generatedSuffix
	}
	return code
}

// CanonicalLanguage normalizes the case and separators of a language code so
// that "en-us", "EN_US" and "en-US" compare equal. Codes that do not parse as
// a language tag are lowercased.
func CanonicalLanguage(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if code == "" {
		return ""
	}
	if tag, err := language.Raw.Parse(code); err == nil {
		return tag.String()
	}
	return strings.ToLower(code)
}

// BaseLanguage derives the primary language subtag of code, dropping script
// and region: "en-US" and "en_GB" become "en", "zh-Hant-TW" becomes "zh".
func BaseLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	// Raw keeps legacy codes such as "iw" intact; the platform still uses them.
	if tag, err := language.Raw.Parse(code); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	primary, _, _ := strings.Cut(strings.ReplaceAll(code, "_", "-"), "-")
	return strings.ToLower(primary)
}
