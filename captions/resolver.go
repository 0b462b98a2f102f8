package captions

import (
	"fmt"
	"strings"

	"github.com/nijaru/yt-transcript/errors"
)

// FallbackPolicy decides what happens when no track matches the requested
// language or its base language.
type FallbackPolicy int

const (
	// FallbackAnyTrack returns the first track of the catalog.
	FallbackAnyTrack FallbackPolicy = iota
	// FallbackStrict fails with a language-not-available error.
	FallbackStrict
)

func (p FallbackPolicy) String() string {
	if p == FallbackStrict {
		return "strict"
	}
	return "any-track"
}

// Match describes which rule selected a track.
type Match int

const (
	MatchExactManual Match = iota
	MatchExactGenerated
	MatchBaseLanguage
	MatchAnyTrack
)

func (m Match) String() string {
	switch m {
	case MatchExactManual:
		return "exact"
	case MatchExactGenerated:
		return "exact-generated"
	case MatchBaseLanguage:
		return "base-language"
	default:
		return "any-track"
	}
}

type Resolver struct {
	Policy FallbackPolicy
}

func NewResolver(policy FallbackPolicy) *Resolver {
	return &Resolver{Policy: policy}
}

// Resolve selects the track for lang. The first of these wins: the manual
// track for lang, the generated track for lang, any track filed under the
// base language of lang, and, under FallbackAnyTrack, the first track.
func (r *Resolver) Resolve(catalog *Catalog, lang string) (Track, error) {
	track, _, err := r.ResolveMatch(catalog, lang)
	return track, err
}

// ResolveMatch is Resolve that also reports which rule matched.
func (r *Resolver) ResolveMatch(catalog *Catalog, lang string) (Track, Match, error) {
	const op = "captions.Resolve"

	if catalog.IsEmpty() {
		return Track{}, 0, errors.NoCaptionsAvailable(op, "no captions available for this video")
	}

	lang = strings.TrimSpace(lang)
	if lang != "" {
		if t, ok := catalog.LookupExact(ExactKey(lang, KindManual)); ok {
			return t, MatchExactManual, nil
		}
		if t, ok := catalog.LookupExact(ExactKey(lang, KindGenerated)); ok {
			return t, MatchExactGenerated, nil
		}
		if base := BaseLanguage(lang); base != "" {
			if t, ok := catalog.Lookup(base); ok {
				return t, MatchBaseLanguage, nil
			}
		}
	}

	if r == nil || r.Policy == FallbackAnyTrack {
		t, _ := catalog.First()
		return t, MatchAnyTrack, nil
	}

	return Track{}, 0, errors.LanguageNotAvailable(op, fmt.Sprintf(
		"no captions in language %q (available: %s)", lang, strings.Join(catalog.Languages(), ", ")))
}
