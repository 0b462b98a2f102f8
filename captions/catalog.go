package captions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nijaru/yt-transcript/errors"
)

type entry struct {
	track Track
	exact bool
}

// Catalog maps lookup keys to the caption tracks of one video.
//
// Each track is inserted under its exact key (see ExactKey) and under its
// base language as an alias. Keys are first-write-wins within their class;
// an exact key may take over a key that so far only held an alias, so that
// every track with a distinct code stays reachable through its own code.
type Catalog struct {
	tracks []Track
	keys   map[string]entry
}

// NewCatalog indexes tracks in order. An empty list yields a valid, empty catalog.
func NewCatalog(tracks []Track) *Catalog {
	c := &Catalog{
		tracks: make([]Track, 0, len(tracks)),
		keys:   make(map[string]entry, len(tracks)*2),
	}
	for _, t := range tracks {
		c.add(t)
	}
	return c
}

func (c *Catalog) add(t Track) {
	c.tracks = append(c.tracks, t)

	key := t.Key()
	if existing, ok := c.keys[key]; !ok || !existing.exact {
		c.keys[key] = entry{track: t, exact: true}
	}

	base := BaseLanguage(t.LanguageCode)
	if _, ok := c.keys[base]; !ok && base != "" {
		c.keys[base] = entry{track: t}
	}
}

// Len returns the number of tracks the catalog was built from.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tracks)
}

func (c *Catalog) IsEmpty() bool {
	return c.Len() == 0
}

// Tracks returns every source track in source order.
func (c *Catalog) Tracks() []Track {
	if c == nil {
		return nil
	}
	out := make([]Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Lookup returns the track stored under key, whether exact or alias.
func (c *Catalog) Lookup(key string) (Track, bool) {
	if c == nil {
		return Track{}, false
	}
	e, ok := c.keys[key]
	return e.track, ok
}

// LookupExact returns the track stored under key only if key is the
// track's own exact key.
func (c *Catalog) LookupExact(key string) (Track, bool) {
	if c == nil {
		return Track{}, false
	}
	e, ok := c.keys[key]
	if !ok || !e.exact {
		return Track{}, false
	}
	return e.track, true
}

// First returns the first-inserted track.
func (c *Catalog) First() (Track, bool) {
	if c.IsEmpty() {
		return Track{}, false
	}
	return c.tracks[0], true
}

// Keys lists every lookup key in sorted order.
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Languages lists the distinct language codes of the catalog in source order.
func (c *Catalog) Languages() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(c.tracks))
	var langs []string
	for _, t := range c.tracks {
		if !seen[t.LanguageCode] {
			seen[t.LanguageCode] = true
			langs = append(langs, t.LanguageCode)
		}
	}
	return langs
}

const captionTracksField = `"captionTracks":`

type trackDescriptor struct {
	LanguageCode   string          `json:"languageCode"`
	Kind           string          `json:"kind"`
	BaseURL        string          `json:"baseUrl"`
	Name           json.RawMessage `json:"name"`
	IsTranslatable bool            `json:"isTranslatable"`
}

type textRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

// BuildCatalog locates the caption-track list inside a video metadata
// payload and indexes it.
//
// A JSON document is read at captions.playerCaptionsTracklistRenderer.captionTracks,
// and a bare JSON array is taken as the list itself. When the structured field
// is absent, or the payload is an HTML page, the text is scanned for the
// "captionTracks" field instead. Finding no list at all yields an empty catalog.
func BuildCatalog(payload []byte) (*Catalog, error) {
	const op = "captions.BuildCatalog"

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.Parse(op, nil, "empty metadata payload")
	}

	var raw json.RawMessage
	var doc any
	if err := json.Unmarshal(trimmed, &doc); err == nil {
		switch v := doc.(type) {
		case []any:
			raw = json.RawMessage(trimmed)
		case map[string]any:
			found, present := lookupPath(v, "captions", "playerCaptionsTracklistRenderer", "captionTracks")
			if present {
				if _, ok := found.([]any); !ok {
					return nil, errors.Parse(op, nil, "captionTracks is not a list")
				}
				b, err := json.Marshal(found)
				if err != nil {
					return nil, errors.Parse(op, err, "re-encode captionTracks list")
				}
				raw = b
			}
		default:
			return nil, errors.Parse(op, nil, "metadata payload is not a JSON object or array")
		}
	} else if trimmed[0] != '<' && !bytes.Contains(trimmed, []byte(captionTracksField)) {
		return nil, errors.Parse(op, err, "metadata payload is not valid JSON")
	}

	if raw == nil {
		scanned, err := scanCaptionTracks(trimmed)
		if err != nil {
			return nil, errors.Parse(op, err, "malformed captionTracks list")
		}
		if scanned == nil {
			return NewCatalog(nil), nil
		}
		raw = scanned
	}

	tracks, err := decodeTracks(raw)
	if err != nil {
		return nil, errors.Parse(op, err, "malformed captionTracks list")
	}
	return NewCatalog(tracks), nil
}

func lookupPath(doc map[string]any, path ...string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// scanCaptionTracks finds the first "captionTracks": field in text and
// returns the balanced JSON array that follows it. It returns nil, nil when
// the field does not occur.
func scanCaptionTracks(text []byte) (json.RawMessage, error) {
	idx := bytes.Index(text, []byte(captionTracksField))
	if idx < 0 {
		return nil, nil
	}
	rest := text[idx+len(captionTracksField):]
	start := 0
	for start < len(rest) && isSpace(rest[start]) {
		start++
	}
	if start == len(rest) || rest[start] != '[' {
		return nil, fmt.Errorf("captionTracks is not followed by an array")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return json.RawMessage(rest[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated captionTracks array")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func decodeTracks(raw json.RawMessage) ([]Track, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(items))
	for _, item := range items {
		var d trackDescriptor
		if err := json.Unmarshal(item, &d); err != nil {
			continue
		}
		code := strings.TrimSpace(d.LanguageCode)
		if code == "" || d.BaseURL == "" {
			continue
		}
		kind := KindManual
		if d.Kind == "asr" {
			kind = KindGenerated
		}
		tracks = append(tracks, Track{
			LanguageCode: code,
			Kind:         kind,
			SourceURL:    d.BaseURL,
			Name:         displayName(d.Name),
			Translatable: d.IsTranslatable,
		})
	}
	return tracks, nil
}

func displayName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name textRuns
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	if name.SimpleText != "" {
		return name.SimpleText
	}
	var b strings.Builder
	for _, r := range name.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}
