package captions

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nijaru/yt-transcript/errors"
)

// Parser turns timed-text XML into a Transcript. The zero value is ready to
// use and keeps cue text exactly as decoded.
type Parser struct {
	// StripMarkup removes inline HTML (<font>, <i>, ...) that some tracks
	// carry escaped inside cue text, and unescapes what is left.
	StripMarkup bool

	policy *bluemonday.Policy
}

func NewParser(stripMarkup bool) *Parser {
	p := &Parser{StripMarkup: stripMarkup}
	if stripMarkup {
		p.policy = bluemonday.StrictPolicy()
	}
	return p
}

// ParseTimedText parses payload with the default Parser.
func ParseTimedText(payload []byte) (Transcript, error) {
	var p Parser
	return p.Parse(payload)
}

// Parse returns one cue per text element, in document order. A payload that
// is not well-formed XML, or any cue with a missing, non-numeric or negative
// start or dur attribute, fails the whole call. A document without text
// elements yields an empty transcript.
func (p *Parser) Parse(payload []byte) (Transcript, error) {
	const op = "captions.Parse"

	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errors.Parse(op, nil, "empty timed-text payload")
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	cues := Transcript{}
	sawRoot := false
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Parse(op, err, "malformed timed-text payload")
		}

		switch t := tok.(type) {
		case xml.EndElement:
			depth--
			continue
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return nil, errors.Parse(op, nil, "text outside the root element")
			}
			continue
		case xml.StartElement:
			if depth == 0 {
				if sawRoot {
					return nil, errors.Parse(op, nil, "more than one root element")
				}
				sawRoot = true
			}
			if t.Name.Local != "text" {
				depth++
				continue
			}
			// readCue consumes the matching end element.
			cue, err := p.readCue(dec, t)
			if err != nil {
				return nil, errors.Parse(op, err, fmt.Sprintf("invalid cue %d", len(cues)+1))
			}
			cues = append(cues, cue)
		}
	}

	if !sawRoot {
		return nil, errors.Parse(op, nil, "timed-text payload has no root element")
	}
	return cues, nil
}

func (p *Parser) readCue(dec *xml.Decoder, se xml.StartElement) (Cue, error) {
	start, err := secondsAttr(se, "start")
	if err != nil {
		return Cue{}, err
	}
	dur, err := secondsAttr(se, "dur")
	if err != nil {
		return Cue{}, err
	}

	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return Cue{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			b.Write(t)
		}
	}

	return Cue{Text: p.clean(b.String()), Start: start, Duration: dur}, nil
}

func (p *Parser) clean(text string) string {
	if !p.StripMarkup {
		return text
	}
	policy := p.policy
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	return html.UnescapeString(policy.Sanitize(text))
}

func secondsAttr(se xml.StartElement, name string) (float64, error) {
	for _, attr := range se.Attr {
		if attr.Name.Local != name {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(attr.Value), 64)
		if err != nil {
			return 0, fmt.Errorf("attribute %s=%q is not a number", name, attr.Value)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return 0, fmt.Errorf("attribute %s=%q is out of range", name, attr.Value)
		}
		return v, nil
	}
	return 0, fmt.Errorf("missing %s attribute", name)
}
