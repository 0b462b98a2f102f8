package captions

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-transcript/errors"
)

// MetadataSource fetches the raw metadata document of a video, from which
// the caption-track list is extracted.
type MetadataSource interface {
	Name() string
	FetchMetadata(ctx context.Context, videoID string) ([]byte, error)
}

// PayloadFetcher fetches the timed-text payload of a caption track.
type PayloadFetcher interface {
	FetchTimedText(ctx context.Context, sourceURL string) ([]byte, error)
}

type Config struct {
	DefaultLanguage string
	Fallback        FallbackPolicy
	StripMarkup     bool
	Logger          *logrus.Logger
}

// Retriever fetches and parses the transcript of a video. It holds no
// per-request state and is safe for concurrent use.
type Retriever struct {
	sources  []MetadataSource
	fetcher  PayloadFetcher
	resolver *Resolver
	parser   *Parser
	lang     string
	log      *logrus.Logger
}

// Result is a transcript together with the track it came from.
type Result struct {
	VideoID    string     `json:"video_id"`
	Language   string     `json:"language"`
	Track      Track      `json:"track"`
	Match      string     `json:"match"`
	Source     string     `json:"source"`
	Transcript Transcript `json:"transcript"`
}

// NewRetriever builds a Retriever that consults sources in order.
func NewRetriever(fetcher PayloadFetcher, cfg Config, sources ...MetadataSource) *Retriever {
	lang := strings.TrimSpace(cfg.DefaultLanguage)
	if lang == "" {
		lang = "en"
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Retriever{
		sources:  sources,
		fetcher:  fetcher,
		resolver: NewResolver(cfg.Fallback),
		parser:   NewParser(cfg.StripMarkup),
		lang:     lang,
		log:      log,
	}
}

// DefaultLanguage is the language used when a call names none.
func (r *Retriever) DefaultLanguage() string {
	return r.lang
}

// GetTranscript returns the cues of the track selected for lang.
func (r *Retriever) GetTranscript(ctx context.Context, videoID, lang string) (Transcript, error) {
	res, err := r.Retrieve(ctx, videoID, lang)
	if err != nil {
		return nil, err
	}
	return res.Transcript, nil
}

// Retrieve fetches the metadata, resolves a track, then fetches and parses
// its payload. Failures are returned as they are; there are no retries.
func (r *Retriever) Retrieve(ctx context.Context, videoID, lang string) (*Result, error) {
	const op = "captions.Retrieve"

	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, errors.InvalidInput(op, nil, "video ID is required")
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = r.lang
	}

	start := time.Now()
	log := r.log.WithFields(logrus.Fields{
		"video_id": videoID,
		"language": lang,
	})

	catalog, source, err := r.catalog(ctx, videoID)
	if err != nil {
		return nil, err
	}

	track, match, err := r.resolver.ResolveMatch(catalog, lang)
	if err != nil {
		log.WithField("available", catalog.Languages()).Debug("No track resolved")
		return nil, err
	}
	if match == MatchAnyTrack {
		log.WithField("track", track.Key()).Warn("Requested language unavailable, using first track")
	}

	payload, err := r.fetcher.FetchTimedText(ctx, track.SourceURL)
	if err != nil {
		return nil, err
	}

	transcript, err := r.parser.Parse(payload)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"track":    track.Key(),
		"match":    match.String(),
		"source":   source,
		"cues":     len(transcript),
		"duration": time.Since(start),
	}).Debug("Transcript retrieved")

	return &Result{
		VideoID:    videoID,
		Language:   track.LanguageCode,
		Track:      track,
		Match:      match.String(),
		Source:     source,
		Transcript: transcript,
	}, nil
}

// ListTracks returns the caption catalog of a video without fetching any
// payload.
func (r *Retriever) ListTracks(ctx context.Context, videoID string) (*Catalog, error) {
	const op = "captions.ListTracks"

	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, errors.InvalidInput(op, nil, "video ID is required")
	}
	catalog, _, err := r.catalog(ctx, videoID)
	return catalog, err
}

// catalog asks each source in turn. A source is skipped when it fails or
// finds no tracks; the first non-empty catalog wins. When none has tracks,
// a source failure outranks an empty catalog.
func (r *Retriever) catalog(ctx context.Context, videoID string) (*Catalog, string, error) {
	const op = "captions.catalog"

	if len(r.sources) == 0 {
		return nil, "", errors.Internal(op, nil, "no metadata source configured")
	}

	var lastErr error
	var empty *Catalog
	var emptySource string
	for _, src := range r.sources {
		if err := ctx.Err(); err != nil {
			return nil, "", errors.UpstreamUnavailable(op, err, "request cancelled")
		}

		payload, err := src.FetchMetadata(ctx, videoID)
		if err == nil {
			var catalog *Catalog
			catalog, err = BuildCatalog(payload)
			if err == nil {
				if !catalog.IsEmpty() {
					return catalog, src.Name(), nil
				}
				if empty == nil {
					empty, emptySource = catalog, src.Name()
				}
				continue
			}
		}

		lastErr = err
		r.log.WithError(err).WithFields(logrus.Fields{
			"video_id": videoID,
			"source":   src.Name(),
		}).Debug("Metadata source failed")
	}

	if lastErr != nil {
		return nil, "", lastErr
	}
	return empty, emptySource, nil
}
