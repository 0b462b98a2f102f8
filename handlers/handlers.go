package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/db"
	"github.com/nijaru/yt-transcript/errors"
	"github.com/nijaru/yt-transcript/middleware"
	"github.com/nijaru/yt-transcript/utils"
	"github.com/nijaru/yt-transcript/validation"
)

const (
	defaultLookupLimit = 50
	maxLookupLimit     = 500
	recordTimeout      = 2 * time.Second
)

type Retriever interface {
	Retrieve(ctx context.Context, videoID, lang string) (*captions.Result, error)
	ListTracks(ctx context.Context, videoID string) (*captions.Catalog, error)
}

// LookupStore is the lookup log. It may be nil, in which case lookups are
// not recorded and the history endpoint answers 503.
type LookupStore interface {
	Record(ctx context.Context, l db.Lookup) (int64, error)
	Recent(ctx context.Context, limit int) ([]db.Lookup, error)
	Stats(ctx context.Context) ([]db.OutcomeCount, error)
}

type Handler struct {
	retriever Retriever
	store     LookupStore
}

func New(retriever Retriever, store LookupStore) *Handler {
	return &Handler{retriever: retriever, store: store}
}

// Register mounts the routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/transcript/{videoID}", h.Transcript)
	r.Get("/api/tracks/{videoID}", h.Tracks)
	r.Get("/api/lookups", h.Lookups)
	r.Get("/youtube-transcript/{videoID}", h.LegacyTranscript)
}

type TranscriptResponse struct {
	VideoID    string              `json:"video_id"`
	Language   string              `json:"language"`
	Kind       captions.TrackKind  `json:"kind"`
	Match      string              `json:"match"`
	Source     string              `json:"source"`
	Transcript captions.Transcript `json:"transcript"`
}

type LegacyTranscriptResponse struct {
	Transcript captions.Transcript `json:"transcript"`
}

type TracksResponse struct {
	VideoID string           `json:"video_id"`
	Tracks  []captions.Track `json:"tracks"`
}

type LookupsResponse struct {
	Lookups []db.Lookup       `json:"lookups"`
	Stats   []db.OutcomeCount `json:"stats"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Transcript serves GET /api/transcript/{videoID}?lang=xx.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	res, ok := h.retrieve(w, r)
	if !ok {
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, TranscriptResponse{
		VideoID:    res.VideoID,
		Language:   res.Track.LanguageCode,
		Kind:       res.Track.Kind,
		Match:      res.Match,
		Source:     res.Source,
		Transcript: res.Transcript,
	})
}

// LegacyTranscript serves GET /youtube-transcript/{videoID} with the bare
// {"transcript": [...]} body.
func (h *Handler) LegacyTranscript(w http.ResponseWriter, r *http.Request) {
	res, ok := h.retrieve(w, r)
	if !ok {
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, LegacyTranscriptResponse{Transcript: res.Transcript})
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request) (*captions.Result, bool) {
	ctx := r.Context()
	start := time.Now()

	videoID, err := validation.NormalizeVideoID(chi.URLParam(r, "videoID"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	lang := r.URL.Query().Get("lang")
	if err := validation.ValidateLanguage(lang); err != nil {
		h.fail(w, r, err)
		return nil, false
	}

	log := middleware.GetLogger(ctx).WithFields(logrus.Fields{
		"video_id": videoID,
		"language": lang,
	})

	res, err := h.retriever.Retrieve(ctx, videoID, lang)
	lookup := db.Lookup{
		RequestID: middleware.GetRequestID(ctx),
		VideoID:   videoID,
		Language:  lang,
		Duration:  time.Since(start),
	}
	if err != nil {
		lookup.Outcome = outcome(err)
		lookup.Error = err.Error()
		h.record(ctx, log, lookup)
		h.fail(w, r, err)
		return nil, false
	}

	lookup.Outcome = db.OutcomeOK
	lookup.TrackLanguage = res.Track.LanguageCode
	lookup.TrackKind = res.Track.Kind.String()
	lookup.Match = res.Match
	lookup.Source = res.Source
	lookup.CueCount = len(res.Transcript)
	h.record(ctx, log, lookup)

	log.WithFields(logrus.Fields{
		"track": res.Track.Key(),
		"match": res.Match,
		"cues":  len(res.Transcript),
	}).Info("Transcript retrieved")
	return res, true
}

// Tracks serves GET /api/tracks/{videoID}.
func (h *Handler) Tracks(w http.ResponseWriter, r *http.Request) {
	videoID, err := validation.NormalizeVideoID(chi.URLParam(r, "videoID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	catalog, err := h.retriever.ListTracks(r.Context(), videoID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, TracksResponse{VideoID: videoID, Tracks: catalog.Tracks()})
}

// Lookups serves GET /api/lookups?limit=n.
func (h *Handler) Lookups(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Lookups"
	ctx := r.Context()

	if h.store == nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, "lookup history is disabled", middleware.GetRequestID(ctx))
		return
	}

	limit := defaultLookupLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLookupLimit {
			h.fail(w, r, errors.InvalidInput(op, err, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	lookups, err := h.store.Recent(ctx, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, LookupsResponse{Lookups: lookups, Stats: stats})
}

func (h *Handler) record(ctx context.Context, log *logrus.Entry, l db.Lookup) {
	if h.store == nil {
		return
	}
	// The lookup is logged even when the client has gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if _, err := h.store.Record(ctx, l); err != nil {
		log.WithError(err).Warn("Failed to record lookup")
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	message := errors.Message(err)
	if status == http.StatusGatewayTimeout {
		message = "request timed out"
	}

	log := middleware.GetLogger(r.Context()).WithError(err).WithField("kind", errors.KindOf(err).String())
	if status >= http.StatusInternalServerError {
		log.Error("Request failed")
	} else {
		log.Info("Request rejected")
	}

	utils.RespondWithError(w, status, message, middleware.GetRequestID(r.Context()))
}

func outcome(err error) string {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return errors.KindOf(err).String()
}
