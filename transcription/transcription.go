// Package transcription shares in-flight transcript retrievals between
// concurrent requests for the same video and language.
package transcription

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/errors"
)

type Retriever interface {
	Retrieve(ctx context.Context, videoID, lang string) (*captions.Result, error)
	ListTracks(ctx context.Context, videoID string) (*captions.Catalog, error)
	DefaultLanguage() string
}

type call struct {
	done   chan struct{}
	result *captions.Result
	err    error
}

// Service forwards to a Retriever. Callers asking for the same video and
// language while a retrieval is running wait for it instead of starting
// their own. Nothing is kept once the retrieval finishes.
type Service struct {
	retriever Retriever
	log       *logrus.Logger

	mu       sync.Mutex
	inflight map[string]*call
}

func NewService(retriever Retriever, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		retriever: retriever,
		log:       log,
		inflight:  make(map[string]*call),
	}
}

// key identifies retrievals that must resolve to the same track. Language
// codes are compared in canonical form, as the resolver compares them.
func (s *Service) key(videoID, lang string) string {
	if lang == "" {
		lang = captions.CanonicalLanguage(s.retriever.DefaultLanguage())
	}
	return videoID + "\x00" + lang
}

func (s *Service) Retrieve(ctx context.Context, videoID, lang string) (*captions.Result, error) {
	lang = captions.CanonicalLanguage(lang)
	key := s.key(videoID, lang)

	s.mu.Lock()
	if c, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		return s.wait(ctx, c, videoID, lang)
	}
	// Waiters see this error if the retrieval panics.
	c := &call{
		done: make(chan struct{}),
		err:  errors.Internal("transcription.Retrieve", nil, "retrieval did not complete"),
	}
	s.inflight[key] = c
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
		close(c.done)
	}()

	start := time.Now()
	c.result, c.err = s.retriever.Retrieve(ctx, videoID, lang)

	s.log.WithFields(logrus.Fields{
		"video_id": videoID,
		"language": lang,
		"duration": time.Since(start),
	}).Debug("Retrieval finished")
	return c.result, c.err
}

func (s *Service) wait(ctx context.Context, c *call, videoID, lang string) (*captions.Result, error) {
	s.log.WithField("video_id", videoID).Debug("Joining in-flight retrieval")

	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, errors.UpstreamUnavailable("transcription.wait", ctx.Err(), "request cancelled while waiting for transcript")
	}

	// The leader gave up because of its own deadline; ours may still allow
	// a retrieval.
	if c.err != nil && ctx.Err() == nil &&
		(stderrors.Is(c.err, context.Canceled) || stderrors.Is(c.err, context.DeadlineExceeded)) {
		return s.Retrieve(ctx, videoID, lang)
	}
	return c.result, c.err
}

func (s *Service) ListTracks(ctx context.Context, videoID string) (*captions.Catalog, error) {
	return s.retriever.ListTracks(ctx, videoID)
}

func (s *Service) DefaultLanguage() string {
	return s.retriever.DefaultLanguage()
}
