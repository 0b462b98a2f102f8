package transcription

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/errors"
)

type blockingRetriever struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (r *blockingRetriever) Retrieve(ctx context.Context, videoID, lang string) (*captions.Result, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, errors.UpstreamUnavailable("test", ctx.Err(), "cancelled")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &captions.Result{VideoID: videoID, Language: lang}, nil
}

func (r *blockingRetriever) ListTracks(ctx context.Context, videoID string) (*captions.Catalog, error) {
	return captions.NewCatalog(nil), nil
}

func (r *blockingRetriever) DefaultLanguage() string { return "en" }

func newBlocking() *blockingRetriever {
	return &blockingRetriever{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestServiceCoalescesConcurrentRequests(t *testing.T) {
	r := newBlocking()
	s := NewService(r, quietLogger())

	const callers = 5
	results := make([]*captions.Result, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.Retrieve(context.Background(), "abc123", "")
	}()
	<-r.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// "EN" and "" resolve to the same key as the leader.
			lang := "EN"
			if i%2 == 0 {
				lang = ""
			}
			results[i], _ = s.Retrieve(context.Background(), "abc123", lang)
		}(i)
	}

	waitForWaiters(t, s, "abc123\x00en")
	close(r.release)
	wg.Wait()

	if got := r.calls.Load(); got != 1 {
		t.Errorf("retriever called %d times, want 1", got)
	}
	for i, res := range results {
		if res == nil || res != results[0] {
			t.Errorf("caller %d got %p, want shared result %p", i, res, results[0])
		}
	}
}

func TestServiceDistinctKeysDoNotShare(t *testing.T) {
	r := newBlocking()
	close(r.release)
	s := NewService(r, quietLogger())

	if _, err := s.Retrieve(context.Background(), "abc123", "en"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Retrieve(context.Background(), "abc123", "fr"); err != nil {
		t.Fatal(err)
	}
	if got := r.calls.Load(); got != 2 {
		t.Errorf("retriever called %d times, want 2", got)
	}
}

func TestServiceSharesErrors(t *testing.T) {
	r := newBlocking()
	r.err = errors.NoCaptionsAvailable("test", "no captions available for this video")
	s := NewService(r, quietLogger())

	errs := make(chan error, 2)
	go func() {
		_, err := s.Retrieve(context.Background(), "abc123", "en")
		errs <- err
	}()
	<-r.started
	go func() {
		_, err := s.Retrieve(context.Background(), "abc123", "en")
		errs <- err
	}()
	waitForWaiters(t, s, "abc123\x00en")
	close(r.release)

	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, errors.KindNoCaptionsAvailable) {
			t.Errorf("error = %v, want no captions", err)
		}
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("retriever called %d times, want 1", got)
	}
}

func TestServiceWaiterRetriesAfterLeaderCancelled(t *testing.T) {
	r := newBlocking()
	s := NewService(r, quietLogger())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := s.Retrieve(leaderCtx, "abc123", "en")
		leaderErr <- err
	}()
	<-r.started

	followerRes := make(chan *captions.Result, 1)
	go func() {
		res, _ := s.Retrieve(context.Background(), "abc123", "en")
		followerRes <- res
	}()
	waitForWaiters(t, s, "abc123\x00en")

	cancelLeader()
	if err := <-leaderErr; err == nil {
		t.Fatal("leader should fail after cancellation")
	}

	// The follower starts its own retrieval.
	<-r.started
	close(r.release)
	if res := <-followerRes; res == nil || res.VideoID != "abc123" {
		t.Errorf("follower result = %+v", res)
	}
	if got := r.calls.Load(); got != 2 {
		t.Errorf("retriever called %d times, want 2", got)
	}
}

func TestServiceWaiterHonoursOwnContext(t *testing.T) {
	r := newBlocking()
	s := NewService(r, quietLogger())
	defer close(r.release)

	go s.Retrieve(context.Background(), "abc123", "en")
	<-r.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Retrieve(ctx, "abc123", "en")
	if !errors.Is(err, errors.KindUpstreamUnavailable) {
		t.Errorf("error = %v, want upstream unavailable", err)
	}
}

type metadataStub struct{ payload string }

func (m metadataStub) Name() string { return "stub" }

func (m metadataStub) FetchMetadata(ctx context.Context, videoID string) ([]byte, error) {
	return []byte(m.payload), nil
}

// gatedFetcher serves a single cue whose text is the track URL, after the
// test releases it.
type gatedFetcher struct {
	started chan string
	release chan struct{}
}

func (f *gatedFetcher) FetchTimedText(ctx context.Context, sourceURL string) ([]byte, error) {
	f.started <- sourceURL
	<-f.release
	return []byte(`<transcript><text start="0" dur="1">` + sourceURL + `</text></transcript>`), nil
}

func TestServiceKeysByCanonicalLanguage(t *testing.T) {
	fetcher := &gatedFetcher{started: make(chan string, 4), release: make(chan struct{})}
	retriever := captions.NewRetriever(fetcher, captions.Config{Logger: quietLogger()}, metadataStub{
		payload: `[{"baseUrl":"gb","languageCode":"en-GB"},{"baseUrl":"us","languageCode":"en-US"}]`,
	})
	s := NewService(retriever, quietLogger())

	type outcome struct {
		lang string
		res  *captions.Result
		err  error
	}
	out := make(chan outcome, 3)
	ask := func(lang string) {
		res, err := s.Retrieve(context.Background(), "abc123", lang)
		out <- outcome{lang, res, err}
	}

	go ask("en-us")
	if got := <-fetcher.started; got != "us" {
		t.Fatalf("en-us fetched %q, want us", got)
	}
	go ask("EN-US")
	go ask("en-GB")
	if got := <-fetcher.started; got != "gb" {
		t.Fatalf("en-GB fetched %q, want gb", got)
	}
	waitForWaiters(t, s, "abc123\x00en-US")
	close(fetcher.release)

	want := map[string]struct{ code, url string }{
		"en-us": {"en-US", "us"},
		"EN-US": {"en-US", "us"},
		"en-GB": {"en-GB", "gb"},
	}
	for i := 0; i < 3; i++ {
		o := <-out
		if o.err != nil {
			t.Fatalf("%s: %v", o.lang, o.err)
		}
		w := want[o.lang]
		if o.res.Track.LanguageCode != w.code {
			t.Errorf("%s resolved to %s, want %s", o.lang, o.res.Track.LanguageCode, w.code)
		}
		if text := o.res.Transcript.Text(); text != w.url {
			t.Errorf("%s got transcript %q, want %q", o.lang, text, w.url)
		}
	}
	if extra := len(fetcher.started); extra != 0 {
		t.Errorf("%d unexpected extra fetches", extra)
	}
}

type panickingRetriever struct {
	started chan struct{}
	release chan struct{}
}

func (r *panickingRetriever) Retrieve(ctx context.Context, videoID, lang string) (*captions.Result, error) {
	r.started <- struct{}{}
	<-r.release
	panic("retriever exploded")
}

func (r *panickingRetriever) ListTracks(ctx context.Context, videoID string) (*captions.Catalog, error) {
	return captions.NewCatalog(nil), nil
}

func (r *panickingRetriever) DefaultLanguage() string { return "en" }

func TestServicePanicReleasesWaiters(t *testing.T) {
	r := &panickingRetriever{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewService(r, quietLogger())

	recovered := make(chan any, 1)
	go func() {
		defer func() { recovered <- recover() }()
		s.Retrieve(context.Background(), "abc123", "en")
	}()
	<-r.started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := s.Retrieve(context.Background(), "abc123", "en")
		waiterErr <- err
	}()
	waitForWaiters(t, s, "abc123\x00en")
	close(r.release)

	if p := <-recovered; p == nil {
		t.Fatal("panic should propagate to the leader")
	}
	select {
	case err := <-waiterErr:
		if !errors.Is(err, errors.KindInternal) {
			t.Errorf("waiter error = %v, want internal", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still blocked after the leader panicked")
	}

	s.mu.Lock()
	left := len(s.inflight)
	s.mu.Unlock()
	if left != 0 {
		t.Errorf("%d in-flight entries left after panic", left)
	}
}

// waitForWaiters gives the follower goroutines time to find the in-flight
// call. The leader is blocked, so the entry cannot disappear meanwhile.
func waitForWaiters(t *testing.T, s *Service, key string) {
	t.Helper()
	s.mu.Lock()
	_, ok := s.inflight[key]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("no in-flight call for %q", key)
	}
	time.Sleep(50 * time.Millisecond)
}
