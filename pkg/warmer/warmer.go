package warmer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// Warm outcomes, used as metric labels
const (
	OutcomeWarmed = "warmed"
	OutcomeFailed = "failed"
	// OutcomeStale means the entry was replaced by a newer ranking before
	// the result could be written back
	OutcomeStale = "stale"
)

// VisibilityPublic is the only visibility served straight from the CDN
const VisibilityPublic = "public"

// VideoLookup resolves the video behind a ranked entry
type VideoLookup interface {
	GetVideo(ctx context.Context, id string) (analytics.Video, error)
}

// Presigner issues short-lived GET URLs for restricted assets
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ResultWriter records the outcome on the ranked entry
type ResultWriter interface {
	MarkWarmed(ctx context.Context, entryID string, at time.Time) error
	MarkWarmFailed(ctx context.Context, entryID, reason string) error
}

// Observer receives one call per warm attempt. *observability.Metrics implements it.
type Observer interface {
	ObserveWarm(outcome string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveWarm(string, time.Duration) {}

// Config controls how entries are primed
type Config struct {
	CDNBaseURL      string        // prefix for public manifest paths
	RequestTimeout  time.Duration // priming GET timeout
	SignedURLTTL    time.Duration // lifetime of presigned URLs for restricted videos
	Workers         int
	QueueSize       int
	TaskTimeout     time.Duration // lookup + sign + GET + writeback
	DrainTimeout    time.Duration // how long Run waits for queued work on shutdown
	LookupCacheSize int
	LookupCacheTTL  time.Duration
}

// DefaultConfig returns the production warm settings
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  5 * time.Second,
		SignedURLTTL:    300 * time.Second,
		Workers:         8,
		QueueSize:       64,
		TaskTimeout:     15 * time.Second,
		DrainTimeout:    10 * time.Second,
		LookupCacheSize: 1024,
		LookupCacheTTL:  5 * time.Minute,
	}
}

// Warmer primes CDN caches for newly ranked videos
type Warmer struct {
	cfg       Config
	videos    VideoLookup
	presigner Presigner
	results   ResultWriter
	client    *http.Client
	cache     *expirable.LRU[string, analytics.Video]
	logger    logrus.FieldLogger
	observer  Observer
	now       func() time.Time
}

// Option configures a Warmer
type Option func(*Warmer)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Warmer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithObserver records every warm attempt
func WithObserver(o Observer) Option {
	return func(w *Warmer) {
		if o != nil {
			w.observer = o
		}
	}
}

// WithHTTPClient replaces the priming client
func WithHTTPClient(c *http.Client) Option {
	return func(w *Warmer) {
		if c != nil {
			w.client = c
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(w *Warmer) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a Warmer. presigner may be nil if no video is ever restricted;
// restricted videos then fail to warm.
func New(cfg Config, videos VideoLookup, presigner Presigner, results ResultWriter, opts ...Option) (*Warmer, error) {
	if cfg.CDNBaseURL == "" {
		return nil, errors.New("CDN base URL is required")
	}
	defaults := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaults.SignedURLTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaults.TaskTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}
	if cfg.LookupCacheSize <= 0 {
		cfg.LookupCacheSize = defaults.LookupCacheSize
	}
	if cfg.LookupCacheTTL <= 0 {
		cfg.LookupCacheTTL = defaults.LookupCacheTTL
	}

	w := &Warmer{
		cfg:       cfg,
		videos:    videos,
		presigner: presigner,
		results:   results,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// 3xx counts as warm; do not chase the redirect
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cache:    expirable.NewLRU[string, analytics.Video](cfg.LookupCacheSize, nil, cfg.LookupCacheTTL),
		logger:   logrus.StandardLogger(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Warm primes one ranked entry and records the outcome on it. It does not
// retry. The returned error describes a failed warm after it was recorded.
func (w *Warmer) Warm(ctx context.Context, ev analytics.RankedEntryCreated) error {
	start := time.Now()
	logger := w.logger.WithFields(logrus.Fields{
		"entry_id": ev.EntryID,
		"video_id": ev.VideoID,
		"rank":     ev.Rank,
	})

	target, err := w.resolve(ctx, ev.VideoID)
	if err == nil {
		err = w.prime(ctx, target)
	}

	if err != nil {
		outcome := OutcomeFailed
		if werr := w.results.MarkWarmFailed(ctx, ev.EntryID, err.Error()); werr != nil {
			if errors.Is(werr, storage.ErrNotFound) {
				outcome = OutcomeStale
			} else {
				logger.WithError(werr).Error("Failed to record warm failure")
			}
		}
		w.observer.ObserveWarm(outcome, time.Since(start))
		return fmt.Errorf("warm entry %s (video %s): %w", ev.EntryID, ev.VideoID, err)
	}

	if werr := w.results.MarkWarmed(ctx, ev.EntryID, w.now().UTC()); werr != nil {
		if errors.Is(werr, storage.ErrNotFound) {
			logger.Info("Entry replaced before warm result was recorded")
			w.observer.ObserveWarm(OutcomeStale, time.Since(start))
			return nil
		}
		w.observer.ObserveWarm(OutcomeFailed, time.Since(start))
		return fmt.Errorf("record warm result for entry %s: %w", ev.EntryID, werr)
	}

	w.observer.ObserveWarm(OutcomeWarmed, time.Since(start))
	logger.WithField("duration", time.Since(start)).Debug("Entry warmed")
	return nil
}

// resolve returns the URL to prime for videoID
func (w *Warmer) resolve(ctx context.Context, videoID string) (string, error) {
	video, ok := w.cache.Get(videoID)
	if !ok {
		v, err := w.videos.GetVideo(ctx, videoID)
		if err != nil {
			return "", fmt.Errorf("lookup video: %w", err)
		}
		w.cache.Add(videoID, v)
		video = v
	}

	if video.Visibility != VisibilityPublic {
		key := video.AssetKey
		if key == "" {
			key = video.ManifestPath
		}
		if key == "" {
			return "", fmt.Errorf("video %s has no asset key", video.ID)
		}
		if w.presigner == nil {
			return "", fmt.Errorf("video %s is %s and no presigner is configured", video.ID, video.Visibility)
		}
		url, err := w.presigner.PresignGet(ctx, key, w.cfg.SignedURLTTL)
		if err != nil {
			return "", fmt.Errorf("sign manifest URL: %w", err)
		}
		return url, nil
	}

	if video.ManifestPath == "" {
		return "", fmt.Errorf("video %s has no manifest path", video.ID)
	}
	return strings.TrimRight(w.cfg.CDNBaseURL, "/") + "/" + strings.TrimLeft(video.ManifestPath, "/"), nil
}

// prime issues the bounded GET; any 2xx or 3xx response is a success
func (w *Warmer) prime(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build priming request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("priming request: %w", err)
	}
	defer resp.Body.Close()
	// Read the body so the edge caches the full manifest
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("priming request returned status %d", resp.StatusCode)
	}
	return nil
}
