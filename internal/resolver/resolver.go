package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/cinefluent/sublearn/internal/cache"
	"github.com/cinefluent/sublearn/internal/enrich"
	"github.com/cinefluent/sublearn/internal/persistence"
	"github.com/cinefluent/sublearn/internal/provider"
	"github.com/cinefluent/sublearn/internal/segment"
	"github.com/cinefluent/sublearn/internal/subtitle"
	"github.com/cinefluent/sublearn/pkg/log"
)

// DefaultSupportedLanguages lists the languages multi-language discovery
// walks, in priority order.
var DefaultSupportedLanguages = []string{
	"en", "es", "fr", "de", "it", "pt", "ja", "ko", "zh",
	"ru", "ar", "hi", "tr", "pl", "nl", "sv", "da", "no",
}

const (
	// maxResultsPerLanguage caps externally sourced descriptor lists
	maxResultsPerLanguage = 5

	// batchFetchLanguageLimit bounds one multi-language provider query
	batchFetchLanguageLimit = 10

	// batchFetchThreshold skips the external batch query when the local
	// store already covers this many languages
	batchFetchThreshold = 5

	defaultFetchTimeout = 30 * time.Second
)

// Store is the persistent subtitle store consumed by the orchestrator.
// *persistence.SQLiteStore satisfies it.
type Store interface {
	ListSubtitles(ctx context.Context, videoID, language string) ([]persistence.SubtitleRecord, error)
	SaveProcessed(ctx context.Context, record persistence.SubtitleRecord, cues []subtitle.Cue, segments []segment.LearningSegment) error
}

// Provider is the external subtitle index consumed by the orchestrator.
// *provider.Client satisfies it.
type Provider interface {
	Search(ctx context.Context, query provider.Query) ([]subtitle.Metadata, error)
	Download(ctx context.Context, fileURL string) ([]byte, error)
	QuotaRemaining() int
	Stats() provider.Stats
}

// SearchRequest describes one subtitle resolution
type SearchRequest struct {
	VideoID    string
	Language   string
	Title      string
	Year       int
	ExternalID string
	AutoFetch  bool
}

// Summary reports what one download-and-process run produced
type Summary struct {
	SubtitleID      string  `json:"subtitle_id"`
	Language        string  `json:"language"`
	CueCount        int     `json:"total_cues"`
	SegmentCount    int     `json:"total_segments"`
	VocabularyCount int     `json:"vocabulary_count"`
	AvgDifficulty   float64 `json:"avg_difficulty"`
	Duration        float64 `json:"duration"`
}

// ServiceStats aggregates orchestrator, cache, and provider counters
type ServiceStats struct {
	SearchesPerformed    uint64          `json:"searches_performed"`
	DownloadsCompleted   uint64          `json:"downloads_completed"`
	ProcessingsCompleted uint64          `json:"processings_completed"`
	StartTime            time.Time       `json:"service_start_time"`
	Cache                cache.Stats     `json:"cache_stats"`
	Provider             *provider.Stats `json:"provider_stats,omitempty"`
	SupportedLanguages   int             `json:"supported_languages"`
}

// Health is the introspection snapshot exposed to the calling layer
type Health struct {
	Status            string      `json:"status"` // healthy or degraded
	ProviderAvailable bool        `json:"provider_available"`
	QuotaRemaining    int         `json:"quota_remaining"`
	Cache             cache.Stats `json:"cache"`
}

// Resolver cascades store, cache, and external provider into the
// operations callers use.
type Resolver struct {
	store              Store
	cache              *cache.Manager
	provider           Provider // nil when no API key is configured
	enricher           *enrich.Enricher
	segmentDuration    float64
	supportedLanguages []string
	httpClient         *http.Client
	flight             singleflight.Group

	mu          sync.Mutex
	searches    uint64
	downloads   uint64
	processings uint64
	startTime   time.Time
}

// Config wires a Resolver. Store, Cache, and Enricher are required;
// Provider may be nil, in which case external fetches are skipped.
type Config struct {
	Store              Store
	Cache              *cache.Manager
	Provider           Provider
	Enricher           *enrich.Enricher
	SegmentDuration    float64
	SupportedLanguages []string
	FetchTimeout       time.Duration
}

func New(cfg Config) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if cfg.Enricher == nil {
		return nil, fmt.Errorf("enricher is required")
	}
	duration := cfg.SegmentDuration
	if duration <= 0 {
		duration = segment.DefaultDuration
	}
	languages := cfg.SupportedLanguages
	if len(languages) == 0 {
		languages = DefaultSupportedLanguages
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &Resolver{
		store:              cfg.Store,
		cache:              cfg.Cache,
		provider:           cfg.Provider,
		enricher:           cfg.Enricher,
		segmentDuration:    duration,
		supportedLanguages: languages,
		httpClient:         &http.Client{Timeout: timeout},
		startTime:          time.Now().UTC(),
	}, nil
}

// Search resolves subtitle descriptors for a (video, language) pair.
// Precedence: persistent store, cache, external provider. Provider
// failures degrade to an empty not_found result; absence of subtitles is
// not an error.
func (r *Resolver) Search(ctx context.Context, req SearchRequest) ([]subtitle.Metadata, subtitle.Source, error) {
	r.count(&r.searches)

	local, err := r.localSubtitles(ctx, req.VideoID, req.Language)
	if err != nil {
		return nil, subtitle.SourceNotFound, WrapError(err, ErrStorage, "subtitle store lookup failed").
			WithContext("video_id", req.VideoID).
			WithContext("language", req.Language)
	}
	if len(local) > 0 {
		return local, subtitle.SourceLocal, nil
	}

	if cached, ok := r.cache.Get(ctx, req.VideoID, req.Language, req.Title); ok {
		return cached, subtitle.SourceCache, nil
	}

	if !req.AutoFetch || req.Title == "" || r.provider == nil {
		return nil, subtitle.SourceNotFound, nil
	}

	// coalesce concurrent external fetches for the same key
	key := cache.Key(req.VideoID, req.Language, req.Title)
	results, err, _ := r.flight.Do(key, func() (any, error) {
		return r.fetchExternal(ctx, req)
	})
	if err != nil {
		log.Warn("External subtitle fetch failed for video %s (%s): %v", req.VideoID, req.Language, err)
		return nil, subtitle.SourceNotFound, nil
	}

	subtitles := results.([]subtitle.Metadata)
	if len(subtitles) == 0 {
		return nil, subtitle.SourceNotFound, nil
	}
	return subtitles, subtitle.SourceExternal, nil
}

func (r *Resolver) fetchExternal(ctx context.Context, req SearchRequest) ([]subtitle.Metadata, error) {
	results, err := r.provider.Search(ctx, provider.Query{
		Title:      req.Title,
		Year:       req.Year,
		ExternalID: req.ExternalID,
		Languages:  []string{req.Language},
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	for i := range results {
		results[i].VideoID = req.VideoID
	}
	results = rankDescriptors(results, maxResultsPerLanguage)

	r.cache.Put(ctx, req.VideoID, req.Language, req.Title, results, r.cache.ExternalTTL())
	return results, nil
}

// AllLanguages discovers subtitles across every supported language. The
// store is consulted per language; missing languages are covered by one
// batched multi-language provider query whose result is partitioned and
// cached per language.
func (r *Resolver) AllLanguages(ctx context.Context, videoID, title string, year int) (map[string][]subtitle.Metadata, error) {
	r.count(&r.searches)

	ret := make(map[string][]subtitle.Metadata)
	for _, language := range r.supportedLanguages {
		local, err := r.localSubtitles(ctx, videoID, language)
		if err != nil {
			return nil, WrapError(err, ErrStorage, "subtitle store lookup failed").
				WithContext("video_id", videoID).
				WithContext("language", language)
		}
		if len(local) > 0 {
			ret[language] = local
		}
	}

	if len(ret) >= batchFetchThreshold || title == "" || r.provider == nil {
		return ret, nil
	}

	var missing []string
	for _, language := range r.supportedLanguages {
		if len(missing) >= batchFetchLanguageLimit {
			break
		}
		if _, ok := ret[language]; !ok {
			missing = append(missing, language)
		}
	}
	if len(missing) == 0 {
		return ret, nil
	}

	results, err := r.provider.Search(ctx, provider.Query{
		Title:     title,
		Year:      year,
		Languages: missing,
	})
	if err != nil {
		log.Warn("Batched language fetch failed for video %s: %v", videoID, err)
		return ret, nil
	}

	partitions := make(map[string][]subtitle.Metadata)
	for _, result := range results {
		result.VideoID = videoID
		partitions[result.Language] = append(partitions[result.Language], result)
	}
	for language, partition := range partitions {
		partition = rankDescriptors(partition, maxResultsPerLanguage)
		r.cache.Put(ctx, videoID, language, title, partition, r.cache.ExternalTTL())
		ret[language] = partition
	}

	return ret, nil
}

// DownloadAndProcess downloads a descriptor's content and runs it through
// the parse, enrich, segment pipeline, persisting the results.
func (r *Resolver) DownloadAndProcess(ctx context.Context, desc subtitle.Metadata) (*Summary, error) {
	if !desc.Downloadable() {
		return nil, NewError(ErrValidation, "descriptor has no file URL").
			WithContext("subtitle_id", desc.ID)
	}

	content, err := r.downloadContent(ctx, desc)
	if err != nil {
		return nil, err
	}
	r.count(&r.downloads)

	format := subtitle.DetectFormat(desc.FileURL, content)
	file, err := subtitle.Parse(content, format)
	if err != nil {
		return nil, WrapError(err, ErrParse, "failed to parse subtitle file").
			WithContext("file_url", desc.FileURL).
			WithContext("format", format).
			WithContext("stage", "parse")
	}

	cues := r.enricher.EnrichCues(file.Cues)
	segments := segment.Build(cues, r.segmentDuration)

	record := buildRecord(desc, format, cues, segments)
	if err := r.store.SaveProcessed(ctx, record, cues, segments); err != nil {
		return nil, WrapError(err, ErrProcessing, "failed to persist processed subtitle").
			WithContext("subtitle_id", record.Metadata.ID).
			WithContext("stage", "persist")
	}
	r.count(&r.processings)

	log.Info("Processed subtitle %s: %d cues, %d segments", record.Metadata.ID, record.TotalCues, record.TotalSegments)

	return &Summary{
		SubtitleID:      record.Metadata.ID,
		Language:        record.Metadata.Language,
		CueCount:        record.TotalCues,
		SegmentCount:    record.TotalSegments,
		VocabularyCount: record.VocabularyCount,
		AvgDifficulty:   record.AvgDifficulty,
		Duration:        record.Duration,
	}, nil
}

// downloadContent fetches raw bytes through the provider for external
// descriptors, or a plain HTTP fetch otherwise.
func (r *Resolver) downloadContent(ctx context.Context, desc subtitle.Metadata) ([]byte, error) {
	if desc.Source == subtitle.SourceExternal && r.provider != nil {
		content, err := r.provider.Download(ctx, desc.FileURL)
		if err != nil {
			kind := ErrProvider
			if r.provider.QuotaRemaining() <= 0 {
				kind = ErrRateLimit
			}
			return nil, WrapError(err, kind, "provider download failed").
				WithContext("file_url", desc.FileURL)
		}
		return content, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.FileURL, nil)
	if err != nil {
		return nil, WrapError(err, ErrValidation, "invalid file URL").
			WithContext("file_url", desc.FileURL)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, WrapError(err, ErrProvider, "subtitle download failed").
			WithContext("file_url", desc.FileURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, NewError(ErrProvider, fmt.Sprintf("subtitle download failed: status %d", resp.StatusCode)).
			WithContext("file_url", desc.FileURL)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(err, ErrProvider, "failed to read subtitle content").
			WithContext("file_url", desc.FileURL)
	}
	if len(content) == 0 {
		return nil, NewError(ErrProvider, "downloaded subtitle file is empty").
			WithContext("file_url", desc.FileURL)
	}
	return content, nil
}

func buildRecord(desc subtitle.Metadata, format subtitle.Format, cues []subtitle.Cue, segments []segment.LearningSegment) persistence.SubtitleRecord {
	meta := desc
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	avgDifficulty := 0.0
	duration := 0.0
	if len(cues) > 0 {
		total := 0.0
		for _, cue := range cues {
			total += cue.DifficultyScore
		}
		avgDifficulty = total / float64(len(cues))
		duration = cues[len(cues)-1].EndTime
	}

	vocabularyCount := 0
	for _, seg := range segments {
		vocabularyCount += len(seg.VocabularyWords)
	}

	return persistence.SubtitleRecord{
		Metadata:        meta,
		Format:          format,
		TotalCues:       len(cues),
		TotalSegments:   len(segments),
		Duration:        duration,
		AvgDifficulty:   avgDifficulty,
		VocabularyCount: vocabularyCount,
	}
}

func (r *Resolver) localSubtitles(ctx context.Context, videoID, language string) ([]subtitle.Metadata, error) {
	records, err := r.store.ListSubtitles(ctx, videoID, language)
	if err != nil {
		return nil, err
	}

	ret := make([]subtitle.Metadata, 0, len(records))
	for _, record := range records {
		meta := record.Metadata
		meta.Source = subtitle.SourceLocal
		ret = append(ret, meta)
	}
	return ret, nil
}

// rankDescriptors sorts by (rating, download count) descending and caps
// the list.
func rankDescriptors(subtitles []subtitle.Metadata, limit int) []subtitle.Metadata {
	sort.SliceStable(subtitles, func(i, j int) bool {
		if subtitles[i].Rating != subtitles[j].Rating {
			return subtitles[i].Rating > subtitles[j].Rating
		}
		return subtitles[i].DownloadCount > subtitles[j].DownloadCount
	})
	if len(subtitles) > limit {
		subtitles = subtitles[:limit]
	}
	return subtitles
}

func (r *Resolver) count(counter *uint64) {
	r.mu.Lock()
	*counter++
	r.mu.Unlock()
}

// Stats returns a snapshot of service, cache, and provider counters
func (r *Resolver) Stats() ServiceStats {
	r.mu.Lock()
	stats := ServiceStats{
		SearchesPerformed:    r.searches,
		DownloadsCompleted:   r.downloads,
		ProcessingsCompleted: r.processings,
		StartTime:            r.startTime,
		SupportedLanguages:   len(r.supportedLanguages),
	}
	r.mu.Unlock()

	stats.Cache = r.cache.Stats()
	if r.provider != nil {
		providerStats := r.provider.Stats()
		stats.Provider = &providerStats
	}
	return stats
}

// Health reports cache and provider health for the calling layer. The
// service is degraded when no external provider is configured.
func (r *Resolver) Health() Health {
	health := Health{
		Status:            "healthy",
		ProviderAvailable: r.provider != nil,
		Cache:             r.cache.Stats(),
	}
	if r.provider == nil {
		health.Status = "degraded"
	} else {
		health.QuotaRemaining = r.provider.QuotaRemaining()
	}
	return health
}
