package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinefluent/sublearn/internal/cache"
	"github.com/cinefluent/sublearn/internal/enrich"
	"github.com/cinefluent/sublearn/internal/persistence"
	"github.com/cinefluent/sublearn/internal/provider"
	"github.com/cinefluent/sublearn/internal/segment"
	"github.com/cinefluent/sublearn/internal/subtitle"
)

type fakeStore struct {
	mu        sync.Mutex
	records   map[string][]persistence.SubtitleRecord
	saved     []persistence.SubtitleRecord
	savedCues [][]subtitle.Cue
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string][]persistence.SubtitleRecord)}
}

func (s *fakeStore) key(videoID, language string) string {
	return videoID + "/" + language
}

func (s *fakeStore) ListSubtitles(_ context.Context, videoID, language string) ([]persistence.SubtitleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.records[s.key(videoID, language)], nil
}

func (s *fakeStore) SaveProcessed(_ context.Context, record persistence.SubtitleRecord, cues []subtitle.Cue, _ []segment.LearningSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, record)
	s.savedCues = append(s.savedCues, cues)
	return nil
}

type fakeProvider struct {
	mu        sync.Mutex
	results   []subtitle.Metadata
	searchErr error
	content   []byte
	dlErr     error
	searches  int
	queries   []provider.Query
	quota     int
}

func (p *fakeProvider) Search(_ context.Context, query provider.Query) ([]subtitle.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches++
	p.queries = append(p.queries, query)
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	return p.results, nil
}

func (p *fakeProvider) Download(_ context.Context, _ string) ([]byte, error) {
	if p.dlErr != nil {
		return nil, p.dlErr
	}
	return p.content, nil
}

func (p *fakeProvider) QuotaRemaining() int {
	if p.quota != 0 {
		return p.quota
	}
	return 200
}

func (p *fakeProvider) Stats() provider.Stats { return provider.Stats{} }

func newTestResolver(t *testing.T, store Store, prov Provider) *Resolver {
	t.Helper()
	enricher, err := enrich.NewEnricher(enrich.Config{})
	require.NoError(t, err)
	r, err := New(Config{
		Store:    store,
		Cache:    cache.NewManager(cache.Config{}),
		Provider: prov,
		Enricher: enricher,
	})
	require.NoError(t, err)
	return r
}

func externalDescriptor(videoID, language string) subtitle.Metadata {
	return subtitle.Metadata{
		ID:            "sub-1",
		VideoID:       videoID,
		Language:      language,
		Title:         "Movie - " + language,
		Source:        subtitle.SourceExternal,
		FileURL:       "https://example.com/sub.srt",
		DownloadCount: 100,
		Rating:        8.5,
	}
}

func TestSearchPrefersLocalStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.records[store.key("vid-1", "en")] = []persistence.SubtitleRecord{
		{Metadata: subtitle.Metadata{ID: "local-1", VideoID: "vid-1", Language: "en"}},
	}
	prov := &fakeProvider{results: []subtitle.Metadata{externalDescriptor("vid-1", "en")}}
	r := newTestResolver(t, store, prov)

	results, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceLocal, source)
	require.Len(t, results, 1)
	assert.Equal(t, "local-1", results[0].ID)
	assert.Equal(t, subtitle.SourceLocal, results[0].Source)
	assert.Equal(t, 0, prov.searches, "local hit must not reach the provider")
}

func TestSearchFetchesExternalAndCaches(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	prov := &fakeProvider{results: []subtitle.Metadata{externalDescriptor("vid-1", "en")}}
	r := newTestResolver(t, store, prov)

	results, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceExternal, source)
	require.Len(t, results, 1)
	assert.Equal(t, "vid-1", results[0].VideoID)

	// second search must be served from the cache tier
	results, source, err = r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceCache, source)
	require.Len(t, results, 1)
	assert.Equal(t, 1, prov.searches)
}

func TestSearchWithoutAutoFetch(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{results: []subtitle.Metadata{externalDescriptor("vid-1", "en")}}
	r := newTestResolver(t, newFakeStore(), prov)

	results, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:  "vid-1",
		Language: "en",
		Title:    "Movie",
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceNotFound, source)
	assert.Empty(t, results)
	assert.Equal(t, 0, prov.searches)
}

func TestSearchProviderErrorDegradesToNotFound(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{searchErr: provider.ErrRateLimited}
	r := newTestResolver(t, newFakeStore(), prov)

	results, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceNotFound, source)
	assert.Empty(t, results)
}

func TestSearchWithoutProvider(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeStore(), nil)

	results, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceNotFound, source)
	assert.Empty(t, results)
}

func TestSearchStoreErrorIsTyped(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.listErr = errors.New("disk gone")
	r := newTestResolver(t, store, nil)

	_, _, err := r.Search(context.Background(), SearchRequest{VideoID: "vid-1", Language: "en"})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrStorage))
}

func TestSearchCapsAndRanksExternalResults(t *testing.T) {
	t.Parallel()

	var results []subtitle.Metadata
	for i := 0; i < 8; i++ {
		desc := externalDescriptor("vid-1", "en")
		desc.ID = fmt.Sprintf("sub-%d", i)
		desc.Rating = float64(i)
		results = append(results, desc)
	}
	prov := &fakeProvider{results: results}
	r := newTestResolver(t, newFakeStore(), prov)

	got, source, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)
	assert.Equal(t, subtitle.SourceExternal, source)
	require.Len(t, got, 5)
	assert.Equal(t, "sub-7", got[0].ID, "highest rated first")
	assert.Equal(t, "sub-3", got[4].ID)
}

func TestAllLanguagesBatchesMissing(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.records[store.key("vid-1", "en")] = []persistence.SubtitleRecord{
		{Metadata: subtitle.Metadata{ID: "local-en", VideoID: "vid-1", Language: "en"}},
	}
	prov := &fakeProvider{results: []subtitle.Metadata{
		externalDescriptor("vid-1", "es"),
		externalDescriptor("vid-1", "fr"),
	}}
	r := newTestResolver(t, store, prov)

	got, err := r.AllLanguages(context.Background(), "vid-1", "Movie", 2020)
	require.NoError(t, err)

	require.Contains(t, got, "en")
	require.Contains(t, got, "es")
	require.Contains(t, got, "fr")
	assert.Equal(t, "local-en", got["en"][0].ID)

	require.Equal(t, 1, prov.searches, "discovery uses one batched query")
	query := prov.queries[0]
	assert.LessOrEqual(t, len(query.Languages), 10)
	assert.NotContains(t, query.Languages, "en", "locally covered languages are not re-fetched")
}

func TestAllLanguagesSkipsProviderWhenCovered(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	for _, language := range []string{"en", "es", "fr", "de", "it"} {
		store.records[store.key("vid-1", language)] = []persistence.SubtitleRecord{
			{Metadata: subtitle.Metadata{ID: "local-" + language, VideoID: "vid-1", Language: language}},
		}
	}
	prov := &fakeProvider{}
	r := newTestResolver(t, store, prov)

	got, err := r.AllLanguages(context.Background(), "vid-1", "Movie", 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, 0, prov.searches)
}

func TestDownloadAndProcess(t *testing.T) {
	t.Parallel()

	srt := "1\n00:00:01,000 --> 00:00:04,000\nHello world\n\n2\n00:00:05,000 --> 00:00:08,000\nThe magnificent journey begins\n"
	prov := &fakeProvider{content: []byte(srt)}
	store := newFakeStore()
	r := newTestResolver(t, store, prov)

	desc := externalDescriptor("vid-1", "en")
	summary, err := r.DownloadAndProcess(context.Background(), desc)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.CueCount)
	assert.Equal(t, 1, summary.SegmentCount)
	assert.InDelta(t, 8.0, summary.Duration, 0.001)
	assert.Greater(t, summary.AvgDifficulty, 0.0)

	require.Len(t, store.saved, 1)
	assert.Equal(t, subtitle.FormatSRT, store.saved[0].Format)
	require.Len(t, store.savedCues[0], 2)
	assert.NotEmpty(t, store.savedCues[0][0].Words)
}

func TestDownloadAndProcessPlainHTTP(t *testing.T) {
	t.Parallel()

	srt := "1\n00:00:01,000 --> 00:00:04,000\nHello world\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, srt)
	}))
	t.Cleanup(server.Close)

	store := newFakeStore()
	r := newTestResolver(t, store, nil)

	desc := subtitle.Metadata{
		ID:       "sub-local",
		VideoID:  "vid-1",
		Language: "en",
		Source:   subtitle.SourceCache,
		FileURL:  server.URL + "/sub.srt",
	}
	summary, err := r.DownloadAndProcess(context.Background(), desc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CueCount)
	require.Len(t, store.saved, 1)
}

func TestDownloadAndProcessRejectsMissingURL(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeStore(), nil)

	_, err := r.DownloadAndProcess(context.Background(), subtitle.Metadata{ID: "sub-1"})
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrValidation))
}

func TestDownloadAndProcessParseFailure(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{content: []byte("not a subtitle\nat all\n")}
	r := newTestResolver(t, newFakeStore(), prov)

	_, err := r.DownloadAndProcess(context.Background(), externalDescriptor("vid-1", "en"))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrParse))
}

func TestDownloadAndProcessRateLimit(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{dlErr: provider.ErrRateLimited, quota: -1}
	r := newTestResolver(t, newFakeStore(), prov)

	_, err := r.DownloadAndProcess(context.Background(), externalDescriptor("vid-1", "en"))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrRateLimit))
}

func TestStatsAndHealth(t *testing.T) {
	t.Parallel()

	prov := &fakeProvider{results: []subtitle.Metadata{externalDescriptor("vid-1", "en")}}
	r := newTestResolver(t, newFakeStore(), prov)

	_, _, err := r.Search(context.Background(), SearchRequest{
		VideoID:   "vid-1",
		Language:  "en",
		Title:     "Movie",
		AutoFetch: true,
	})
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.SearchesPerformed)
	assert.Equal(t, 18, stats.SupportedLanguages)
	assert.NotNil(t, stats.Provider)
	assert.WithinDuration(t, time.Now().UTC(), stats.StartTime, time.Minute)

	health := r.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.ProviderAvailable)
}

func TestHealthDegradedWithoutProvider(t *testing.T) {
	t.Parallel()

	r := newTestResolver(t, newFakeStore(), nil)

	health := r.Health()
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.ProviderAvailable)
	assert.Equal(t, 0, health.QuotaRemaining)
}
