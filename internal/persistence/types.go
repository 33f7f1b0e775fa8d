package persistence

import (
	"time"

	"github.com/cinefluent/sublearn/internal/subtitle"
)

// SubtitleRecord is a stored subtitle with its processing statistics
type SubtitleRecord struct {
	Metadata        subtitle.Metadata
	Format          subtitle.Format
	UploadedBy      string
	TotalCues       int
	TotalSegments   int
	Duration        float64
	AvgDifficulty   float64
	VocabularyCount int
}

// SegmentRecord is a stored learning segment. Member cues are kept in the
// subtitle_cues table; only the count travels with the segment row.
type SegmentRecord struct {
	ID              string
	SubtitleID      string
	StartTime       float64
	EndTime         float64
	DifficultyScore float64
	VocabularyWords []subtitle.EnrichedWord
	CueCount        int
}

// CacheRow is one persistent-tier cache entry holding a descriptor list
type CacheRow struct {
	CacheKey   string
	VideoID    string
	Language   string
	VideoTitle string
	Subtitles  []subtitle.Metadata
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
