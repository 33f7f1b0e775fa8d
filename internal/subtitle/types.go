package subtitle

import "golang.org/x/text/language"

// Format identifies a supported subtitle file format
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// DifficultyLevel is a coarse word/cue difficulty classification
type DifficultyLevel string

const (
	LevelBeginner     DifficultyLevel = "beginner"
	LevelIntermediate DifficultyLevel = "intermediate"
	LevelAdvanced     DifficultyLevel = "advanced"
)

// Weight returns the numeric weight used for difficulty scoring
func (l DifficultyLevel) Weight() float64 {
	switch l {
	case LevelAdvanced:
		return 3
	case LevelIntermediate:
		return 2
	default:
		return 1
	}
}

// EnrichedWord is a word with attached learning metadata
type EnrichedWord struct {
	Word            string            `json:"word"`
	Lemma           string            `json:"lemma"`
	POSTag          string            `json:"pos_tag"`
	Definition      string            `json:"definition"`
	Translations    map[string]string `json:"translations"`
	DifficultyLevel DifficultyLevel   `json:"difficulty_level"`
	FrequencyRank   int               `json:"frequency_rank"`
	Context         string            `json:"context"`
}

// Cue represents a single timestamped subtitle line.
// Words and DifficultyScore stay zero until enrichment runs.
type Cue struct {
	ID              string         `json:"id"`
	Index           int            `json:"index"`
	StartTime       float64        `json:"start_time"` // seconds
	EndTime         float64        `json:"end_time"`   // seconds
	Text            string         `json:"text"`
	Words           []EnrichedWord `json:"words"`
	DifficultyScore float64        `json:"difficulty_score"`
}

// File represents a parsed subtitle file
type File struct {
	Cues     []Cue
	Language language.Tag
	Format   Format
}
