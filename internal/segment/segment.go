package segment

import (
	"sort"

	"github.com/google/uuid"

	"github.com/cinefluent/sublearn/internal/subtitle"
)

// DefaultDuration is the default segment duration window in seconds
const DefaultDuration = 30.0

// maxVocabularyWords caps the vocabulary list attached to a segment
const maxVocabularyWords = 10

// LearningSegment is a duration-bounded group of cues annotated with a
// capped vocabulary list for study.
type LearningSegment struct {
	ID              string                  `json:"id"`
	StartTime       float64                 `json:"start_time"`
	EndTime         float64                 `json:"end_time"`
	Cues            []subtitle.Cue          `json:"cues"`
	VocabularyWords []subtitle.EnrichedWord `json:"vocabulary_words"`
	DifficultyScore float64                 `json:"difficulty_score"`
}

// Build groups enriched cues into learning segments. A segment accumulates
// cues while cue.StartTime - segment.StartTime stays within the duration
// window; the final segment may be shorter. Zero cues produce zero
// segments.
func Build(cues []subtitle.Cue, duration float64) []LearningSegment {
	if duration <= 0 {
		duration = DefaultDuration
	}

	var segments []LearningSegment
	var current []subtitle.Cue
	segmentStart := 0.0

	for _, cue := range cues {
		if len(current) > 0 && cue.StartTime-segmentStart > duration {
			segments = append(segments, closeSegment(current, segmentStart))
			current = nil
		}
		if len(current) == 0 {
			segmentStart = cue.StartTime
		}
		current = append(current, cue)
	}

	if len(current) > 0 {
		segments = append(segments, closeSegment(current, segmentStart))
	}

	return segments
}

func closeSegment(cues []subtitle.Cue, startTime float64) LearningSegment {
	return LearningSegment{
		ID:              uuid.NewString(),
		StartTime:       startTime,
		EndTime:         cues[len(cues)-1].EndTime,
		Cues:            cues,
		VocabularyWords: extractVocabulary(cues),
		DifficultyScore: segmentDifficulty(cues),
	}
}

func segmentDifficulty(cues []subtitle.Cue) float64 {
	if len(cues) == 0 {
		return 0
	}

	total := 0.0
	for _, cue := range cues {
		total += cue.DifficultyScore
	}
	return total / float64(len(cues))
}

// extractVocabulary collects the unique non-beginner words across the
// segment's cues, sorted by difficulty weight descending and capped.
func extractVocabulary(cues []subtitle.Cue) []subtitle.EnrichedWord {
	seen := make(map[string]struct{})
	vocabulary := make([]subtitle.EnrichedWord, 0)

	for _, cue := range cues {
		for _, word := range cue.Words {
			if word.Word == "" || word.DifficultyLevel == subtitle.LevelBeginner {
				continue
			}
			if _, ok := seen[word.Word]; ok {
				continue
			}
			seen[word.Word] = struct{}{}
			vocabulary = append(vocabulary, word)
		}
	}

	sort.SliceStable(vocabulary, func(i, j int) bool {
		return vocabulary[i].DifficultyLevel.Weight() > vocabulary[j].DifficultyLevel.Weight()
	})

	if len(vocabulary) > maxVocabularyWords {
		vocabulary = vocabulary[:maxVocabularyWords]
	}
	return vocabulary
}
