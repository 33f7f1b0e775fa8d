package enrich

import (
	"bufio"
	"embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/cinefluent/sublearn/internal/subtitle"
	"github.com/cinefluent/sublearn/pkg/log"
)

// Difficulty thresholds over frequency ranks
const (
	beginnerMaxRank     = 3000
	intermediateMaxRank = 7000
	unknownWordRank     = 10000
)

// minTokenRunes drops single characters and empty tokens
const minTokenRunes = 2

//go:embed data/frequency_en.txt
var frequencyData embed.FS

// Enricher attaches learning metadata to parsed cues
type Enricher struct {
	frequencies map[string]int
	lookup      Lookup
}

// Config configures the enricher.
// FrequencyFile optionally overrides the embedded frequency table, one word
// per line in descending frequency order. Lookup defaults to the stub.
type Config struct {
	FrequencyFile string
	Lookup        Lookup
}

// NewEnricher creates an enricher with the given configuration
func NewEnricher(cfg Config) (*Enricher, error) {
	lookup := cfg.Lookup
	if lookup == nil {
		lookup = NewStubLookup()
	}

	frequencies, err := loadFrequencies(cfg.FrequencyFile)
	if err != nil {
		return nil, fmt.Errorf("load frequency table: %w", err)
	}

	return &Enricher{
		frequencies: frequencies,
		lookup:      lookup,
	}, nil
}

// loadFrequencies reads a word list in descending frequency order, using
// the embedded default when path is empty. Rank is the 1-based line number.
func loadFrequencies(path string) (map[string]int, error) {
	var scanner *bufio.Scanner
	if path == "" {
		data, err := frequencyData.ReadFile("data/frequency_en.txt")
		if err != nil {
			return nil, err
		}
		scanner = bufio.NewScanner(strings.NewReader(string(data)))
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		scanner = bufio.NewScanner(file)
	}

	frequencies := make(map[string]int)
	rank := 0
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if word == "" {
			continue
		}
		rank++
		if _, ok := frequencies[word]; !ok {
			frequencies[word] = rank
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frequencies, nil
}

// EnrichCues populates words and difficulty scores on every cue.
// Cues whose text yields no usable tokens keep a zero score.
func (e *Enricher) EnrichCues(cues []subtitle.Cue) []subtitle.Cue {
	for i := range cues {
		e.enrichCue(&cues[i])
	}
	return cues
}

func (e *Enricher) enrichCue(cue *subtitle.Cue) {
	tokens := Tokenize(cue.Text)

	words := make([]subtitle.EnrichedWord, 0, len(tokens))
	for _, token := range tokens {
		word, ok := e.enrichWord(token, cue.Text)
		if !ok {
			continue
		}
		words = append(words, word)
	}

	cue.Words = words
	cue.DifficultyScore = difficultyScore(words)
}

// enrichWord builds the learning metadata for one token. Tokens that are
// too short or stop-words are discarded.
func (e *Enricher) enrichWord(token string, context string) (subtitle.EnrichedWord, bool) {
	word := strings.ToLower(token)
	if len([]rune(word)) < minTokenRunes || isStopWord(word) {
		return subtitle.EnrichedWord{}, false
	}

	lemma := Lemmatize(word)
	rank, ok := e.frequencies[lemma]
	if !ok {
		rank, ok = e.frequencies[word]
	}
	if !ok {
		rank = unknownWordRank
	}

	posTag := tagPartOfSpeech(word)
	entry, err := e.lookup.Lookup(word, posTag)
	if err != nil {
		// lookup failures degrade to bare metadata
		log.Debug("Word lookup failed for %q: %v", word, err)
		entry = Entry{}
	}

	return subtitle.EnrichedWord{
		Word:            word,
		Lemma:           lemma,
		POSTag:          posTag,
		Definition:      entry.Definition,
		Translations:    entry.Translations,
		DifficultyLevel: difficultyLevel(rank),
		FrequencyRank:   rank,
		Context:         context,
	}, true
}

// Tokenize splits cue text into word tokens, discarding punctuation and
// whitespace. Intra-word apostrophes and hyphens are kept.
func Tokenize(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '-'
	})

	ret := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.Trim(token, "'-")
		if token == "" || isNumeric(token) {
			continue
		}
		ret = append(ret, token)
	}
	return ret
}

// Lemmatize produces a crude normalized form. Exact lemmatization is
// delegated to the lookup backend; this only folds common inflections so
// frequency ranking hits more table entries.
func Lemmatize(word string) string {
	switch {
	case strings.HasSuffix(word, "'s"):
		return strings.TrimSuffix(word, "'s")
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return strings.TrimSuffix(word, "ies") + "y"
	case len(word) > 3 && strings.HasSuffix(word, "es") && !strings.HasSuffix(word, "ses"):
		return strings.TrimSuffix(word, "s")
	case len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

func difficultyLevel(rank int) subtitle.DifficultyLevel {
	switch {
	case rank <= beginnerMaxRank:
		return subtitle.LevelBeginner
	case rank <= intermediateMaxRank:
		return subtitle.LevelIntermediate
	default:
		return subtitle.LevelAdvanced
	}
}

// difficultyScore computes the mean difficulty weight of the enriched
// words, bounded to [1, 3]. An empty word list scores 0.
func difficultyScore(words []subtitle.EnrichedWord) float64 {
	if len(words) == 0 {
		return 0
	}

	total := 0.0
	for _, word := range words {
		total += word.DifficultyLevel.Weight()
	}
	return total / float64(len(words))
}
