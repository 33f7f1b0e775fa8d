package enrich

import "fmt"

// Entry holds the dictionary data attached to an enriched word
type Entry struct {
	Definition   string
	Translations map[string]string
}

// Lookup resolves definitions and translations for a word. Implementations
// may call out to an external dictionary service; the stub below is the
// default.
type Lookup interface {
	Lookup(word string, posTag string) (Entry, error)
}

// StubLookup produces placeholder definitions and translations without
// contacting any external service.
type StubLookup struct {
	languages []string
}

// NewStubLookup creates a stub lookup covering a fixed set of translation
// languages.
func NewStubLookup() *StubLookup {
	return &StubLookup{
		languages: []string{"es", "fr", "de", "it"},
	}
}

func (s *StubLookup) Lookup(word string, posTag string) (Entry, error) {
	translations := make(map[string]string, len(s.languages))
	for _, lang := range s.languages {
		translations[lang] = fmt.Sprintf("%s_%s", word, lang)
	}

	return Entry{
		Definition:   definitionFor(word, posTag),
		Translations: translations,
	}, nil
}

func definitionFor(word string, posTag string) string {
	switch posTag {
	case "NOUN":
		return fmt.Sprintf("A noun: %s", word)
	case "VERB":
		return fmt.Sprintf("A verb: %s", word)
	case "ADJ":
		return fmt.Sprintf("An adjective: %s", word)
	case "ADV":
		return fmt.Sprintf("An adverb: %s", word)
	default:
		return fmt.Sprintf("A word: %s", word)
	}
}

// tagPartOfSpeech guesses a coarse part-of-speech tag from the word shape.
// Linguistic accuracy is not a goal here; a real NLP backend can replace
// this through the Lookup interface.
func tagPartOfSpeech(word string) string {
	switch {
	case hasAnySuffix(word, "ly"):
		return "ADV"
	case hasAnySuffix(word, "ing", "ed", "ize", "ise", "ate"):
		return "VERB"
	case hasAnySuffix(word, "ous", "ful", "ive", "able", "ible", "al", "ic"):
		return "ADJ"
	default:
		return "NOUN"
	}
}

func hasAnySuffix(word string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if len(word) > len(suffix)+1 && word[len(word)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}
