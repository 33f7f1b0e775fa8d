package enrich

// English stop-words excluded from enrichment. Derived from the usual
// NLTK-style list, trimmed to forms that survive tokenization.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "but": {}, "by": {}, "did": {}, "do": {},
	"does": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {},
	"he": {}, "her": {}, "hers": {}, "him": {}, "his": {}, "how": {},
	"i": {}, "if": {}, "in": {}, "is": {}, "it": {}, "its": {}, "me": {},
	"my": {}, "no": {}, "nor": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "so": {}, "than": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {},
	"they": {}, "this": {}, "those": {}, "to": {}, "too": {}, "up": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

func isStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
