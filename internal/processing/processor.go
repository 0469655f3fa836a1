package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/DeafMist/api-directory/internal/models"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace  = regexp.MustCompile(`\s+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {}, "of": {}, "and": {}, "or": {},
	"on": {}, "with": {}, "that": {}, "this": {}, "is": {}, "are": {}, "can": {}, "you": {},
	"me": {}, "my": {}, "i": {}, "we": {}, "some": {}, "any": {}, "about": {}, "from": {},
	"please": {}, "want": {}, "need": {}, "looking": {}, "which": {}, "what": {}, "there": {},
}

// requestWords are verbs and nouns users wrap around the subject they are searching for.
var requestWords = map[string]struct{}{
	"find": {}, "show": {}, "give": {}, "list": {}, "search": {}, "get": {}, "recommend": {},
	"suggest": {}, "api": {}, "apis": {}, "free": {}, "public": {}, "good": {}, "best": {},
	"useful": {}, "data": {},
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, squeezes whitespace, and removes URLs.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	decoded = strings.TrimSpace(decoded)
	return decoded
}

// ExtractKeywords returns the most frequent words that are not stop-words.
func ExtractKeywords(text string, limit, minLen int) []string {
	freq := make(map[string]int)
	for _, token := range tokens(text) {
		if len([]rune(token)) < minLen {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		freq[token]++
	}

	if len(freq) == 0 {
		return nil
	}

	type kv struct {
		word  string
		count int
	}

	pairs := make([]kv, 0, len(freq))
	for word, count := range freq {
		pairs = append(pairs, kv{word: word, count: count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count == pairs[j].count {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].count > pairs[j].count
	})

	max := limit
	if max <= 0 || max > len(pairs) {
		max = len(pairs)
	}

	keywords := make([]string, 0, max)
	for i := 0; i < max; i++ {
		keywords = append(keywords, pairs[i].word)
	}

	return keywords
}

// QueryTerms reduces a conversational request such as "Find APIs for weather data"
// to the words that describe the subject, in their original order.
func QueryTerms(text string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, token := range tokens(text) {
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, skip := requestWords[token]; skip {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	return terms
}

// BuildDocumentID hashes the fields that identify a record across fetches.
func BuildDocumentID(rec models.APIRecord) string {
	s := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(rec.Name)) + "|" + strings.TrimSpace(rec.URL)))
	return hex.EncodeToString(s[:])
}

// Summarize returns the first sentence of text, cut to maxWords words.
// Returns empty string if text is empty.
func Summarize(text string, maxWords int) string {
	if text == "" {
		return ""
	}

	textWithoutURLs := RemoveURLs(text)

	sentenceEnd := strings.IndexAny(textWithoutURLs, ".!?")
	var firstSentence string
	if sentenceEnd > 0 {
		firstSentence = strings.TrimSpace(textWithoutURLs[:sentenceEnd])
	} else {
		firstSentence = textWithoutURLs
	}

	words := strings.Fields(firstSentence)
	if len(words) == 0 {
		return ""
	}

	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
		return strings.Join(words, " ") + "..."
	}

	return strings.Join(words, " ")
}

func tokens(text string) []string {
	clean := strings.ToLower(CleanText(text))
	if clean == "" {
		return nil
	}
	fields := strings.Fields(clean)
	out := fields[:0]
	for _, token := range fields {
		token = strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if token != "" {
			out = append(out, token)
		}
	}
	return out
}
