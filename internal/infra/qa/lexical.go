package qa

import (
	"context"
	"strings"
	"unicode"

	domain "github.com/yanqian/forum-inference/internal/domain/inference"
	apperrors "github.com/yanqian/forum-inference/pkg/errors"
)

// LexicalExtractor avoids network calls by picking the passage sentence with
// the highest term overlap against the question. Useful for local dev and
// tests; offsets are exact character positions like the hosted model's.
type LexicalExtractor struct{}

// NewLexicalExtractor constructs the extractor.
func NewLexicalExtractor() *LexicalExtractor {
	return &LexicalExtractor{}
}

type span struct {
	start int
	end   int
}

// Extract scores each sentence by shared lowercase terms with the question
// and returns the best one with its character offsets, End exclusive.
func (e *LexicalExtractor) Extract(_ context.Context, question, passage string) (domain.Answer, error) {
	if strings.TrimSpace(passage) == "" {
		return domain.Answer{}, apperrors.Wrap("invalid_input", "passage cannot be empty", nil)
	}

	runes := []rune(passage)
	spans := sentenceSpans(runes)
	terms := termSet(question)

	best := spans[0]
	bestScore := -1
	for _, s := range spans {
		score := overlap(string(runes[s.start:s.end]), terms)
		if score > bestScore {
			best = s
			bestScore = score
		}
	}
	return domain.Answer{
		Text:  string(runes[best.start:best.end]),
		Start: best.start,
		End:   best.end,
	}, nil
}

// sentenceSpans splits on sentence terminators, keeping rune offsets and
// trimming surrounding whitespace from each span. Always returns at least one
// span for non-empty input.
func sentenceSpans(runes []rune) []span {
	var spans []span
	start := 0
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' {
			if s, ok := trimSpan(runes, start, i+1); ok {
				spans = append(spans, s)
			}
			start = i + 1
		}
	}
	if s, ok := trimSpan(runes, start, len(runes)); ok {
		spans = append(spans, s)
	}
	if len(spans) == 0 {
		spans = append(spans, span{start: 0, end: len(runes)})
	}
	return spans
}

func trimSpan(runes []rune, start, end int) (span, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return span{}, false
	}
	return span{start: start, end: end}, true
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if word != "" {
			terms[word] = struct{}{}
		}
	}
	return terms
}

func overlap(sentence string, terms map[string]struct{}) int {
	count := 0
	for word := range termSet(sentence) {
		if _, ok := terms[word]; ok {
			count++
		}
	}
	return count
}

var _ domain.AnswerExtractor = (*LexicalExtractor)(nil)
