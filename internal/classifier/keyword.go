package classifier

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/nao1215/toxguard/internal/model"
	"golang.org/x/text/cases"
)

// KeywordLabel is the label reported by the keyword backend.
const KeywordLabel = "keyword"

// DefaultKeywords is the list used when no keyword list is configured.
var DefaultKeywords = []string{
	"idiot",
	"moron",
	"stupid",
	"loser",
	"dumbass",
	"scum",
	"shut up",
	"kill yourself",
	"hate you",
}

// Keyword flags texts that contain any configured word or phrase.
//
// Matching is case folded and token based, so "Idiot!" matches "idiot"
// but "idiotic" does not. Single words are first tested against a bloom
// filter so texts without any candidate token skip the exact lookup.
type Keyword struct {
	mu      sync.RWMutex
	filter  *bloom.BloomFilter
	words   map[string]struct{}
	phrases []string
}

// NewKeyword builds a keyword backend. An empty list falls back to
// DefaultKeywords.
func NewKeyword(words []string) *Keyword {
	k := &Keyword{}
	k.SetKeywords(words)
	return k
}

// Name implements Backend.
func (k *Keyword) Name() string {
	return "keyword"
}

// SetKeywords replaces the keyword list.
func (k *Keyword) SetKeywords(words []string) {
	if len(words) == 0 {
		words = DefaultKeywords
	}

	set := make(map[string]struct{}, len(words))
	var phrases []string
	filter := bloom.NewWithEstimates(uint(max(len(words), 16)), 0.01)
	for _, w := range words {
		tokens := tokenize(w)
		switch len(tokens) {
		case 0:
			continue
		case 1:
			set[tokens[0]] = struct{}{}
			filter.AddString(tokens[0])
		default:
			phrases = append(phrases, strings.Join(tokens, " "))
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.filter = filter
	k.words = set
	k.phrases = phrases
}

// Keywords returns the normalized words and phrases.
func (k *Keyword) Keywords() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.words)+len(k.phrases))
	for w := range k.words {
		out = append(out, w)
	}
	return append(out, k.phrases...)
}

// Classify implements Backend.
func (k *Keyword) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	out := make([][]model.LabelScore, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := 0.0
		if k.Match(text) {
			score = 1
		}
		out[i] = []model.LabelScore{{Label: KeywordLabel, Score: score}}
	}
	return out, nil
}

// Match reports whether text contains a keyword.
func (k *Keyword) Match(text string) bool {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, t := range tokens {
		if !k.filter.TestString(t) {
			continue
		}
		if _, ok := k.words[t]; ok {
			return true
		}
	}
	if len(k.phrases) == 0 {
		return false
	}
	joined := " " + strings.Join(tokens, " ") + " "
	for _, p := range k.phrases {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}

// tokenize case folds s and splits it into letter and digit runs.
// Apostrophes inside a word are kept so "don't" stays one token.
func tokenize(s string) []string {
	folded := cases.Fold().String(s)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
