package sentiment

import (
	"context"
	"strings"
	"unicode"
)

var (
	positiveWords = map[string]bool{
		"love": true, "great": true, "excellent": true, "amazing": true, "good": true,
		"happy": true, "thanks": true, "perfect": true, "wonderful": true, "best": true,
		"awesome": true, "fantastic": true, "like": true, "enjoy": true, "helpful": true,
	}
	negativeWords = map[string]bool{
		"hate": true, "terrible": true, "awful": true, "bad": true, "worst": true,
		"angry": true, "refund": true, "broken": true, "cancel": true, "poor": true,
		"disappointed": true, "horrible": true, "useless": true, "slow": true, "never": true,
	}
)

// Lexicon is an offline word-count classifier for dev mode.
type Lexicon struct{}

func NewLexicon() *Lexicon { return &Lexicon{} }

func (l *Lexicon) Name() string { return "lexicon" }

func (l *Lexicon) Predict(_ context.Context, text string) (Prediction, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	pos, neg := 0, 0
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return Prediction{Label: Positive, Score: 0.5}, nil
	}
	if neg > pos {
		return Prediction{Label: Negative, Score: 0.5 + 0.5*float64(neg)/float64(total)}, nil
	}
	return Prediction{Label: Positive, Score: 0.5 + 0.5*float64(pos)/float64(total)}, nil
}
