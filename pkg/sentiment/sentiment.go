// Package sentiment assigns a coarse emotional label to short Portuguese
// texts using fixed keyword lists. No model, no randomness: the same input
// always yields the same result.
package sentiment

import (
	"strings"

	"github.com/forPelevin/gomoji"
)

type Label string

const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

const (
	wordWeight        = 0.3
	positiveThreshold = 0.2
	negativeThreshold = -0.2
	baseConfidence    = 0.5
	confidenceStep    = 0.15
	maxConfidence     = 0.95
)

var positiveWords = []string{
	"obrigado", "obrigada", "excelente", "ótimo", "otimo", "bom", "boa",
	"maravilhoso", "perfeito", "adorei", "amei", "gostei", "incrível",
	"top", "legal", "feliz", "satisfeito", "parabéns", "sucesso", "rápido",
}

var negativeWords = []string{
	"péssimo", "pessimo", "ruim", "horrível", "horrivel", "problema",
	"erro", "demora", "lento", "insatisfeito", "reclamação", "reclamar",
	"cancelar", "absurdo", "decepção", "decepcionado", "raiva", "caro",
	"difícil", "nunca",
}

type Details struct {
	PositiveWords int `json:"positive_words"`
	NegativeWords int `json:"negative_words"`
	TotalWords    int `json:"total_words"`
}

type Result struct {
	Sentiment  Label   `json:"sentiment"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Details    Details `json:"details"`
}

// Analyze scores a text against the fixed keyword lists. Matching is
// case-insensitive substring containment per whitespace token, so a single
// token can hit both lists (e.g. "insatisfeito" contains "satisfeito").
func Analyze(text string) Result {
	normalized := strings.ToLower(gomoji.RemoveEmojis(text))
	tokens := strings.Fields(normalized)

	var positiveHits, negativeHits int
	for _, token := range tokens {
		for _, word := range positiveWords {
			if strings.Contains(token, word) {
				positiveHits++
				break
			}
		}
		for _, word := range negativeWords {
			if strings.Contains(token, word) {
				negativeHits++
				break
			}
		}
	}

	score := clamp(float64(positiveHits)*wordWeight-float64(negativeHits)*wordWeight, -1, 1)

	label := LabelNeutral
	switch {
	case score > positiveThreshold:
		label = LabelPositive
	case score < negativeThreshold:
		label = LabelNegative
	}

	confidence := baseConfidence + float64(positiveHits+negativeHits)*confidenceStep
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return Result{
		Sentiment:  label,
		Score:      score,
		Confidence: confidence,
		Details: Details{
			PositiveWords: positiveHits,
			NegativeWords: negativeHits,
			TotalWords:    len(tokens),
		},
	}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
