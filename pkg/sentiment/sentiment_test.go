package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDeterminism(t *testing.T) {
	text := "Muito obrigado, excelente atendimento!"
	first := Analyze(text)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Analyze(text))
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	result := Analyze("")

	assert.Equal(t, LabelNeutral, result.Sentiment)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, 0.5, result.Confidence)
	assert.Equal(t, 0, result.Details.TotalWords)
}

func TestAnalyzeKnownPositive(t *testing.T) {
	result := Analyze("Muito obrigado, excelente atendimento!")

	assert.Equal(t, LabelPositive, result.Sentiment)
	assert.Greater(t, result.Score, 0.2)
	assert.Equal(t, 2, result.Details.PositiveWords)
}

func TestAnalyzeKnownNegative(t *testing.T) {
	result := Analyze("Péssimo, que problema horrível")

	assert.Equal(t, LabelNegative, result.Sentiment)
	assert.Less(t, result.Score, -0.2)
	assert.Equal(t, 3, result.Details.NegativeWords)
}

func TestAnalyzeTieIsNeutral(t *testing.T) {
	result := Analyze("excelente mas ruim")

	require.Equal(t, result.Details.PositiveWords, result.Details.NegativeWords)
	assert.Equal(t, LabelNeutral, result.Sentiment)
	assert.Equal(t, 0.0, result.Score)
}

func TestAnalyzeTokenHittingBothLists(t *testing.T) {
	// "insatisfeito" contains the positive substring "satisfeito" and is
	// itself a negative keyword, so both counters move.
	result := Analyze("insatisfeito")

	assert.Equal(t, 1, result.Details.PositiveWords)
	assert.Equal(t, 1, result.Details.NegativeWords)
	assert.Equal(t, LabelNeutral, result.Sentiment)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestAnalyzeClampInvariants(t *testing.T) {
	inputs := []string{
		"",
		"ótimo ótimo ótimo ótimo ótimo ótimo ótimo ótimo",
		"ruim ruim ruim ruim ruim ruim ruim ruim ruim ruim",
		"texto sem emoção nenhuma",
		"obrigado 🙏 ótimo 😀",
	}
	for _, in := range inputs {
		result := Analyze(in)
		assert.GreaterOrEqual(t, result.Score, -1.0, in)
		assert.LessOrEqual(t, result.Score, 1.0, in)
		assert.GreaterOrEqual(t, result.Confidence, 0.5, in)
		assert.LessOrEqual(t, result.Confidence, 0.95, in)
	}
}

func TestAnalyzeCaseInsensitive(t *testing.T) {
	assert.Equal(t, Analyze("OBRIGADO"), Analyze("obrigado"))
}

func TestAnalyzeEmojiStripped(t *testing.T) {
	// Emoji are removed before tokenizing, so they never count as words.
	result := Analyze("😀 😀 😀")
	assert.Equal(t, 0, result.Details.TotalWords)
	assert.Equal(t, LabelNeutral, result.Sentiment)
}
