package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_PicksFrequentSentence(t *testing.T) {
	text := "Go is a language. Go programs compile fast and Go tooling is simple. The weather was nice."
	assert.Equal(t, "Go programs compile fast and Go tooling is simple.", Summarize(text, 1))
}

func TestSummarize_KeepsOriginalOrder(t *testing.T) {
	text := "Paris hosts the tower. Lunch was late. The tower in Paris is iron."
	assert.Equal(t, "Paris hosts the tower. The tower in Paris is iron.", Summarize(text, 2))
}

func TestSummarize_ShortText(t *testing.T) {
	assert.Equal(t, "Only one sentence.", Summarize("  Only one sentence.  ", 3))
	assert.Equal(t, "no punctuation", Summarize("no punctuation", 0))
	assert.Equal(t, "", Summarize("", 1))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "Zürich ...", Truncate("Zürich is a city", 10))
}
