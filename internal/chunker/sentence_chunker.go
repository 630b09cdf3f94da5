// Package chunker splits corpus records into the passages that get indexed.
package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"wikirag/internal/domain"
)

// Whole indexes each record as a single passage keyed by its URL.
type Whole struct{}

func (Whole) Chunk(record domain.CorpusRecord) ([]domain.Chunk, error) {
	if strings.TrimSpace(record.Text) == "" {
		return nil, nil
	}
	return []domain.Chunk{{
		DocumentID: record.URL,
		ChunkID:    record.URL,
		Text:       record.Text,
	}}, nil
}

// SentenceChunker splits text into sentence-based chunks with overlap.
// Chunk ids are the record URL with a "#n" suffix.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker clamps overlap below sentencesPerChunk so every chunk
// advances by at least one sentence.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`),
	}
}

func (c *SentenceChunker) Chunk(record domain.CorpusRecord) ([]domain.Chunk, error) {
	if record.URL == "" {
		return nil, fmt.Errorf("record %q has no url", record.ID)
	}
	sentences := c.sentences(record.Text)
	var chunks []domain.Chunk
	for i, idx := 0, 0; i < len(sentences); idx++ {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: record.URL,
			ChunkID:    record.URL + "#" + strconv.Itoa(idx),
			Text:       strings.Join(sentences[i:end], " "),
			Index:      idx,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}

func (c *SentenceChunker) sentences(text string) []string {
	raw := c.splitter.FindAllString(text, -1)
	out := raw[:0]
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
