package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_SingleSmallPage(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 100, OverlapTokens: 20})
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: "The quick brown fox jumps over the lazy dog."}}}

	chunks := chunker.Chunk(doc)

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, doc.Pages[0].Text, chunks[0].Text)
	assert.Equal(t, 9, chunks[0].TokenCount)
}

func TestChunker_EmptyPageYieldsNothing(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: "   \n\t  "}}}

	assert.Empty(t, chunker.Chunk(doc))
}

func TestChunker_SpansAreExactSubstrings(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 30, OverlapTokens: 5})
	text := strings.Repeat("Revenue grew steadily across the fiscal year. Operating margins improved as well. ", 40)
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: text}}}

	chunks := chunker.Chunk(doc)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.Equal(t, text[chunk.StartChar:chunk.EndChar], chunk.Text)
		assert.Greater(t, chunk.EndChar, chunk.StartChar)
	}
}

func TestChunker_CoversWholePage(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 25, OverlapTokens: 5})
	text := strings.Repeat("Security controls are reviewed quarterly by the audit committee. ", 60)
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: text}}}

	chunks := chunker.Chunk(doc)
	require.NotEmpty(t, chunks)

	// Consecutive chunks overlap or touch. Nothing between a chunk's end
	// and the next chunk's start may be lost.
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i].StartChar, chunks[i-1].EndChar,
			"gap between chunk %d and %d", i-1, i)
	}
	last := chunks[len(chunks)-1]
	assert.Equal(t, strings.TrimRight(text, " "), text[:last.EndChar])
}

func TestChunker_Deterministic(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 40, OverlapTokens: 10})
	text := strings.Repeat("Data is encrypted at rest with AES-256.\n\nBackups run nightly to a second region. ", 50)
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: text}}}

	first := chunker.Chunk(doc)
	second := chunker.Chunk(doc)

	assert.Equal(t, first, second)
}

func TestChunker_GlobalIndexAcrossPages(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 10, OverlapTokens: 2})
	long := strings.Repeat("word after word after word. ", 20)
	doc := &ExtractedDocument{Pages: []Page{
		{Number: 1, Text: long},
		{Number: 2, Text: long},
	}}

	chunks := chunker.Chunk(doc)
	require.Greater(t, len(chunks), 2)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[len(chunks)-1].PageNumber)
}

func TestChunker_PrefersParagraphBoundary(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 20, OverlapTokens: 4})
	para := strings.Repeat("alpha beta gamma delta epsilon ", 3)
	text := para + "\n\n" + para + "\n\n" + para + "\n\n" + para
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: text}}}

	chunks := chunker.Chunk(doc)
	require.Greater(t, len(chunks), 1)

	// The first cut should land on a paragraph break rather than mid-sentence.
	assert.True(t, strings.HasPrefix(text[chunks[0].EndChar:], "\n\n"),
		"first chunk should end at a paragraph break, got %q", chunks[0].Text[len(chunks[0].Text)-20:])
}

func TestChunker_LongTokensUnderDefaults(t *testing.T) {
	// Pages full of long unbroken tokens (base64 blobs, URLs) force the
	// char limit to cut after fewer tokens than the overlap width. The
	// overlap cursor must clamp instead of walking off the front.
	chunker := NewChunker(ChunkerConfig{})
	text := strings.TrimRight(strings.Repeat(strings.Repeat("k", 39)+" ", 200), " ")
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: text}}}

	var chunks []ChunkSpan
	require.NotPanics(t, func() { chunks = chunker.Chunk(doc) })
	require.NotEmpty(t, chunks)

	prev := -1
	for _, chunk := range chunks {
		assert.Equal(t, text[chunk.StartChar:chunk.EndChar], chunk.Text)
		assert.Greater(t, chunk.StartChar, prev, "chunks must make forward progress")
		prev = chunk.StartChar
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
}

func TestChunker_HardCutOnUnbrokenRun(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetTokens: 50, OverlapTokens: 10, MaxChunkChars: 200})
	run := strings.Repeat("x", 1000)
	doc := &ExtractedDocument{Pages: []Page{{Number: 1, Text: run}}}

	chunks := chunker.Chunk(doc)
	require.Greater(t, len(chunks), 1)

	var rebuilt strings.Builder
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 200)
		rebuilt.WriteString(chunk.Text)
	}
	assert.Equal(t, run, rebuilt.String())
}
