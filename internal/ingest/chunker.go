package ingest

import (
	"strings"
)

// ChunkSpan is a single chunk produced from one page. Text is always the
// exact substring Page.Text[StartChar:EndChar], so the page can be rebuilt
// from its chunks.
type ChunkSpan struct {
	Index      int // global position across the whole document
	PageNumber int
	Text       string
	StartChar  int
	EndChar    int
	TokenCount int
}

// Chunker splits extracted pages into overlapping token windows. Cut points
// prefer paragraph breaks, then sentence ends, then token boundaries; a
// hard character cut happens only inside pathological unbroken runs.
type Chunker struct {
	targetTokens  int
	overlapTokens int
	maxChunkChars int
}

// ChunkerConfig holds chunking parameters.
type ChunkerConfig struct {
	TargetTokens  int // Default: 500
	OverlapTokens int // Default: 100
	MaxChunkChars int // Default: 2000
}

// NewChunker creates a chunker, applying defaults for unset values.
func NewChunker(cfg ChunkerConfig) *Chunker {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 500
	}
	if cfg.OverlapTokens < 0 || cfg.OverlapTokens >= cfg.TargetTokens {
		cfg.OverlapTokens = cfg.TargetTokens / 5
	}
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = 2000
	}
	return &Chunker{
		targetTokens:  cfg.TargetTokens,
		overlapTokens: cfg.OverlapTokens,
		maxChunkChars: cfg.MaxChunkChars,
	}
}

// tokenSpan marks one whitespace-delimited token inside a page.
type tokenSpan struct {
	start int
	end   int
}

// Chunk splits every page of a document. Chunk indexes are global and
// assigned in page order, so the same input always yields the same spans.
func (c *Chunker) Chunk(doc *ExtractedDocument) []ChunkSpan {
	var chunks []ChunkSpan
	index := 0
	for _, page := range doc.Pages {
		for _, span := range c.chunkPage(page.Text) {
			span.Index = index
			span.PageNumber = page.Number
			chunks = append(chunks, span)
			index++
		}
	}
	return chunks
}

func (c *Chunker) chunkPage(text string) []ChunkSpan {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	pageEnd := tokens[len(tokens)-1].end

	var spans []ChunkSpan
	startChar := tokens[0].start
	for {
		t0 := firstTokenAfter(tokens, startChar)
		tEnd := t0 + c.targetTokens
		if tEnd > len(tokens) {
			tEnd = len(tokens)
		}
		endChar := tokens[tEnd-1].end

		if endChar > startChar && tEnd < len(tokens) {
			endChar = c.snapToBoundary(text, startChar, endChar)
		}
		if endChar-startChar > c.maxChunkChars {
			endChar = hardCut(text, startChar+c.maxChunkChars)
		}
		if endChar <= startChar {
			// startChar sits inside an unbroken run longer than the window
			endChar = hardCut(text, startChar+c.maxChunkChars)
			if endChar <= startChar {
				endChar = pageEnd
			}
		}

		chunkText := text[startChar:endChar]
		spans = append(spans, ChunkSpan{
			Text:       chunkText,
			StartChar:  startChar,
			EndChar:    endChar,
			TokenCount: len(strings.Fields(chunkText)),
		})

		if endChar >= pageEnd {
			break
		}

		if endChar < tokens[t0].end {
			// cut landed mid-token; resume exactly where it stopped
			startChar = endChar
			continue
		}
		lastTok := lastTokenEnding(tokens, endChar)
		next := lastTok + 1 - c.overlapTokens
		if next < 0 {
			// hard cut consumed fewer tokens than the overlap
			next = 0
		}
		for next < len(tokens) && tokens[next].start <= startChar {
			next++
		}
		startChar = tokens[next].start
	}
	return spans
}

// firstTokenAfter returns the index of the first token that extends past
// the cursor.
func firstTokenAfter(tokens []tokenSpan, cursor int) int {
	for i, tok := range tokens {
		if tok.end > cursor {
			return i
		}
	}
	return len(tokens) - 1
}

// snapToBoundary pulls a tentative cut back to the nearest paragraph break
// or sentence end, as long as that keeps at least half the window.
func (c *Chunker) snapToBoundary(text string, start, end int) int {
	window := text[start:end]
	minCut := len(window) / 2

	if idx := strings.LastIndex(window, "\n\n"); idx >= minCut {
		return start + idx
	}
	best := -1
	for _, sep := range []string{". ", ".\n", "! ", "? "} {
		if idx := strings.LastIndex(window, sep); idx >= minCut && idx+len(sep) > best {
			best = idx + len(sep) - 1
		}
	}
	if best >= 0 {
		return start + best
	}
	return end
}

// hardCut avoids splitting a UTF-8 sequence when forced to cut mid-run.
func hardCut(text string, at int) int {
	if at >= len(text) {
		return len(text)
	}
	for at > 0 && !utf8RuneStart(text[at]) {
		at--
	}
	return at
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// lastTokenEnding returns the index of the last token whose end is at or
// before the cut position.
func lastTokenEnding(tokens []tokenSpan, cut int) int {
	last := 0
	for i, tok := range tokens {
		if tok.end <= cut {
			last = i
		} else {
			break
		}
	}
	return last
}

func tokenize(text string) []tokenSpan {
	var tokens []tokenSpan
	inToken := false
	start := 0
	for i := 0; i < len(text); i++ {
		isSpace := text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r'
		if !isSpace && !inToken {
			inToken = true
			start = i
		} else if isSpace && inToken {
			inToken = false
			tokens = append(tokens, tokenSpan{start: start, end: i})
		}
	}
	if inToken {
		tokens = append(tokens, tokenSpan{start: start, end: len(text)})
	}
	return tokens
}
