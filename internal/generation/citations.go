package generation

import (
	"regexp"
	"strconv"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

const excerptLimit = 200

var markerRe = regexp.MustCompile(`\[(\d+)\]`)

// CitationLinker resolves the [n] markers a model emitted back to the
// chunks that were in the prompt.
type CitationLinker struct {
	logger *observability.Logger
}

// NewCitationLinker creates a citation linker.
func NewCitationLinker(logger *observability.Logger) *CitationLinker {
	return &CitationLinker{logger: logger}
}

// Link extracts citations from answer text. Distinct markers are kept in
// first-occurrence order; a marker outside [1, len(retrieved)] has no
// matching chunk and is dropped. An answer with no markers yields no
// citations.
func (l *CitationLinker) Link(answerText string, retrieved []retrieval.RetrievedChunk) []*storage.Citation {
	seen := make(map[int]bool)
	var citations []*storage.Citation

	for _, match := range markerRe.FindAllStringSubmatch(answerText, -1) {
		marker, err := strconv.Atoi(match[1])
		if err != nil || seen[marker] {
			continue
		}
		seen[marker] = true

		if marker < 1 || marker > len(retrieved) {
			l.logger.Warn().
				Int("marker", marker).
				Int("context_size", len(retrieved)).
				Msg("Answer cites a source that was not in the prompt")
			continue
		}

		rc := retrieved[marker-1]
		citations = append(citations, &storage.Citation{
			ChunkID:       rc.Chunk.ID,
			Marker:        marker,
			CitationOrder: len(citations) + 1,
			Excerpt:       excerpt(rc.Chunk.Text),
			Similarity:    rc.Similarity,
		})
	}
	return citations
}

func excerpt(text string) string {
	if len(text) <= excerptLimit {
		return text
	}
	cut := excerptLimit
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut] + "..."
}
