// Package generation produces grounded answers with citations and scores
// how much they deserve to be trusted.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/llm"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/retrieval"
)

const systemRole = "You are a due diligence analyst."

// NoAnswerText is what the model is instructed to reply when the corpus
// does not cover the question.
const NoAnswerText = "Information not found in provided documents"

// Generator drafts an answer from retrieved context.
type Generator struct {
	logger      *observability.Logger
	chat        llm.ChatClient
	model       string
	temperature float64
}

// NewGenerator creates a generator using the given chat client.
func NewGenerator(logger *observability.Logger, chat llm.ChatClient, model string, temperature float64) *Generator {
	if temperature <= 0 {
		temperature = 0.1
	}
	return &Generator{
		logger:      logger,
		chat:        chat,
		model:       model,
		temperature: temperature,
	}
}

// Generate produces an answer grounded in the retrieved chunks. The prompt
// numbers chunks [1]..[k] in retrieval order; those are the markers the
// model is told to cite.
func (g *Generator) Generate(ctx context.Context, question string, retrieved []retrieval.RetrievedChunk) (string, error) {
	prompt := BuildPrompt(question, retrieved)

	answer, err := g.chat.Complete(ctx, llm.Request{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemRole},
			{Role: "user", Content: prompt},
		},
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("generate answer: model returned empty content")
	}
	return answer, nil
}

// BuildPrompt assembles the generation prompt with numbered context blocks.
func BuildPrompt(question string, retrieved []retrieval.RetrievedChunk) string {
	var contextText strings.Builder
	for i, rc := range retrieved {
		fmt.Fprintf(&contextText, "\n[%d] (Page %d)\n%s\n", i+1, rc.Chunk.PageNumber, rc.Chunk.Text)
	}

	return fmt.Sprintf(`You are answering a due diligence questionnaire based on company documents.

Question: %s

Available Context from Documents:
%s

Instructions:
1. Answer the question based ONLY on the provided context
2. If the answer cannot be found in the context, say "%s"
3. Include citation numbers [1], [2], etc. in your answer where you reference information
4. Be concise and factual
5. Do not make assumptions beyond what's stated in the documents

Answer:`, question, contextText.String(), NoAnswerText)
}
