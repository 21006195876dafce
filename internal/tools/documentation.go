package tools

// documentation.go defines the search_documentation retrieval tool.

import (
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/weftworks/loombot/internal/knowledge"
)

// SearchDocumentationInput is the input for the search_documentation tool.
type SearchDocumentationInput struct {
	Query string `json:"query" jsonschema_description:"O que buscar na documentação da empresa"`
}

// documentSeparator joins retrieved chunks in the tool output.
const documentSeparator = "\n\n---\n\n"

// SearchDocumentation retrieves the most relevant documentation chunks for
// the query and returns their concatenated text. Zero matches produce an
// explicit nothing-found message, never an error.
func (h *Handler) SearchDocumentation(ctx *ai.ToolContext, input SearchDocumentationInput) (string, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return "Por favor, informe o que deseja buscar na documentação.", nil
	}

	results, err := h.docs.Search(ctx, query, knowledge.WithTopK(h.topK))
	if err != nil {
		h.logger.Error("documentation search failed", "error", err)
		return fmt.Sprintf("Ocorreu um erro ao buscar na documentação: %v", err), nil
	}
	if len(results) == 0 {
		return "Nenhuma documentação relevante encontrada.", nil
	}

	parts := make([]string, len(results))
	for i, result := range results {
		parts[i] = result.Document.Content
	}

	h.logger.Debug("documentation retrieved", "query_length", len(query), "chunks", len(results))
	return strings.Join(parts, documentSeparator), nil
}
