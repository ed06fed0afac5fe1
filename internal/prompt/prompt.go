// Package prompt renders retrieved context and conversation history into a
// single instruction-following prompt.
//
// Assemble is a pure function: identical inputs always produce an identical
// string, and the caller-provided hit order is preserved verbatim.
package prompt

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/knowledged/internal/retrieval"
)

// DefaultMaxHistoryTurns is the number of most recent conversation turns
// included in the prompt (three user/assistant exchanges).
const DefaultMaxHistoryTurns = 6

// systemInstruction tells the model how to use the retrieved context.
const systemInstruction = "You are a helpful AI assistant. Answer user questions using the provided context from the knowledge base. " +
	"Use only the information from the context when possible. If the context doesn't contain relevant information, " +
	"you can provide a general answer but clearly state that it's based on general knowledge, not the knowledge base. " +
	"Cite sources by referencing the DOC number like [DOC 1] when using information from the context."

// noDocumentsContext replaces the context block when retrieval produced no
// hits; the context section is never rendered empty.
const noDocumentsContext = "No relevant documents found in the knowledge base."

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Assemble renders the system instruction, a numbered context block with
// citation markers, the most recent maxHistoryTurns conversation turns and
// the user query into one prompt ending with the assistant role cue.
//
// Hits are numbered in the order received; the assembler never re-sorts.
// maxHistoryTurns <= 0 selects DefaultMaxHistoryTurns.
func Assemble(query string, hits []retrieval.Hit, history []Message, maxHistoryTurns int) string {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = DefaultMaxHistoryTurns
	}

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\nKNOWLEDGE BASE CONTEXT:\n")
	b.WriteString(contextBlock(hits))
	b.WriteString(historyBlock(history, maxHistoryTurns))
	b.WriteString("\n\nUser question: ")
	b.WriteString(query)
	b.WriteString("\n\nAssistant:")
	return b.String()
}

func contextBlock(hits []retrieval.Hit) string {
	if len(hits) == 0 {
		return noDocumentsContext
	}

	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("[DOC %d | score=%.3f]\n%s\n", i+1, hit.Score, hit.Text)
	}
	return strings.Join(parts, "\n---\n")
}

// historyBlock renders the most recent maxTurns turns, truncating from the
// oldest end. It is omitted entirely when there is no history.
func historyBlock(history []Message, maxTurns int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}

	parts := make([]string, len(history))
	for i, msg := range history {
		parts[i] = fmt.Sprintf("%s: %s", roleLabel(msg.Role), msg.Content)
	}
	return "\n\nRECENT CONVERSATION:\n" + strings.Join(parts, "\n")
}

func roleLabel(role string) string {
	if role == "user" {
		return "User"
	}
	return "Assistant"
}
