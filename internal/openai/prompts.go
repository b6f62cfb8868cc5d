package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/researchq/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const attributionInstruction = `The document text below is split into numbered excerpts.
Answer using only these excerpts and reply with a JSON object of the form
{"findings":[{"excerpt":<excerpt number>,"content":"<answer drawn from that excerpt>"}]}.
Leave out excerpts that contain nothing relevant.`

func queryMessages(query string, chunks []domain.DocumentChunk) []openai.ChatCompletionMessage {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nText:\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Content)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}
}

func attributedMessages(query string, chunks []domain.DocumentChunk) []openai.ChatCompletionMessage {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d]\n%s\n\n", i+1, c.Content)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: attributionInstruction},
		{Role: openai.ChatMessageRoleUser, Content: strings.TrimRight(b.String(), "\n")},
	}
}

func synthesisMessages(overallQuery string, findings []domain.Finding) ([]openai.ChatCompletionMessage, error) {
	if overallQuery == "" {
		overallQuery = domain.DefaultOverallQuery
	}
	answers := make([]string, 0, len(findings))
	for _, f := range findings {
		answers = append(answers, f.Content)
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode findings: %w", err)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: overallQuery + "\n\n" + string(payload)},
	}, nil
}
