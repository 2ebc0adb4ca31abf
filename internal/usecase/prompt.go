package usecase

import (
	"strings"

	"flowchart-mermaid/internal/domain"
)

// BuildPrompt returns the fixed instruction sent with every image.
func BuildPrompt() string {
	return strings.Join([]string{
		"You are an expert at reading flowcharts. Look carefully at this flowchart image and convert it into Mermaid flowchart code.",
		"",
		"Steps:",
		nodeShapeRules(),
		"",
		connectionRules(),
		"",
		directionRules(),
		"",
		"Output Contract:",
		outputContract(),
		"",
		"Example:",
		"```mermaid",
		"flowchart TD",
		"    A[Start] --> B[Process data]",
		"    B --> C{Succeeded?}",
		"    C -->|yes| D[Save result]",
		"    C -->|no| E[Handle error]",
		"    D --> F[End]",
		"    E --> F",
		"```",
		"",
		"Reminders:",
		"- Output only the mermaid code block, no explanations.",
		"- Every node must be connected.",
		"- Node text must match the text in the image exactly.",
		"- The syntax must strictly follow the Mermaid standard.",
	}, "\n")
}

func nodeShapeRules() string {
	return strings.Join([]string{
		"1) Identify every node:",
		"   - rectangle: [text]",
		"   - diamond (decision): {text}",
		"   - circle or ellipse: ((text))",
		"   - rounded rectangle: (text)",
	}, "\n")
}

func connectionRules() string {
	return strings.Join([]string{
		"2) Identify connections:",
		"   - follow arrow directions and connecting lines",
		"   - note branches and merge points",
		"   - keep labels written on connecting lines",
	}, "\n")
}

func directionRules() string {
	return strings.Join([]string{
		"3) Determine layout direction:",
		"   - top to bottom: flowchart TD",
		"   - left to right: flowchart LR",
	}, "\n")
}

func outputContract() string {
	return strings.Join([]string{
		"- Start with ```mermaid and end with ```.",
		"- Use simple letters as node IDs: A, B, C, D...",
		"- Preserve the logic and the text of the original diagram.",
		"- Label decision branches with |condition|.",
	}, "\n")
}

// buildImageMessages assembles the single user turn carrying the prompt and
// the inline image.
func buildImageMessages(prompt, mime, imageB64 string) []domain.ChatMessage {
	return []domain.ChatMessage{{
		Role: "user",
		Content: []domain.ContentPart{
			domain.TextPart(prompt),
			domain.ImagePart(mime, imageB64),
		},
	}}
}
