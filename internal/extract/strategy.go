package extract

import (
	"regexp"
	"strings"
)

// Input is the text a Strategy works on. Raw is the response as received and
// Corrected is Raw after the full spelling-correction pass.
type Input struct {
	Raw       string
	Corrected string
}

// Strategy is one rung of the extraction ladder.
type Strategy interface {
	Name() string
	Attempt(in Input) (string, bool)
}

// FencedBlock takes the body of the first ```mermaid fenced block.
type FencedBlock struct{}

var fencedBlockPattern = regexp.MustCompile("(?i)```mermaid\\s*\\n([\\s\\S]*?)\\n```")

func (FencedBlock) Name() string { return "fenced_block" }

func (FencedBlock) Attempt(in Input) (string, bool) {
	m := fencedBlockPattern.FindStringSubmatch(in.Corrected)
	if m == nil {
		return "", false
	}
	body := CorrectKeyword(strings.TrimSpace(m[1]))
	return body, body != ""
}

// KeywordScan walks the raw response line by line. Accumulation starts at the
// first line mentioning the keyword and stops at a fence line or end of input.
// Blank lines are skipped. Only the split-keyword misspelling is repaired per
// line; the transposed form is left to LoosePattern, so body lines keep it.
type KeywordScan struct{}

func (KeywordScan) Name() string { return "keyword_scan" }

func (KeywordScan) Attempt(in Input) (string, bool) {
	var (
		lines   []string
		started bool
	)
	for _, line := range strings.Split(in.Raw, "\n") {
		fixed := apply(line, []correction{splitKeyword})
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.Contains(strings.ToLower(fixed), keyword):
			started = true
			lines = append(lines, strings.TrimSpace(fixed))
		case !started || trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "```"):
			return joinLines(lines)
		default:
			lines = append(lines, trimmed)
		}
	}
	return joinLines(lines)
}

func joinLines(lines []string) (string, bool) {
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// LoosePattern captures from "flowchart <direction>" up to the nearest blank
// line, fence marker or end of input.
type LoosePattern struct{}

var looseHeadPattern = regexp.MustCompile(`(?i)flowchart\s+\w+`)

func (LoosePattern) Name() string { return "loose_pattern" }

func (LoosePattern) Attempt(in Input) (string, bool) {
	loc := looseHeadPattern.FindStringIndex(in.Corrected)
	if loc == nil {
		return "", false
	}
	text := in.Corrected
	end := len(text)
	for p := loc[1]; p <= len(text); p++ {
		rest := text[p:]
		if strings.HasPrefix(rest, "\n\n") || strings.HasPrefix(rest, "```") || rest == "" || rest == "\n" {
			end = p
			break
		}
	}
	out := strings.TrimSpace(text[loc[0]:end])
	return out, out != ""
}
