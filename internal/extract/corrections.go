package extract

import "regexp"

const (
	fenceTag = "```mermaid"
	keyword  = "flowchart"
)

// correction rewrites one known transcription error.
type correction struct {
	pattern *regexp.Regexp
	replace string
}

// fenceCorrections fix misspelled fence tags ("```mermind", "```mermai d",
// "``` mermaid").
var fenceCorrections = []correction{
	{regexp.MustCompile("(?i)```\\s*mermind"), fenceTag},
	{regexp.MustCompile("(?i)```\\s*mermai\\s*d"), fenceTag},
}

// transposedKeyword matches "flowchatr" (letters swapped).
var transposedKeyword = correction{regexp.MustCompile(`(?i)flowchatr\b`), keyword}

// splitKeyword matches "flowchat t" and "flowchatt".
var splitKeyword = correction{regexp.MustCompile(`(?i)flowchat\s*t`), keyword}

var keywordCorrections = []correction{transposedKeyword, splitKeyword}

func apply(s string, cs []correction) string {
	for _, c := range cs {
		s = c.pattern.ReplaceAllLiteralString(s, c.replace)
	}
	return s
}

// Correct rewrites every known misspelling of the fence tag and the
// flowchart keyword, case-insensitively.
func Correct(s string) string {
	return CorrectKeyword(apply(s, fenceCorrections))
}

// CorrectKeyword rewrites misspellings of the flowchart keyword only.
func CorrectKeyword(s string) string {
	return apply(s, keywordCorrections)
}
