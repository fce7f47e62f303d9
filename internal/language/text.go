package language

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	slashRun        = regexp.MustCompile(`(\s*/\s*){2,}`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	spaceBeforePunc = regexp.MustCompile(`\s+([.,!?;:])`)
)

// CleanTranscript tidies raw recogniser output. Runs of two or more slashes
// (a common hallucination on noise) become a single space, whitespace is
// collapsed, whitespace before punctuation is removed and the result is
// trimmed.
func CleanTranscript(text string) string {
	if text == "" {
		return ""
	}
	text = slashRun.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = spaceBeforePunc.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// sentenceTerminators end a sentence. The Arabic question mark is included
// so Arabic input splits the same way as Latin script.
const sentenceTerminators = "؟?.!"

// SplitSentences splits text after every terminator, trims each piece and
// drops the empty ones. The terminator stays attached to its sentence.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	for i, r := range text {
		if strings.ContainsRune(sentenceTerminators, r) {
			end := i + utf8.RuneLen(r)
			if s := strings.TrimSpace(text[start:end]); s != "" {
				out = append(out, s)
			}
			start = end
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
