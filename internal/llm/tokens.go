package llm

import (
	"strings"
	"unicode/utf8"
)

// EstimateTokens approximates BPE token counts at roughly four characters per
// token, never less than one token per word.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	byChars := (utf8.RuneCountInString(content) + 3) / 4
	words := len(strings.Fields(content))
	if words > byChars {
		return words
	}
	return byChars
}
