package retrieval

import "unicode/utf8"

// estimateTokens provides a rough token count. Rune count divided by 2 is a
// conservative estimate that holds for both Turkish and English text.
func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}
