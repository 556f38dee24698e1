package steps

import (
	"fmt"
	"strings"
)

// wordBoundarySlack is how far before the cut a space may be to back off to it.
const wordBoundarySlack = 20

// EnforceMaxCharacters truncates s to at most n characters (runes). When the
// last space of the cut lies within wordBoundarySlack characters of it, the
// result is shortened to that space so a word is not split. n <= 0 disables
// the limit.
func EnforceMaxCharacters(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := runes[:n]
	for i := len(cut) - 1; i > 0 && i > n-wordBoundarySlack; i-- {
		if cut[i] == ' ' {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimSpace(string(cut))
}

// EnforceMaxWords keeps the first n whitespace-delimited words joined by
// single spaces. Text within the limit is returned unchanged.
func EnforceMaxWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}

// limitInstructions is appended to the prompt when a length limit is set.
func limitInstructions(maxChars, maxWords int) string {
	if maxChars <= 0 && maxWords <= 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nIMPORTANT LENGTH REQUIREMENTS:\n")
	if maxChars > 0 {
		fmt.Fprintf(&b, "- Your entire response MUST be under %d characters.\n", maxChars)
	}
	if maxWords > 0 {
		fmt.Fprintf(&b, "- Your entire response MUST be under %d words.\n", maxWords)
	}
	b.WriteString("- Output only the requested content. No preamble, explanations, or meta-commentary.")
	return b.String()
}
