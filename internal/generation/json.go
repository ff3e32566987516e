package generation

import (
	"strings"
)

const fence = "```"

// ExtractJSON returns the JSON document embedded in generated text. A fenced
// block (```json or a bare ```) wins over surrounding prose; an unterminated
// fence runs to the end of the text. Returns ErrNoJSON when nothing is left.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if i := strings.Index(text, fence+"json"); i >= 0 {
		text = cutFence(text[i+len(fence)+len("json"):])
	} else if i := strings.Index(text, fence); i >= 0 {
		text = cutFence(text[i+len(fence):])
	}

	if text == "" {
		return "", ErrNoJSON
	}
	return text, nil
}

func cutFence(rest string) string {
	if end := strings.Index(rest, fence); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
