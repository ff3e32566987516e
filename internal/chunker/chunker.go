// Package chunker splits question bank text into bounded chunks that never cut
// a question in half.
//
// Split first looks for question boundaries: a line that starts with a type
// label (单选题, 多选题, 判断题, 填空题, 简答题 or the English "single choice",
// "multiple choice", "true/false", "fill in the blank", "short answer")
// followed by a delimiter, or a numbered line such as "12. ... 单选 ..." that
// mentions a type. When no boundaries are found and the text is too large for
// one chunk, blank lines are used instead. Units are then packed greedily.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultTargetSize is used when Split is called with a non-positive size.
const DefaultTargetSize = 1000

const (
	lineSeparator      = "\n"
	paragraphSeparator = "\n\n"
)

const typeLabels = `单选题?|多选题?|判断题?|填空题?|简答题?` +
	`|single[ -]choice|multiple[ -]choice|true/false|true or false|fill[ -]in[ -]the[ -]blanks?|short[ -]answer`

var (
	// typeStart matches "单选题：", "判断.", "Single choice: ..." and similar.
	typeStart = regexp.MustCompile(`(?i)^(?:` + typeLabels + `)(?:\s+questions?)?[：:．.、)）\s]`)
	// numberedType matches "3. (单选) ..." and "12) Which ... [single choice]".
	numberedType = regexp.MustCompile(`(?i)^\d+[．.、)）\s].*(?:单选|多选|判断|填空|简答` +
		`|single[ -]choice|multiple[ -]choice|true/false|true or false|fill[ -]in[ -]the[ -]blanks?|short[ -]answer)`)
)

// IsUnitStart reports whether line begins a new question.
func IsUnitStart(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	return typeStart.MatchString(trimmed) || numberedType.MatchString(trimmed)
}

// Split decomposes text into chunks of at most targetSize characters (runes).
// A unit larger than targetSize becomes a chunk of its own. Whitespace-only
// input yields nil. Split is pure and safe for concurrent use.
func Split(text string, targetSize int) []string {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	units := questionUnits(lines)
	sep := lineSeparator

	if len(units) < 2 && utf8.RuneCountInString(text) > targetSize {
		units = paragraphUnits(lines)
		sep = paragraphSeparator
	}

	return pack(units, targetSize, sep)
}

// questionUnits groups lines so that every unit starts at a question boundary.
// Lines before the first boundary form a unit of their own.
func questionUnits(lines []string) []string {
	var units []string
	var current []string
	for _, line := range lines {
		if IsUnitStart(line) && len(current) > 0 {
			units = appendUnit(units, current)
			current = nil
		}
		current = append(current, line)
	}
	return appendUnit(units, current)
}

// paragraphUnits groups lines into blank-line separated paragraphs.
func paragraphUnits(lines []string) []string {
	var units []string
	var current []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			units = appendUnit(units, current)
			current = nil
			continue
		}
		current = append(current, line)
	}
	return appendUnit(units, current)
}

func appendUnit(units []string, lines []string) []string {
	unit := strings.TrimSpace(strings.Join(lines, "\n"))
	if unit == "" {
		return units
	}
	return append(units, unit)
}

// pack greedily joins units with sep. The separator counts toward the size.
func pack(units []string, targetSize int, sep string) []string {
	var chunks []string
	var b strings.Builder
	size := 0
	sepSize := utf8.RuneCountInString(sep)

	flush := func() {
		if size > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
			size = 0
		}
	}

	for _, unit := range units {
		n := utf8.RuneCountInString(unit)
		switch {
		case n > targetSize:
			flush()
			chunks = append(chunks, unit)
		case size == 0:
			b.WriteString(unit)
			size = n
		case size+sepSize+n <= targetSize:
			b.WriteString(sep)
			b.WriteString(unit)
			size += sepSize + n
		default:
			flush()
			b.WriteString(unit)
			size = n
		}
	}
	flush()

	return chunks
}
