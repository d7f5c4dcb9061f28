package bot

import (
	"strings"
	"unicode/utf16"

	"github.com/rivo/uniseg"
)

// DefaultMaxMessageLen leaves headroom under Telegram's 4096 limit.
const DefaultMaxMessageLen = 4000

// Chunk splits text into pieces of at most max UTF-16 code units, the unit
// Telegram counts message length in. Cuts fall on grapheme cluster
// boundaries, preferring the last newline inside the window. Concatenating
// the chunks yields text exactly.
//
// A single rune wider than max (an astral rune with max 1) still gets a
// chunk of its own.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 || UTF16Len(text) <= max {
		return []string{text}
	}

	var (
		clusters []string
		widths   []int
	)
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		s := g.Str()
		clusters = append(clusters, s)
		widths = append(widths, UTF16Len(s))
	}

	var chunks []string
	for start := 0; start < len(clusters); {
		// A single cluster longer than the budget can only be split by rune.
		if widths[start] > max {
			chunks = append(chunks, splitRunes(clusters[start], max)...)
			start++
			continue
		}

		count, end, lastNL := 0, start, -1
		for end < len(clusters) && count+widths[end] <= max {
			count += widths[end]
			if strings.Contains(clusters[end], "\n") {
				lastNL = end
			}
			end++
		}
		if end < len(clusters) && lastNL >= start {
			end = lastNL + 1
		}
		chunks = append(chunks, strings.Join(clusters[start:end], ""))
		start = end
	}
	return chunks
}

// UTF16Len is the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func splitRunes(s string, max int) []string {
	var (
		out   []string
		b     strings.Builder
		count int
	)
	for _, r := range s {
		w := runeUnits(r)
		if count > 0 && count+w > max {
			out = append(out, b.String())
			b.Reset()
			count = 0
		}
		b.WriteRune(r)
		count += w
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
