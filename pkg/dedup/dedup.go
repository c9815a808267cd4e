// Package dedup suppresses redelivery of recently seen chat lines.
//
// The upstream game feed is relayed by several redundant listeners, so
// the same line can arrive more than once. A bounded window of the
// last 100 normalized fingerprints catches those repeats with O(1)
// memory; lines older than the window are deliberately forgotten.
package dedup

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WindowSize is the number of distinct normalized lines remembered.
const WindowSize = 100

var (
	colorCodes   = regexp.MustCompile(`§[0-9a-zA-Z]`)
	rankPrefixes = regexp.MustCompile(`\[[^\]]+\]\s*`)
	channelLabel = regexp.MustCompile(`^Guild\s?>?\s?`)
	symbolNoise  = regexp.MustCompile(`[♲✨★☆♠♣♥♦✓✔•·●○◉◎➤➔→←↑↓↔↕☑✗➜❖]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean strips formatting control sequences, bracketed rank prefixes,
// the leading channel label and decorative symbols from a chat line.
func Clean(msg string) string {
	msg = rankPrefixes.ReplaceAllString(msg, "")
	msg = colorCodes.ReplaceAllString(msg, "")
	msg = channelLabel.ReplaceAllString(msg, "")
	msg = symbolNoise.ReplaceAllString(msg, "")
	return strings.TrimSpace(msg)
}

// Normalize produces the fingerprint used for duplicate comparison.
// If stripping consumes the whole line, the raw line (lowered and
// trimmed) is used instead so degenerate input still deduplicates.
func Normalize(msg string) string {
	cleaned := whitespace.ReplaceAllString(Clean(msg), " ")
	if cleaned == "" {
		return strings.ToLower(strings.TrimSpace(msg))
	}
	return strings.ToLower(cleaned)
}

// Deduplicator tracks the recency window. Safe for concurrent use.
type Deduplicator struct {
	window *lru.Cache[string, struct{}]
}

func New() *Deduplicator {
	// Size is fixed; lru.New only fails on a non-positive size.
	window, err := lru.New[string, struct{}](WindowSize)
	if err != nil {
		panic(err)
	}
	return &Deduplicator{window: window}
}

// IsUnique reports whether the line has not been seen within the
// window, recording it when new. Contains does not refresh recency,
// so entries age out in insertion order: once 100 other distinct
// lines have passed, the same line is accepted again.
func (d *Deduplicator) IsUnique(raw string) bool {
	key := Normalize(raw)
	if d.window.Contains(key) {
		return false
	}
	d.window.Add(key, struct{}{})
	return true
}

// Len returns the number of fingerprints currently in the window.
func (d *Deduplicator) Len() int {
	return d.window.Len()
}
