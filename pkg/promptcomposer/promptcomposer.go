// Package promptcomposer turns a verse and style preset into a deterministic
// generation prompt (spec §4.3). Grounded on the runbook summary lookup in
// the teacher's pkg/incident.Store — a fixed-shape text template populated
// from structured fields — generalised here to theme-keyword extraction.
package promptcomposer

import (
	"fmt"
	"regexp"
	"strings"
)

// themeKeywords maps a lowercase keyword to the theme it signals. Order is
// irrelevant; ties are broken by first match in verse text token order.
var themeKeywords = map[string]string{
	"love":     "love",
	"hope":     "hope",
	"strength": "strength",
	"strong":   "strength",
	"peace":    "peace",
	"joy":      "joy",
	"light":    "light",
	"nature":   "nature",
	"wisdom":   "wisdom",
	"wise":     "wisdom",
}

// styleAdjectives gives each closed-set style preset its modifier phrase.
var styleAdjectives = map[string]string{
	"modern":     "modern, clean lines, vibrant colors",
	"classic":    "classical painting style, renaissance lighting",
	"minimalist": "minimalist, simple shapes, muted palette",
	"artistic":   "artistic, painterly, expressive brushwork",
}

var wordPattern = regexp.MustCompile(`[A-Za-z]+`)

// Verse is the minimal shape PromptComposer needs from a resolved verse.
type Verse struct {
	Reference string
	Text      string
}

// Compose builds the deterministic prompt string described in spec §4.3.
// An empty or unknown style falls back to "modern".
func Compose(verse Verse, style string) string {
	if style == "" {
		style = "modern"
	}
	adjectives, ok := styleAdjectives[style]
	if !ok {
		adjectives = styleAdjectives["modern"]
	}

	theme := extractTheme(verse.Text)
	excerpt := firstNChars(verse.Text, 100)

	return fmt.Sprintf(
		"Inspirational biblical scene, theme of %s, %s, %s, high quality, detailed, professional",
		theme, excerpt, adjectives,
	)
}

// extractTheme finds the first theme keyword present in the verse text,
// falling back to "faith" when none match.
func extractTheme(text string) string {
	lower := strings.ToLower(text)
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if theme, ok := themeKeywords[word]; ok {
			return theme
		}
	}
	return "faith"
}

func firstNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
