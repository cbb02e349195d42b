// Package validator implements the business-rule validation layer in front
// of generation requests: prompt shape, blocklist enforcement, and verse
// reference grammar. It is distinct from the struct-tag shape validation in
// internal/httpserver (go-playground/validator) — this package encodes rules
// that depend on runtime-loaded configuration (the blocklist) and on each
// other (sanitisation and validation share one word list).
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/verseforge/verseforge/pkg/cache"
)

// verseRefPattern implements the grammar from the spec: an optional leading
// numeral (e.g. "1" in "1 Corinthians"), book name, chapter:verse, and an
// optional end verse.
var verseRefPattern = regexp.MustCompile(`^(\d\s)?[A-Za-z\s]+\s+(\d+):(\d+)(-(\d+))?$`)

// verseRefCapturePattern is the same grammar with the book name captured as
// its own group, used only for parsing (not validation — see
// ValidateVerseReference for the shape check).
var verseRefCapturePattern = regexp.MustCompile(`^((?:\d\s)?[A-Za-z\s]+?)\s+(\d+):(\d+)(?:-(\d+))?$`)

const (
	minPromptLength = 10
	maxPromptLength = 1000
	maxRefLength    = 100
)

var defaultBlocklist = []string{
	"violence", "gore", "nude", "nudity", "explicit", "sexual",
	"weapon", "blood", "hate", "slur",
}

// Result is the outcome of a validation check.
type Result struct {
	Valid  bool
	Errors []string
}

func ok() Result   { return Result{Valid: true} }
func fail(msgs ...string) Result { return Result{Valid: false, Errors: msgs} }

// Validator holds the mutable blocklist shared by validation and
// sanitisation, refreshed from Cache on demand.
type Validator struct {
	mu        sync.RWMutex
	blocklist map[string]struct{}
	cache     *cache.Cache
}

// New creates a Validator seeded with the compiled-in default blocklist.
func New(c *cache.Cache) *Validator {
	v := &Validator{cache: c, blocklist: make(map[string]struct{}, len(defaultBlocklist))}
	for _, w := range defaultBlocklist {
		v.blocklist[strings.ToLower(w)] = struct{}{}
	}
	return v
}

// LoadBlocklist refreshes the blocklist from Cache key
// "config:moderation-blocklist". On absence or failure it keeps the current
// (default or previously loaded) list.
func (v *Validator) LoadBlocklist(ctx context.Context) {
	var words []string
	if err := v.cache.GetConfig(ctx, "moderation-blocklist", &words); err != nil || len(words) == 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocklist = make(map[string]struct{}, len(words))
	for _, w := range words {
		v.blocklist[strings.ToLower(w)] = struct{}{}
	}
}

// AddBlockedTerm adds a term to the in-memory blocklist (administrative use).
func (v *Validator) AddBlockedTerm(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocklist[strings.ToLower(term)] = struct{}{}
}

// RemoveBlockedTerm removes a term from the in-memory blocklist.
func (v *Validator) RemoveBlockedTerm(term string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.blocklist, strings.ToLower(term))
}

func (v *Validator) isBlocked(word string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, blocked := v.blocklist[strings.ToLower(word)]
	return blocked
}

var wordSplit = regexp.MustCompile(`\b[\p{L}\p{N}']+\b`)

// ValidatePrompt checks prompt length and blocklist membership.
func (v *Validator) ValidatePrompt(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(trimmed) < minPromptLength {
		return fail("invalid_format")
	}
	if len(trimmed) > maxPromptLength {
		return fail("invalid_format")
	}

	for _, word := range wordSplit.FindAllString(trimmed, -1) {
		if v.isBlocked(word) {
			return fail("blocked_terms")
		}
	}
	return ok()
}

// SanitizePrompt removes blocklisted tokens word-by-word and collapses the
// resulting whitespace gaps. It never inserts content and is idempotent.
func (v *Validator) SanitizePrompt(text string) string {
	words := strings.Fields(text)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		stripped := wordSplit.FindString(w)
		if stripped != "" && v.isBlocked(stripped) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// VerseRef is a parsed, validated verse reference.
type VerseRef struct {
	Book      string
	Chapter   int
	Verse     int
	EndVerse  int // 0 when absent
}

// ValidateVerseReference checks the reference grammar, length, and ordering
// invariant endVerse > verse.
func (v *Validator) ValidateVerseReference(ref string) Result {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return fail("missing_required_field")
	}
	if len(trimmed) > maxRefLength {
		return fail("invalid_verse_reference")
	}
	if !verseRefPattern.MatchString(trimmed) {
		return fail("invalid_verse_reference")
	}

	m := verseRefPattern.FindStringSubmatch(trimmed)
	chapter, _ := strconv.Atoi(m[2])
	verse, _ := strconv.Atoi(m[3])
	if chapter <= 0 || verse <= 0 {
		return fail("invalid_verse_reference")
	}
	if m[5] != "" {
		endVerse, _ := strconv.Atoi(m[5])
		if endVerse <= verse {
			return fail("invalid_verse_reference")
		}
	}
	return ok()
}

// ParseVerseReference parses a reference string validated by
// ValidateVerseReference into its components.
func ParseVerseReference(ref string) (VerseRef, error) {
	trimmed := strings.TrimSpace(ref)
	m := verseRefCapturePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return VerseRef{}, fmt.Errorf("invalid verse reference: %q", ref)
	}

	chapter, _ := strconv.Atoi(m[2])
	verse, _ := strconv.Atoi(m[3])
	endVerse := 0
	if m[4] != "" {
		endVerse, _ = strconv.Atoi(m[4])
	}

	return VerseRef{
		Book:     strings.TrimSpace(m[1]),
		Chapter:  chapter,
		Verse:    verse,
		EndVerse: endVerse,
	}, nil
}

var stylePresets = map[string]struct{}{
	"modern":     {},
	"classic":    {},
	"minimalist": {},
	"artistic":   {},
}

// ValidateStylePreset allows an empty value (defaulted later by the caller);
// otherwise the value must be one of the closed preset set.
func (v *Validator) ValidateStylePreset(s string) Result {
	if s == "" {
		return ok()
	}
	if _, known := stylePresets[s]; !known {
		return fail("invalid_format")
	}
	return ok()
}

// GenerationRequest mirrors the POST /api/generate body for validation
// purposes.
type GenerationRequest struct {
	VerseReference string
	VerseText      string
	StylePreset    string
	CustomPrompt   string
	RequestID      string
}

// ValidateGenerationRequest accumulates errors across all field validators.
func (v *Validator) ValidateGenerationRequest(req GenerationRequest) Result {
	var errs []string

	if r := v.ValidateVerseReference(req.VerseReference); !r.Valid {
		errs = append(errs, r.Errors...)
	}
	if r := v.ValidateStylePreset(req.StylePreset); !r.Valid {
		errs = append(errs, r.Errors...)
	}
	if req.CustomPrompt != "" {
		if r := v.ValidatePrompt(req.CustomPrompt); !r.Valid {
			errs = append(errs, r.Errors...)
		}
	}

	if len(errs) > 0 {
		return fail(errs...)
	}
	return ok()
}
