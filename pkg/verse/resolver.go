// Package verse implements the VerseResolver component: reference parsing,
// lookup (embedded set → MetaStore), daily-rotation selection, and search
// (spec §4.2). Grounded on the teacher's Search/ListFiltered dual-source
// query style in pkg/incident.Store, adapted here to a two-tier
// embedded-then-database lookup instead of a single database tier.
package verse

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/validator"
)

// Entry is a resolved verse, sourced from either the embedded set or
// MetaStore.
type Entry struct {
	Reference   string
	Book        string
	Chapter     int
	Verse       int
	Text        string
	Translation string
	Theme       string
}

// notFoundError indicates no verse matched the given reference.
type notFoundError struct{ ref string }

func (e notFoundError) Error() string { return "verse not found: " + e.ref }

// IsNotFound reports whether err is a verse-not-found error.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// Store is the subset of metastore.Store the resolver needs.
type Store interface {
	GetVerse(ctx context.Context, book string, chapter, verse int) (metastore.Verse, error)
	PickDailyVerse(ctx context.Context) (metastore.Verse, error)
	RecordVerseUsed(ctx context.Context, reference string) error
	SearchVerses(ctx context.Context, query string) ([]metastore.Verse, error)
}

// Resolver implements VerseResolver.
type Resolver struct {
	store  Store
	logger *slog.Logger
	rand   *rand.Rand
}

// New creates a Resolver. store may be nil in embedded-only test
// configurations.
func New(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// byEmbeddedRef indexes the embedded set by canonical reference for O(1)
// lookup, built once at package init.
var byEmbeddedRef = func() map[string]Entry {
	m := make(map[string]Entry, len(embedded))
	for _, e := range embedded {
		m[strings.ToLower(e.Reference)] = e
	}
	return m
}()

// GetVerse looks up a reference: embedded map first, then MetaStore.
func (r *Resolver) GetVerse(ctx context.Context, ref string) (Entry, error) {
	parsed, err := validator.ParseVerseReference(ref)
	if err != nil {
		return Entry{}, notFoundError{ref: ref}
	}

	if e, ok := byEmbeddedRef[strings.ToLower(canonicalRef(parsed))]; ok {
		return e, nil
	}

	if r.store == nil {
		return Entry{}, notFoundError{ref: ref}
	}

	v, err := r.store.GetVerse(ctx, parsed.Book, parsed.Chapter, parsed.Verse)
	if err != nil {
		return Entry{}, notFoundError{ref: ref}
	}
	return fromRow(v), nil
}

func canonicalRef(v validator.VerseRef) string {
	if v.EndVerse > 0 {
		return v.Book + " " + itoa(v.Chapter) + ":" + itoa(v.Verse) + "-" + itoa(v.EndVerse)
	}
	return v.Book + " " + itoa(v.Chapter) + ":" + itoa(v.Verse)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func fromRow(v metastore.Verse) Entry {
	theme := ""
	if v.Theme != nil {
		theme = *v.Theme
	}
	return Entry{
		Reference:   v.Reference,
		Book:        v.Book,
		Chapter:     v.Chapter,
		Verse:       v.Verse,
		Text:        v.Text,
		Translation: v.Translation,
		Theme:       theme,
	}
}

// GetDailyVerse selects the fairest verse for rotation (least recently
// used, ties broken by lowest use count) and performs the compensating
// write. If MetaStore is unreachable it falls back to a uniform random pick
// from the embedded set and skips the update (spec §4.2).
func (r *Resolver) GetDailyVerse(ctx context.Context) (Entry, error) {
	if r.store != nil {
		v, err := r.store.PickDailyVerse(ctx)
		if err == nil {
			if err := r.store.RecordVerseUsed(ctx, v.Reference); err != nil {
				r.logger.Warn("recording verse use failed", "error", err, "reference", v.Reference)
			}
			return fromRow(v), nil
		}
		r.logger.Warn("metastore unreachable for daily verse, falling back to embedded set", "error", err)
	}

	return embedded[r.rand.Intn(len(embedded))], nil
}

// SearchVerses performs case-insensitive substring match against reference,
// text, and book across both the embedded set and MetaStore, de-duplicating
// by reference and capping at 50 results.
func (r *Resolver) SearchVerses(ctx context.Context, query string) ([]Entry, error) {
	lowerQuery := strings.ToLower(query)
	seen := make(map[string]struct{})
	var out []Entry

	for _, e := range embedded {
		if matchesEmbedded(e, lowerQuery) {
			seen[strings.ToLower(e.Reference)] = struct{}{}
			out = append(out, e)
			if len(out) >= 50 {
				return out, nil
			}
		}
	}

	if r.store != nil {
		rows, err := r.store.SearchVerses(ctx, query)
		if err != nil {
			r.logger.Warn("metastore search failed", "error", err, "query", query)
			return out, nil
		}
		for _, v := range rows {
			key := strings.ToLower(v.Reference)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, fromRow(v))
			if len(out) >= 50 {
				break
			}
		}
	}

	return out, nil
}

func matchesEmbedded(e Entry, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(e.Reference), lowerQuery) ||
		strings.Contains(strings.ToLower(e.Text), lowerQuery) ||
		strings.Contains(strings.ToLower(e.Book), lowerQuery)
}
