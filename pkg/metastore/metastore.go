// Package metastore is the MetaStore component: parameterised SQL over the
// fixed schema in spec §6, backed by raw pgx rather than a generated query
// layer (the teacher's sqlc-generated internal/db package was not available
// to build on; grounded instead on the hand-written pgx query style in the
// teacher's pkg/incident.Store).
package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("metastore: not found")

// Image mirrors the images table (spec §6).
type Image struct {
	ID               string     `json:"id"`
	UserID           *string    `json:"userId,omitempty"`
	VerseReference   string     `json:"verseReference"`
	VerseText        string     `json:"verseText"`
	Prompt           string     `json:"prompt"`
	StylePreset      string     `json:"stylePreset"`
	BlobKey          *string    `json:"blobKey,omitempty"`
	FileSize         int64      `json:"fileSize"`
	Format           string     `json:"format"`
	Width            int        `json:"width"`
	Height           int        `json:"height"`
	Tags             []string   `json:"tags"`
	ModerationStatus string     `json:"moderationStatus"`
	GeneratedAt      time.Time  `json:"generatedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Verse mirrors the verses table.
type Verse struct {
	Reference string
	Text      string
	Book      string
	Chapter   int
	Verse     int
	Translation string
	Theme     *string
	LastUsed  *time.Time
	UseCount  int
}

// ModerationEntry mirrors the moderation_queue table.
type ModerationEntry struct {
	ID            int64
	ImageID       string
	FlaggedReason string
	FlaggedAt     time.Time
	ReviewedAt    *time.Time
	ReviewerID    *string
	Decision      *string
}

// DailyMetric mirrors the usage_metrics table.
type DailyMetric struct {
	Date                  string
	TotalGenerations      int64
	SuccessfulGenerations int64
	FailedGenerations     int64
	TotalStorageBytes     int64
	UniqueUsers           int64
}

// Store implements MetaStore against Postgres via pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a metastore Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// withTimeout bounds every MetaStore call at 5 seconds per spec §5.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// InsertImage inserts a new image row (spec §4.6 step 5, fixed column order
// per §3).
func (s *Store) InsertImage(ctx context.Context, img Image) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	tags, err := json.Marshal(img.Tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	const q = `INSERT INTO images (
		id, user_id, verse_reference, verse_text, prompt, style_preset,
		r2_key, file_size, format, width, height, tags, moderation_status,
		generated_at, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())`

	_, err = s.pool.Exec(cctx, q,
		img.ID, img.UserID, img.VerseReference, img.VerseText, img.Prompt,
		img.StylePreset, img.BlobKey, img.FileSize, img.Format, img.Width,
		img.Height, tags, img.ModerationStatus, img.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}
	return nil
}

const imageColumns = `id, user_id, verse_reference, verse_text, prompt, style_preset,
	r2_key, file_size, format, width, height, tags, moderation_status,
	generated_at, created_at`

func scanImage(row pgx.Row) (Image, error) {
	var img Image
	var tags []byte
	err := row.Scan(
		&img.ID, &img.UserID, &img.VerseReference, &img.VerseText, &img.Prompt,
		&img.StylePreset, &img.BlobKey, &img.FileSize, &img.Format, &img.Width,
		&img.Height, &tags, &img.ModerationStatus, &img.GeneratedAt, &img.CreatedAt,
	)
	if err != nil {
		return Image{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &img.Tags); err != nil {
			return Image{}, fmt.Errorf("unmarshalling tags: %w", err)
		}
	}
	return img, nil
}

// GetImage returns a single image by ID.
func (s *Store) GetImage(ctx context.Context, id string) (Image, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(cctx, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Image{}, ErrNotFound
		}
		return Image{}, fmt.Errorf("getting image: %w", err)
	}
	return img, nil
}

// GetImageMetadata returns the raw JSON-encodable metadata for an image,
// satisfying cache.MetadataSource.
func (s *Store) GetImageMetadata(ctx context.Context, imageID string) (json.RawMessage, error) {
	img, err := s.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(img)
}

// GetModerationStatus returns the current moderation status for an image.
func (s *Store) GetModerationStatus(ctx context.Context, imageID string) (string, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	var status string
	err := s.pool.QueryRow(cctx, `SELECT moderation_status FROM images WHERE id = $1`, imageID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting moderation status: %w", err)
	}
	return status, nil
}

// UpdateModerationStatus sets the moderation status for an image, clearing
// the blob key when rejected (Image invariant: blobKey populated iff
// moderationStatus != rejected).
func (s *Store) UpdateModerationStatus(ctx context.Context, imageID, status string) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `UPDATE images SET moderation_status = $2,
		r2_key = CASE WHEN $2 = 'rejected' THEN NULL ELSE r2_key END
		WHERE id = $1`
	tag, err := s.pool.Exec(cctx, q, imageID, status)
	if err != nil {
		return fmt.Errorf("updating moderation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteImage removes an image row.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(cctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return nil
}

// CleanupCandidate is a row shape scoped to identifyCleanupCandidates.
type CleanupCandidate struct {
	ID          string
	BlobKey     *string
	Tags        []string
	GeneratedAt time.Time
}

// ListImagesOlderThan returns images generated before cutoff, for Cleanup's
// identifyCleanupCandidates step.
func (s *Store) ListImagesOlderThan(ctx context.Context, cutoff time.Time) ([]CleanupCandidate, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(cctx, `SELECT id, r2_key, tags, generated_at FROM images WHERE generated_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing aged images: %w", err)
	}
	defer rows.Close()

	var out []CleanupCandidate
	for rows.Next() {
		var c CleanupCandidate
		var tags []byte
		if err := rows.Scan(&c.ID, &c.BlobKey, &tags, &c.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scanning cleanup candidate: %w", err)
		}
		if len(tags) > 0 {
			_ = json.Unmarshal(tags, &c.Tags)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListAllImages returns every image row, for Cleanup's createBackup step.
func (s *Store) ListAllImages(ctx context.Context) ([]Image, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(cctx, `SELECT `+imageColumns+` FROM images ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing all images: %w", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// --- Verses ---

// GetVerse looks up a verse by book/chapter/verse, case-insensitive on book
// (spec §4.2 getVerse MetaStore fallback).
func (s *Store) GetVerse(ctx context.Context, book string, chapter, verse int) (Verse, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `SELECT reference, text, book, chapter, verse, translation, theme, last_used, use_count
		FROM verses WHERE LOWER(book) = LOWER($1) AND chapter = $2 AND verse = $3`
	row := s.pool.QueryRow(cctx, q, book, chapter, verse)
	return scanVerse(row)
}

func scanVerse(row pgx.Row) (Verse, error) {
	var v Verse
	err := row.Scan(&v.Reference, &v.Text, &v.Book, &v.Chapter, &v.Verse, &v.Translation, &v.Theme, &v.LastUsed, &v.UseCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Verse{}, ErrNotFound
		}
		return Verse{}, err
	}
	return v, nil
}

// PickDailyVerse selects the fairest verse for daily rotation: least
// recently used, ties broken by lowest use count (spec §4.2's "never-used
// before least-used" ordering).
func (s *Store) PickDailyVerse(ctx context.Context) (Verse, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `SELECT reference, text, book, chapter, verse, translation, theme, last_used, use_count
		FROM verses ORDER BY last_used ASC NULLS FIRST, use_count ASC LIMIT 1`
	row := s.pool.QueryRow(cctx, q)
	v, err := scanVerse(row)
	if err != nil {
		return Verse{}, err
	}
	return v, nil
}

// RecordVerseUsed performs the compensating write after a successful daily
// verse pick.
func (s *Store) RecordVerseUsed(ctx context.Context, reference string) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `UPDATE verses SET last_used = now(), use_count = use_count + 1 WHERE reference = $1`
	_, err := s.pool.Exec(cctx, q, reference)
	if err != nil {
		return fmt.Errorf("recording verse use: %w", err)
	}
	return nil
}

// SearchVerses performs case-insensitive substring match against reference,
// text, and book, capped at 50 results (spec §4.2 searchVerses).
func (s *Store) SearchVerses(ctx context.Context, query string) ([]Verse, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	like := "%" + query + "%"
	const q = `SELECT reference, text, book, chapter, verse, translation, theme, last_used, use_count
		FROM verses
		WHERE reference ILIKE $1 OR text ILIKE $1 OR book ILIKE $1
		LIMIT 50`
	rows, err := s.pool.Query(cctx, q, like)
	if err != nil {
		return nil, fmt.Errorf("searching verses: %w", err)
	}
	defer rows.Close()

	var out []Verse
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning verse row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Moderation queue ---

// InsertModerationEntry appends a flag-for-review row.
func (s *Store) InsertModerationEntry(ctx context.Context, imageID, reason string) (ModerationEntry, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `INSERT INTO moderation_queue (image_id, flagged_reason, flagged_at)
		VALUES ($1, $2, now()) RETURNING id, image_id, flagged_reason, flagged_at, reviewed_at, reviewer_id, decision`
	row := s.pool.QueryRow(cctx, q, imageID, reason)
	return scanModerationEntry(row)
}

func scanModerationEntry(row pgx.Row) (ModerationEntry, error) {
	var e ModerationEntry
	err := row.Scan(&e.ID, &e.ImageID, &e.FlaggedReason, &e.FlaggedAt, &e.ReviewedAt, &e.ReviewerID, &e.Decision)
	return e, err
}

// ListPendingModeration returns the oldest un-reviewed entries.
func (s *Store) ListPendingModeration(ctx context.Context, limit int) ([]ModerationEntry, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `SELECT id, image_id, flagged_reason, flagged_at, reviewed_at, reviewer_id, decision
		FROM moderation_queue WHERE reviewed_at IS NULL ORDER BY flagged_at ASC LIMIT $1`
	rows, err := s.pool.Query(cctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending moderation: %w", err)
	}
	defer rows.Close()

	var out []ModerationEntry
	for rows.Next() {
		e, err := scanModerationEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning moderation entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveModerationEntry closes the oldest open entry for imageID with a
// decision.
func (s *Store) ResolveModerationEntry(ctx context.Context, imageID string, decision string, reviewerID *string) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `UPDATE moderation_queue SET reviewed_at = now(), reviewer_id = $2, decision = $3
		WHERE id = (
			SELECT id FROM moderation_queue WHERE image_id = $1 AND reviewed_at IS NULL
			ORDER BY flagged_at ASC LIMIT 1
		)`
	tag, err := s.pool.Exec(cctx, q, imageID, reviewerID, decision)
	if err != nil {
		return fmt.Errorf("resolving moderation entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Usage metrics ---

// TodayAggregate is the shape Scheduler's metrics job computes before
// upserting.
type TodayAggregate struct {
	TotalGenerations      int64
	SuccessfulGenerations int64
	FailedGenerations     int64
	TotalStorageBytes     int64
	UniqueUsers           int64
}

// AggregateToday computes today's counts, counts by moderation status, sum
// of file size, and distinct user count directly from the images table
// (spec §4.10 metrics job).
func (s *Store) AggregateToday(ctx context.Context) (TodayAggregate, error) {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `SELECT
		count(*) FILTER (WHERE generated_at::date = now()::date),
		count(*) FILTER (WHERE generated_at::date = now()::date AND moderation_status = 'approved'),
		count(*) FILTER (WHERE generated_at::date = now()::date AND moderation_status = 'rejected'),
		COALESCE(sum(file_size) FILTER (WHERE generated_at::date = now()::date), 0),
		count(DISTINCT user_id) FILTER (WHERE generated_at::date = now()::date)
		FROM images`

	var agg TodayAggregate
	err := s.pool.QueryRow(cctx, q).Scan(
		&agg.TotalGenerations, &agg.SuccessfulGenerations, &agg.FailedGenerations,
		&agg.TotalStorageBytes, &agg.UniqueUsers,
	)
	if err != nil {
		return TodayAggregate{}, fmt.Errorf("aggregating today's metrics: %w", err)
	}
	return agg, nil
}

// UpsertDailyMetric is idempotent on date (spec §3 DailyMetric).
func (s *Store) UpsertDailyMetric(ctx context.Context, date string, agg TodayAggregate) error {
	cctx, cancel := withTimeout(ctx)
	defer cancel()

	const q = `INSERT INTO usage_metrics (date, total_generations, successful_generations, failed_generations, total_storage_bytes, unique_users)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (date) DO UPDATE SET
			total_generations = EXCLUDED.total_generations,
			successful_generations = EXCLUDED.successful_generations,
			failed_generations = EXCLUDED.failed_generations,
			total_storage_bytes = EXCLUDED.total_storage_bytes,
			unique_users = EXCLUDED.unique_users`
	_, err := s.pool.Exec(cctx, q, date, agg.TotalGenerations, agg.SuccessfulGenerations, agg.FailedGenerations, agg.TotalStorageBytes, agg.UniqueUsers)
	if err != nil {
		return fmt.Errorf("upserting daily metric: %w", err)
	}
	return nil
}
