// Package cleanup implements the Cleanup component: aged-image
// identification, pre-deletion backup, per-id deletion, and backup
// retention (spec §4.9). Grounded on the teacher's pkg/incident cleanup-sweep
// style (select-then-act, per-item failure accumulation without aborting
// the loop) generalised to the identify→backup→execute→prune cycle.
package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/verseforge/verseforge/pkg/blobstore"
	"github.com/verseforge/verseforge/pkg/metastore"
)

// DefaultProtectedTags is the spec's default protected-tag set.
var DefaultProtectedTags = []string{"daily-verse", "favorite"}

// CandidateSet is identifyCleanupCandidates' result.
type CandidateSet struct {
	Eligible  []metastore.CleanupCandidate
	Protected []metastore.CleanupCandidate
}

// BackupResult is createBackup's result.
type BackupResult struct {
	BackupID    string
	Key         string
	RecordCount int
	SizeBytes   int64
}

// ExecuteResult is executeCleanup's result.
type ExecuteResult struct {
	DeletedIDs     []string
	FailedImageIDs []string
	DryRun         bool
}

// RetentionResult is manageBackupRetention's result.
type RetentionResult struct {
	DeletedBackupKeys []string
}

// CycleResult bundles all four sub-results of performCleanupCycle.
type CycleResult struct {
	Candidates CandidateSet
	Backup     BackupResult
	Execute    ExecuteResult
	Retention  RetentionResult
}

// Cleanup orchestrates the identify→backup→execute→prune cycle.
type Cleanup struct {
	blob                blobstore.Blob
	meta                *metastore.Store
	logger              *slog.Logger
	retentionDays       int
	backupRetentionDays int
	protectedTags       map[string]struct{}
	now                 func() time.Time
	idSeq               func() string
}

// New creates a Cleanup. idSeq generates backupId suffixes; tests may
// override it for deterministic keys.
func New(blob blobstore.Blob, meta *metastore.Store, logger *slog.Logger, retentionDays, backupRetentionDays int, protectedTags []string) *Cleanup {
	if len(protectedTags) == 0 {
		protectedTags = DefaultProtectedTags
	}
	set := make(map[string]struct{}, len(protectedTags))
	for _, t := range protectedTags {
		set[t] = struct{}{}
	}
	now := time.Now
	return &Cleanup{
		blob:                blob,
		meta:                meta,
		logger:              logger,
		retentionDays:       retentionDays,
		backupRetentionDays: backupRetentionDays,
		protectedTags:       set,
		now:                 now,
		idSeq:               func() string { return fmt.Sprintf("%d", now().UnixNano()) },
	}
}

func (c *Cleanup) isProtected(tags []string) bool {
	for _, t := range tags {
		if _, ok := c.protectedTags[t]; ok {
			return true
		}
	}
	return false
}

// IdentifyCleanupCandidates partitions aged rows into eligible and protected
// sets (spec §4.9).
func (c *Cleanup) IdentifyCleanupCandidates(ctx context.Context) (CandidateSet, error) {
	cutoff := c.now().AddDate(0, 0, -c.retentionDays)
	rows, err := c.meta.ListImagesOlderThan(ctx, cutoff)
	if err != nil {
		return CandidateSet{}, err
	}

	var set CandidateSet
	for _, r := range rows {
		if c.isProtected(r.Tags) {
			set.Protected = append(set.Protected, r)
		} else {
			set.Eligible = append(set.Eligible, r)
		}
	}
	return set, nil
}

type backupPayload struct {
	BackupID    string             `json:"backupId"`
	Timestamp   time.Time          `json:"timestamp"`
	Version     string             `json:"version"`
	RecordCount int                `json:"recordCount"`
	Records     []metastore.Image  `json:"records"`
}

// CreateBackup serialises all current image rows and stores them at
// backups/d1-{backupId}.json (spec §4.9). Must be called before
// ExecuteCleanup within a cycle.
func (c *Cleanup) CreateBackup(ctx context.Context) (BackupResult, error) {
	records, err := c.meta.ListAllImages(ctx)
	if err != nil {
		return BackupResult{}, err
	}

	backupID := c.idSeq()
	payload := backupPayload{
		BackupID:    backupID,
		Timestamp:   c.now(),
		Version:     "1.0",
		RecordCount: len(records),
		Records:     records,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return BackupResult{}, fmt.Errorf("marshalling backup payload: %w", err)
	}

	key := fmt.Sprintf("backups/d1-%s.json", backupID)
	if err := c.blob.Put(ctx, key, bytes.NewReader(body), "application/json", nil); err != nil {
		return BackupResult{}, fmt.Errorf("writing backup blob: %w", err)
	}

	return BackupResult{BackupID: backupID, Key: key, RecordCount: len(records), SizeBytes: int64(len(body))}, nil
}

// ExecuteCleanup deletes blob+row for each id, accumulating per-id failures
// without aborting the loop. dryRun logs intentions and deletes nothing
// (spec §4.9).
func (c *Cleanup) ExecuteCleanup(ctx context.Context, ids []string, dryRun bool) ExecuteResult {
	result := ExecuteResult{DryRun: dryRun}

	for _, id := range ids {
		if dryRun {
			c.logger.Info("cleanup dry run: would delete image", "image_id", id)
			continue
		}

		img, err := c.meta.GetImage(ctx, id)
		if err != nil {
			c.logger.Warn("cleanup: loading image metadata failed", "error", err, "image_id", id)
			result.FailedImageIDs = append(result.FailedImageIDs, id)
			continue
		}

		if img.BlobKey != nil {
			if err := c.blob.Delete(ctx, *img.BlobKey); err != nil && err != blobstore.ErrNotFound {
				c.logger.Warn("cleanup: deleting blob failed", "error", err, "image_id", id)
				result.FailedImageIDs = append(result.FailedImageIDs, id)
				continue
			}
		}

		if err := c.meta.DeleteImage(ctx, id); err != nil {
			c.logger.Warn("cleanup: deleting image row failed", "error", err, "image_id", id)
			result.FailedImageIDs = append(result.FailedImageIDs, id)
			continue
		}

		result.DeletedIDs = append(result.DeletedIDs, id)
	}

	return result
}

// ManageBackupRetention deletes backup objects older than
// backupRetentionDays (spec §4.9).
func (c *Cleanup) ManageBackupRetention(ctx context.Context) (RetentionResult, error) {
	objects, err := c.blob.List(ctx, "backups/")
	if err != nil {
		return RetentionResult{}, fmt.Errorf("listing backups: %w", err)
	}

	cutoff := c.now().AddDate(0, 0, -c.backupRetentionDays)
	var result RetentionResult
	for _, obj := range objects {
		if obj.UploadedAt.Before(cutoff) {
			if err := c.blob.Delete(ctx, obj.Key); err != nil && err != blobstore.ErrNotFound {
				c.logger.Warn("cleanup: pruning backup failed", "error", err, "key", obj.Key)
				continue
			}
			result.DeletedBackupKeys = append(result.DeletedBackupKeys, obj.Key)
		}
	}
	return result, nil
}

// PerformCleanupCycle orchestrates identify → backup → execute → prune,
// enforcing that the backup step succeeds before any delete is attempted
// (spec §4.9, testable property 12).
func (c *Cleanup) PerformCleanupCycle(ctx context.Context, dryRun bool) (CycleResult, error) {
	candidates, err := c.IdentifyCleanupCandidates(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("identifying cleanup candidates: %w", err)
	}

	backup, err := c.CreateBackup(ctx)
	if err != nil {
		return CycleResult{Candidates: candidates}, fmt.Errorf("creating pre-delete backup: %w", err)
	}

	ids := make([]string, 0, len(candidates.Eligible))
	for _, cand := range candidates.Eligible {
		ids = append(ids, cand.ID)
	}
	execute := c.ExecuteCleanup(ctx, ids, dryRun)

	retention, err := c.ManageBackupRetention(ctx)
	if err != nil {
		c.logger.Warn("cleanup: backup retention sweep failed", "error", err)
	}

	return CycleResult{
		Candidates: candidates,
		Backup:     backup,
		Execute:    execute,
		Retention:  retention,
	}, nil
}
