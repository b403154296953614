package queue

import (
	"context"
	"fmt"
	"time"
)

// Transition performs a compare-and-swap state change. The gallery must
// currently be in one of the fromSet states and the edge to the target must
// be part of the state machine; otherwise ErrConflict is returned and the
// stored state is unchanged. Concurrent callers racing on the same gallery
// are linearized by the store: exactly one wins, the rest observe
// ErrConflict.
func (s *Store) Transition(ctx context.Context, id int64, fromSet []State, to State) error {
	if len(fromSet) == 0 {
		return fmt.Errorf("transition to %s: empty from-set", to)
	}
	if _, ok := stateSet[to]; !ok {
		return fmt.Errorf("transition: unknown target state %q", to)
	}

	// Only sources whose edge to the target is legal participate in the
	// CAS; an illegal edge in the from-set can then never coerce state.
	legal := fromSet[:0:0]
	for _, from := range fromSet {
		if EdgeAllowed(from, to) {
			legal = append(legal, from)
		}
	}
	if len(legal) == 0 {
		return fmt.Errorf("%w: no legal edge to %s from %v", ErrConflict, to, fromSet)
	}

	placeholders := makePlaceholders(len(legal))
	args := make([]any, 0, len(legal)+4)

	// Entering Paused captures the current state for resume; leaving any
	// other way clears it.
	var query string
	if to == StatePaused {
		query = `UPDATE galleries SET state = ?, resume_state = state, updated_at = ? WHERE id = ? AND state IN (` + placeholders + `)`
	} else {
		query = `UPDATE galleries SET state = ?, resume_state = NULL, updated_at = ? WHERE id = ? AND state IN (` + placeholders + `)`
	}
	args = append(args, to, time.Now().UTC().Format(time.RFC3339Nano), id)
	for _, from := range legal {
		args = append(args, from)
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: gallery %d is %s, expected one of %v", ErrConflict, id, current.State, fromSet)
}

// Resume returns a paused gallery to the queue. The recorded resume state is
// honored except for Uploading, which routes through Queued so the manager
// re-claims the gallery instead of leaving it ownerless.
func (s *Store) Resume(ctx context.Context, id int64) error {
	gallery, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if gallery == nil {
		return ErrNotFound
	}
	if gallery.State != StatePaused {
		return fmt.Errorf("%w: gallery %d is %s, expected paused", ErrConflict, id, gallery.State)
	}
	target := gallery.ResumeState
	if target != StateQueued && target != StateUploading {
		target = StateQueued
	}
	// A gallery resumed into Uploading has no worker attached yet; it goes
	// back through Queued so the manager claims it normally.
	if target == StateUploading {
		target = StateQueued
	}
	return s.Transition(ctx, id, []State{StatePaused}, target)
}

// ResetStuckUploading returns galleries left in Uploading by a crashed or
// killed process back to Queued. Called once on daemon start.
func (s *Store) ResetStuckUploading(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE galleries SET state = ?, updated_at = ? WHERE state = ?`,
		StateQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StateUploading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploading: %w", err)
	}
	return res.RowsAffected()
}

// ReEnqueueIncomplete splits an Incomplete gallery into a fresh Queued
// record referencing only the files not yet uploaded. The original record
// stays Incomplete for history; already-uploaded files are never duplicated
// into the new record.
func (s *Store) ReEnqueueIncomplete(ctx context.Context, id int64) (*Gallery, error) {
	origin, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, ErrNotFound
	}
	if origin.State != StateIncomplete {
		return nil, fmt.Errorf("%w: gallery %d is %s, expected incomplete", ErrConflict, id, origin.State)
	}

	remaining, err := s.PendingFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return nil, fmt.Errorf("gallery %d has no remaining files to re-enqueue", id)
	}
	return s.EnqueueBatch(ctx, origin, remaining)
}

// EnqueueBatch creates a fresh Queued gallery carrying the origin's metadata
// and only the given files. Used to split remainders off an Incomplete
// record and to append new files to a finished gallery.
func (s *Store) EnqueueBatch(ctx context.Context, origin *Gallery, files []File) (*Gallery, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("gallery %d: empty batch", origin.ID)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var total int64
	for _, file := range files {
		total += file.Bytes
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO galleries (
            name, source_path, state, file_count, total_bytes, host_gallery_id,
            thumb_size, content_type, origin_id,
            ext1, ext2, ext3, ext4, custom1, custom2, custom3, custom4,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		origin.Name,
		nullableString(origin.SourcePath),
		StateQueued,
		len(files),
		total,
		nullableString(origin.HostGalleryID),
		origin.ThumbSize,
		origin.ContentType,
		origin.ID,
		nullableString(origin.Ext1), nullableString(origin.Ext2),
		nullableString(origin.Ext3), nullableString(origin.Ext4),
		nullableString(origin.Custom1), nullableString(origin.Custom2),
		nullableString(origin.Custom3), nullableString(origin.Custom4),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert batch gallery: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, file := range files {
		if err := s.execWithoutResultRetry(
			ctx,
			`INSERT INTO gallery_files (gallery_id, name, path, bytes, position, uploaded)
             VALUES (?, ?, ?, ?, ?, 0)`,
			newID, file.Name, file.Path, file.Bytes, file.Position,
		); err != nil {
			return nil, fmt.Errorf("copy batch file: %w", err)
		}
	}

	return s.GetByID(ctx, newID)
}
