package uploader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"imxup/internal/hostclient"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/services"
)

// fileResult pairs one pending file with the outcome of its transfer.
type fileResult struct {
	file    queue.File
	outcome hostclient.Outcome
	skipped bool
}

// Run uploads a gallery's pending files to the primary host. Ownership is
// claimed by the Queued -> Uploading transition; a caller losing that race
// gets queue.ErrConflict and must not touch the gallery.
//
// The aggregate outcome follows the per-file results: every file uploaded
// means Completed, a mix means Incomplete, nothing uploaded at all means
// Failed. A tripped stop flag or a cancelled context parks the gallery in
// Paused instead, keeping the partial progress for resume.
func (e *Engine) Run(ctx context.Context, galleryID int64, stop *SoftStop) (*queue.Gallery, error) {
	if err := e.store.Transition(ctx, galleryID, []queue.State{queue.StateQueued}, queue.StateUploading); err != nil {
		return nil, err
	}

	gallery, err := e.store.GetByID(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if gallery == nil {
		return nil, queue.ErrNotFound
	}

	pending, err := e.store.PendingFiles(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		if err := e.finalizeCompleted(ctx, gallery, nil); err != nil {
			return nil, err
		}
		return e.store.GetByID(ctx, galleryID)
	}

	e.logger.Info("upload started",
		logging.Int64(logging.FieldGalleryID, galleryID),
		logging.String(logging.FieldHost, e.client.Host()),
		logging.Int("pending", len(pending)),
		logging.Int("concurrency", e.concurrency))

	results := e.transfer(ctx, gallery, pending, stop)
	return e.conclude(ctx, gallery, results, stop)
}

// transfer fans the pending files out over the configured number of
// concurrent workers. The shared byte counter only ever grows; each worker
// adds deltas for its own file, so concurrent increments are never lost.
func (e *Engine) transfer(ctx context.Context, gallery *queue.Gallery, pending []queue.File, stop *SoftStop) []fileResult {
	var (
		counter atomic.Int64
		abort   SoftStop
		mu      sync.Mutex
		results []fileResult
	)
	counter.Store(gallery.DoneBytes)
	start := time.Now()
	startBytes := gallery.DoneBytes

	workers := e.concurrency
	if workers > len(pending) {
		workers = len(pending)
	}
	jobs := make(chan queue.File)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				// The stop flag is honored between transfers as well as
				// inside them.
				if stop.Tripped() || abort.Tripped() || ctx.Err() != nil {
					mu.Lock()
					results = append(results, fileResult{file: file, skipped: true})
					mu.Unlock()
					continue
				}
				outcome := e.uploadFile(ctx, gallery, file, &counter, start, startBytes, stop, &abort)
				if outcome.Kind == hostclient.FailureAuth || outcome.Kind == hostclient.FailureQuota {
					// Unrecoverable for every remaining file on this host.
					abort.Trip()
				}
				mu.Lock()
				results = append(results, fileResult{file: file, outcome: outcome})
				mu.Unlock()
			}
		}()
	}
	for _, file := range pending {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	// Persist the final counter once; per-chunk persistence already ran at
	// the progress cadence.
	if err := e.store.SetProgress(ctx, gallery.ID, counter.Load()); err != nil {
		e.logger.Error("persist final progress",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
	}
	return results
}

func (e *Engine) uploadFile(
	ctx context.Context,
	gallery *queue.Gallery,
	file queue.File,
	counter *atomic.Int64,
	start time.Time,
	startBytes int64,
	stop *SoftStop,
	abort *SoftStop,
) hostclient.Outcome {
	var prev int64
	outcome := e.client.Upload(ctx, hostclient.UploadRequest{
		Path: file.Path,
		Name: file.Name,
		Size: file.Bytes,
		Progress: func(done, _ int64) {
			delta := done - prev
			if delta <= 0 {
				return
			}
			prev = done
			total := counter.Add(delta)
			e.publishProgress(ctx, gallery, total, start, startBytes)
		},
		ShouldStop: func() bool {
			return stop.Tripped() || abort.Tripped()
		},
	})
	if !outcome.OK {
		return outcome
	}

	// Account for bytes not yet reported at the cadence boundary.
	if remainder := file.Bytes - prev; remainder > 0 {
		total := counter.Add(remainder)
		e.publishProgress(ctx, gallery, total, start, startBytes)
	}
	if err := e.store.MarkFileUploaded(ctx, file.ID, outcome.FileID); err != nil {
		e.logger.Error("record uploaded file",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.String("file", file.Name),
			logging.Error(err))
	}
	return outcome
}

func (e *Engine) publishProgress(ctx context.Context, gallery *queue.Gallery, done int64, start time.Time, startBytes int64) {
	if err := e.store.SetProgress(ctx, gallery.ID, done); err != nil {
		e.logger.Error("persist progress",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
	}
	if e.statusTable == nil {
		return
	}
	host := e.client.Host()
	e.statusTable.SetProgress(host, gallery.ID, done, gallery.TotalBytes)
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		e.statusTable.SetSpeed(host, float64(done-startBytes)/elapsed)
	}
}

// conclude maps the per-file results onto a gallery-level state.
func (e *Engine) conclude(ctx context.Context, gallery *queue.Gallery, results []fileResult, stop *SoftStop) (*queue.Gallery, error) {
	var (
		succeeded int
		firstErr  error
		firstKind hostclient.FailureKind
	)
	for _, result := range results {
		switch {
		case result.skipped:
		case result.outcome.OK:
			succeeded++
		case result.outcome.Kind == hostclient.FailureCancelled:
			// A cancelled transfer carries no cause of its own: either the
			// caller asked for a stop, or a sibling's unrecoverable failure
			// tripped the internal abort. The branches below tell the two
			// apart, so the cancellation itself never picks the state.
		default:
			if firstErr == nil {
				firstErr = result.outcome.Err
				firstKind = result.outcome.Kind
			}
		}
	}

	// Paused is reserved for the caller's stop flag and context
	// cancellation. Transfers cancelled by the internal abort fall through
	// to the failure classification so the triggering error lands on the
	// gallery record instead of parking it resumable with no cause.
	if stop.Tripped() || ctx.Err() != nil {
		if err := e.store.Transition(ctx, gallery.ID, []queue.State{queue.StateUploading}, queue.StatePaused); err != nil {
			return nil, err
		}
		e.logger.Info("upload paused",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Int("uploaded_this_run", succeeded))
		return e.store.GetByID(ctx, gallery.ID)
	}

	remaining, err := e.store.PendingFiles(ctx, gallery.ID)
	if err != nil {
		return nil, err
	}

	if len(remaining) == 0 {
		if err := e.finalizeCompleted(ctx, gallery, results); err != nil {
			return nil, err
		}
		return e.store.GetByID(ctx, gallery.ID)
	}

	// Some files did not make it. Partial progress downgrades Failed to
	// Incomplete so the remainder can be re-enqueued later.
	anyUploaded := succeeded > 0 || len(remaining) < gallery.FileCount
	target := services.FailureStatus(firstErr, anyUploaded)
	message := "upload failed"
	kind := string(hostclient.FailureNetwork)
	if firstErr != nil {
		message = firstErr.Error()
		kind = string(firstKind)
	}
	if err := e.store.SetError(ctx, gallery.ID, message, kind); err != nil {
		e.logger.Error("record upload failure",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
	}
	if e.statusTable != nil {
		e.statusTable.SetError(e.client.Host(), message)
	}
	if err := e.store.Transition(ctx, gallery.ID, []queue.State{queue.StateUploading}, target); err != nil {
		return nil, err
	}
	e.logger.Warn("upload finished with failures",
		logging.Int64(logging.FieldGalleryID, gallery.ID),
		logging.String(logging.FieldState, string(target)),
		logging.Int("remaining", len(remaining)),
		logging.Error(firstErr))
	return e.store.GetByID(ctx, gallery.ID)
}

// finalizeCompleted records the host identifiers and the gallery template
// artifact, then moves the gallery to Completed.
func (e *Engine) finalizeCompleted(ctx context.Context, gallery *queue.Gallery, results []fileResult) error {
	patch := queue.FieldPatch{}
	for _, result := range results {
		if !result.outcome.OK {
			continue
		}
		if gallery.HostGalleryID == "" && patch.HostGalleryID == nil && result.outcome.FileID != "" {
			id := result.outcome.FileID
			patch.HostGalleryID = &id
		}
		if gallery.GalleryURL == "" && patch.GalleryURL == nil && result.outcome.URL != "" {
			url := result.outcome.URL
			patch.GalleryURL = &url
		}
	}

	if templatePath, err := e.writeTemplate(ctx, gallery, results); err != nil {
		e.logger.Warn("write gallery template",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
	} else {
		patch.TemplatePath = &templatePath
	}

	if err := e.store.UpdateFields(ctx, gallery.ID, patch); err != nil {
		return err
	}
	if err := e.store.Transition(ctx, gallery.ID, []queue.State{queue.StateUploading}, queue.StateCompleted); err != nil {
		return err
	}
	e.logger.Info("upload completed",
		logging.Int64(logging.FieldGalleryID, gallery.ID),
		logging.String(logging.FieldHost, e.client.Host()))
	return nil
}

// writeTemplate renders the BBCode listing for the gallery into the staging
// directory, one link per uploaded file. URLs from this run take precedence;
// files uploaded in earlier runs fall back to their recorded host image ID.
func (e *Engine) writeTemplate(ctx context.Context, gallery *queue.Gallery, results []fileResult) (string, error) {
	urls := make(map[int64]string, len(results))
	for _, result := range results {
		if result.outcome.OK && result.outcome.URL != "" {
			urls[result.file.ID] = result.outcome.URL
		}
	}

	files, err := e.store.Files(ctx, gallery.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, file := range files {
		if !file.Uploaded {
			continue
		}
		ref := urls[file.ID]
		if ref == "" {
			ref = file.HostImageID
		}
		if ref == "" {
			continue
		}
		fmt.Fprintf(&b, "[url=%s]%s[/url]\n", ref, file.Name)
	}
	if b.Len() == 0 {
		return "", services.Wrap(services.ErrValidation, "uploader", "template", "no uploaded files to render", nil)
	}

	if err := os.MkdirAll(e.stagingDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(e.stagingDir, fmt.Sprintf("gallery-%d.bbcode", gallery.ID))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
