// Package uploader drives primary-host uploads: it validates and scans a
// gallery folder into ordered file rows, then pushes the pending files with
// a bounded number of concurrent transfers while aggregating progress into
// a single monotonic byte counter.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"imxup/internal/config"
	"imxup/internal/hostclient"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/services"
	"imxup/internal/status"
)

// Transport performs one upload call against the primary host. Satisfied by
// *hostclient.Client.
type Transport interface {
	Upload(ctx context.Context, req hostclient.UploadRequest) hostclient.Outcome
	Host() string
}

// Engine orchestrates the primary-host upload of one gallery at a time.
// Ownership of a gallery is acquired through the queue's compare-and-swap
// transition, so two engines never upload the same gallery concurrently.
type Engine struct {
	store       *queue.Store
	client      Transport
	statusTable *status.Table
	logger      *slog.Logger

	concurrency int
	stagingDir  string
}

func New(cfg *config.Config, store *queue.Store, client Transport, table *status.Table, logger *slog.Logger) *Engine {
	concurrency := cfg.Upload.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		store:       store,
		client:      client,
		statusTable: table,
		logger:      logging.NewComponentLogger(logger, "uploader"),
		concurrency: concurrency,
		stagingDir:  cfg.Paths.StagingDir,
	}
}

// Prepare takes a freshly enqueued gallery through validation and the file
// scan. Validation failures are recorded on the row and leave the gallery
// in Validating so the cause stays visible; they are never retried.
func (e *Engine) Prepare(ctx context.Context, galleryID int64) error {
	gallery, err := e.store.GetByID(ctx, galleryID)
	if err != nil {
		return err
	}
	if gallery == nil {
		return queue.ErrNotFound
	}
	if gallery.State != queue.StateValidating {
		return fmt.Errorf("%w: gallery %d is %s, expected validating", queue.ErrConflict, galleryID, gallery.State)
	}

	if err := e.validateSource(gallery.SourcePath); err != nil {
		e.recordValidationFailure(ctx, galleryID, err)
		return err
	}

	if err := e.store.Transition(ctx, galleryID, []queue.State{queue.StateValidating}, queue.StateScanning); err != nil {
		return err
	}

	files, err := scanDir(gallery.SourcePath)
	if err != nil {
		e.recordScanFailure(ctx, galleryID, err)
		return err
	}
	if err := e.store.AddFiles(ctx, galleryID, files); err != nil {
		return err
	}

	e.logger.Info("gallery scanned",
		logging.Int64(logging.FieldGalleryID, galleryID),
		logging.Int("files", len(files)))
	return e.store.Transition(ctx, galleryID, []queue.State{queue.StateScanning}, queue.StateReady)
}

// Append rescans a finished gallery's folder and enqueues the files added
// since the original upload as a fresh batch referencing the origin record.
// Already-uploaded files are never duplicated into the new batch.
func (e *Engine) Append(ctx context.Context, galleryID int64) (*queue.Gallery, error) {
	origin, err := e.store.GetByID(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, queue.ErrNotFound
	}
	if origin.State != queue.StateCompleted && origin.State != queue.StateIncomplete {
		return nil, fmt.Errorf("%w: gallery %d is %s, expected completed or incomplete", queue.ErrConflict, galleryID, origin.State)
	}

	scanned, err := scanDir(origin.SourcePath)
	if err != nil {
		return nil, err
	}
	recorded, err := e.store.Files(ctx, galleryID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(recorded))
	for _, file := range recorded {
		known[file.Path] = struct{}{}
	}

	var added []queue.File
	for _, file := range scanned {
		if _, ok := known[file.Path]; !ok {
			file.Position = len(added)
			added = append(added, file)
		}
	}
	if len(added) == 0 {
		return nil, services.Wrap(services.ErrValidation, "uploader", "append",
			fmt.Sprintf("gallery %d has no new files", galleryID), nil)
	}

	batch, err := e.store.EnqueueBatch(ctx, origin, added)
	if err != nil {
		return nil, err
	}
	e.logger.Info("append batch enqueued",
		logging.Int64(logging.FieldGalleryID, galleryID),
		logging.Int64("batch_id", batch.ID),
		logging.Int("files", len(added)))
	return batch, nil
}

func (e *Engine) validateSource(dir string) error {
	if dir == "" {
		return services.Wrap(services.ErrValidation, "uploader", "validate", "empty source path", nil)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return services.Wrap(services.ErrValidation, "uploader", "validate", dir, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrValidation, "uploader", "validate",
			fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return nil
}

func (e *Engine) recordValidationFailure(ctx context.Context, galleryID int64, cause error) {
	if err := e.store.SetError(ctx, galleryID, cause.Error(), "validation"); err != nil {
		e.logger.Error("record validation failure",
			logging.Int64(logging.FieldGalleryID, galleryID),
			logging.Error(err))
	}
}

func (e *Engine) recordScanFailure(ctx context.Context, galleryID int64, cause error) {
	kind := "validation"
	if !errors.Is(cause, services.ErrValidation) {
		kind = "network"
	}
	if err := e.store.SetError(ctx, galleryID, cause.Error(), kind); err != nil {
		e.logger.Error("record scan failure",
			logging.Int64(logging.FieldGalleryID, galleryID),
			logging.Error(err))
	}
	if err := e.store.Transition(ctx, galleryID, []queue.State{queue.StateScanning}, queue.StateFailed); err != nil {
		e.logger.Error("mark scan failed",
			logging.Int64(logging.FieldGalleryID, galleryID),
			logging.Error(err))
	}
}
