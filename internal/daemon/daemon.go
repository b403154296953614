// Package daemon wires the subsystems into one background process: queue
// store, upload engine, workflow manager, secondary-host workers, rename
// worker and worker-status table. It enforces single-instance execution
// with a file lock and exposes the control surface consumed over IPC.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"imxup/internal/config"
	"imxup/internal/hooks"
	"imxup/internal/hostclient"
	"imxup/internal/hostworkers"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/rename"
	"imxup/internal/status"
	"imxup/internal/tokens"
	"imxup/internal/uploader"
	"imxup/internal/workflow"
)

type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	tokens  *tokens.Cache
	table   *status.Table
	engine  *uploader.Engine
	manager *workflow.Manager
	pool    *hostworkers.Pool
	renamer *rename.Worker
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	Stats        queue.Stats
	Workers      []status.Entry
}

// New constructs the daemon and its subsystems. The store is passed in so
// CLI commands can share it; everything else is built here.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store and logger")
	}

	cache, err := tokens.Open(cfg.Paths.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open token cache: %w", err)
	}

	table := status.NewTable()
	table.Configure(status.KindPrimary, map[string]bool{"primary": true})

	primaryClient := hostclient.New(cfg, cfg.PrimaryHost(), cache, logger)
	engine := uploader.New(cfg, store, primaryClient, table, logger)

	mirrorClients := hostworkers.BuildClients(cfg, cache, logger)
	pool := hostworkers.New(cfg, store, table, mirrorClients, logger)

	executor := hooks.New(cfg, store, logger)
	manager := workflow.New(store, engine, pool, executor, logger)
	renamer := rename.New(cfg, store, primaryClient, table, logger)

	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		tokens:   cache,
		table:    table,
		engine:   engine,
		manager:  manager,
		pool:     pool,
		renamer:  renamer,
		logPath:  filepath.Join(cfg.Paths.LogDir, "imxup.log"),
		lockPath: filepath.Join(cfg.Paths.DataDir, "imxup.lock"),
		lock:     flock.New(filepath.Join(cfg.Paths.DataDir, "imxup.lock")),
	}, nil
}

// Start acquires the single-instance lock and launches every worker.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another imxup instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.pool.Start(runCtx)
	d.renamer.Start(runCtx)
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the workers and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.manager.Stop()
	d.pool.Stop()
	d.renamer.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases owned resources. The store is owned
// by the caller and stays open.
func (d *Daemon) Close() error {
	d.Stop()
	if d.tokens != nil {
		return d.tokens.Close()
	}
	return nil
}

// Status reports runtime information for the status surfaces.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("collect queue stats", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Stats:        stats,
		Workers:      d.table.Snapshot(),
	}
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Enqueue adds a gallery folder to the pipeline.
func (d *Daemon) Enqueue(ctx context.Context, name, sourcePath string, thumbSize, contentType int) (*queue.Gallery, error) {
	return d.manager.Enqueue(ctx, name, sourcePath, thumbSize, contentType)
}

// ListQueue returns galleries filtered by optional states.
func (d *Daemon) ListQueue(ctx context.Context, states []queue.State) ([]*queue.Gallery, error) {
	return d.store.List(ctx, states...)
}

// GetGallery returns one gallery, nil when absent.
func (d *Daemon) GetGallery(ctx context.Context, id int64) (*queue.Gallery, error) {
	return d.store.GetByID(ctx, id)
}

// Pause stops a gallery's upload cooperatively.
func (d *Daemon) Pause(ctx context.Context, id int64) error {
	return d.manager.Pause(ctx, id)
}

// Resume returns a paused gallery to the queue.
func (d *Daemon) Resume(ctx context.Context, id int64) error {
	return d.manager.Resume(ctx, id)
}

// Remove deletes galleries by id and reports how many were removed.
func (d *Daemon) Remove(ctx context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ReEnqueue splits an Incomplete gallery's remainder into a fresh queued
// record.
func (d *Daemon) ReEnqueue(ctx context.Context, id int64) (*queue.Gallery, error) {
	return d.store.ReEnqueueIncomplete(ctx, id)
}

// Append enqueues the files added to a finished gallery's folder since its
// upload.
func (d *Daemon) Append(ctx context.Context, id int64) (*queue.Gallery, error) {
	return d.engine.Append(ctx, id)
}

// RequestRename queues a rename against the primary host.
func (d *Daemon) RequestRename(id int64, newName string) bool {
	return d.renamer.Enqueue(rename.Request{GalleryID: id, NewName: newName})
}

// ClearQueue removes all galleries.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes completed galleries.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes failed galleries.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck returns galleries stranded in Uploading to Queued.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckUploading(ctx)
}
