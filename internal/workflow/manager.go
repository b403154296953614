// Package workflow coordinates the gallery pipeline. The manager polls the
// queue from one coordination goroutine, takes fresh galleries through
// validation and scanning, claims queued galleries for the upload engine,
// and fans finished galleries out to the secondary-host workers and the
// hook pipeline.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"imxup/internal/config"
	"imxup/internal/hooks"
	"imxup/internal/hostworkers"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/uploader"
)

// pollInterval is the idle cadence of the manager loop. Work is processed
// back to back; the ticker only matters while the queue is empty.
const pollInterval = time.Second

// Manager drives the pipeline. Uploads, mirrors and hooks all run off the
// coordination goroutine; the loop blocks at most for one gallery upload,
// which itself honors pause and shutdown through the stop flag.
type Manager struct {
	store  *queue.Store
	engine *uploader.Engine
	pool   *hostworkers.Pool
	hooks  *hooks.Executor
	logger *slog.Logger

	mu    sync.Mutex
	stops map[int64]*uploader.SoftStop
	// skipPrepare holds galleries whose validation failed. They stay in
	// Validating with the cause on the row and are not retried.
	skipPrepare map[int64]struct{}

	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(store *queue.Store, engine *uploader.Engine, pool *hostworkers.Pool, executor *hooks.Executor, logger *slog.Logger) *Manager {
	return &Manager{
		store:       store,
		engine:      engine,
		pool:        pool,
		hooks:       executor,
		logger:      logging.NewComponentLogger(logger, "workflow"),
		stops:       make(map[int64]*uploader.SoftStop),
		skipPrepare: make(map[int64]struct{}),
	}
}

// Enqueue creates a new gallery record. The manager loop takes it through
// validation and scanning on its next pass.
func (m *Manager) Enqueue(ctx context.Context, name, sourcePath string, thumbSize, contentType int) (*queue.Gallery, error) {
	gallery, err := m.store.NewGallery(ctx, name, sourcePath, thumbSize, contentType)
	if err != nil {
		return nil, err
	}
	m.logger.Info("gallery enqueued",
		logging.Int64(logging.FieldGalleryID, gallery.ID),
		logging.String("name", gallery.Name))
	return gallery, nil
}

// Start launches the manager loop. Galleries stranded in Uploading by a
// previous process are returned to Queued first.
func (m *Manager) Start(ctx context.Context) error {
	reset, err := m.store.ResetStuckUploading(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		m.logger.Info("requeued stuck galleries", logging.Int64("count", reset))
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})
	go m.loop(ctx)
	return nil
}

// Stop trips every in-flight upload and waits for the loop to exit.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.mu.Lock()
	for _, stop := range m.stops {
		stop.Trip()
	}
	m.mu.Unlock()
	m.cancel()
	<-m.stopped
}

// Pause trips the stop flag of a running upload, or parks a waiting gallery
// directly.
func (m *Manager) Pause(ctx context.Context, galleryID int64) error {
	m.mu.Lock()
	stop, running := m.stops[galleryID]
	m.mu.Unlock()
	if running {
		stop.Trip()
		return nil
	}
	return m.store.Transition(ctx, galleryID, []queue.State{queue.StateQueued}, queue.StatePaused)
}

// Resume returns a paused gallery to the queue.
func (m *Manager) Resume(ctx context.Context, galleryID int64) error {
	return m.store.Resume(ctx, galleryID)
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		worked := m.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick performs at most one unit of work and reports whether it found any.
func (m *Manager) tick(ctx context.Context) bool {
	if m.prepareNext(ctx) {
		return true
	}
	return m.uploadNext(ctx)
}

func (m *Manager) prepareNext(ctx context.Context) bool {
	candidates, err := m.store.List(ctx, queue.StateValidating)
	if err != nil {
		m.logger.Error("poll validating galleries", logging.Error(err))
		return false
	}

	var gallery *queue.Gallery
	m.mu.Lock()
	for _, candidate := range candidates {
		if _, skipped := m.skipPrepare[candidate.ID]; !skipped {
			gallery = candidate
			break
		}
	}
	m.mu.Unlock()
	if gallery == nil {
		return false
	}

	if err := m.engine.Prepare(ctx, gallery.ID); err != nil {
		// Validation fails fast: the cause stays on the row and the record
		// is not picked up again.
		m.mu.Lock()
		m.skipPrepare[gallery.ID] = struct{}{}
		m.mu.Unlock()
		m.logger.Warn("gallery preparation failed",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
		return true
	}
	if err := m.store.Transition(ctx, gallery.ID, []queue.State{queue.StateReady}, queue.StateQueued); err != nil {
		m.logger.Error("queue prepared gallery",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
	}
	return true
}

func (m *Manager) uploadNext(ctx context.Context) bool {
	gallery, err := m.store.NextForStates(ctx, queue.StateQueued)
	if err != nil {
		m.logger.Error("poll queued galleries", logging.Error(err))
		return false
	}
	if gallery == nil {
		return false
	}

	stop := uploader.NewSoftStop()
	m.mu.Lock()
	m.stops[gallery.ID] = stop
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.stops, gallery.ID)
		m.mu.Unlock()
	}()

	result, err := m.engine.Run(ctx, gallery.ID, stop)
	if err != nil {
		if errors.Is(err, queue.ErrConflict) {
			// Paused or claimed between the poll and the CAS; not an error.
			return true
		}
		m.logger.Error("upload run failed",
			logging.Int64(logging.FieldGalleryID, gallery.ID),
			logging.Error(err))
		return true
	}

	m.finish(ctx, result)
	return true
}

// finish fans a finished gallery out to mirrors and hooks according to its
// final state.
func (m *Manager) finish(ctx context.Context, gallery *queue.Gallery) {
	switch gallery.State {
	case queue.StateCompleted:
		if m.pool != nil {
			accepted := m.pool.Dispatch(gallery)
			if len(accepted) > 0 {
				m.logger.Info("gallery dispatched to mirrors",
					logging.Int64(logging.FieldGalleryID, gallery.ID),
					logging.Any("hosts", accepted))
			}
		}
		m.fireHooks(ctx, hooks.EventCompleted, gallery.ID)
	case queue.StateIncomplete:
		m.fireHooks(ctx, hooks.EventIncomplete, gallery.ID)
	case queue.StateFailed:
		m.fireHooks(ctx, hooks.EventFailed, gallery.ID)
	case queue.StatePaused:
		m.logger.Info("gallery paused",
			logging.Int64(logging.FieldGalleryID, gallery.ID))
	}
}

// fireHooks runs the event's hooks. A required hook failure cannot reverse
// a terminal state, so it is persisted on the gallery row instead, where the
// presentation layer renders it.
func (m *Manager) fireHooks(ctx context.Context, event string, galleryID int64) {
	if m.hooks == nil {
		return
	}
	if err := m.hooks.RunEvent(ctx, event, galleryID); err != nil {
		m.logger.Error("required hook failed",
			logging.Int64(logging.FieldGalleryID, galleryID),
			logging.String("event", event),
			logging.Error(err))
		if storeErr := m.store.SetError(ctx, galleryID, err.Error(), "hook"); storeErr != nil {
			m.logger.Error("record hook failure", logging.Error(storeErr))
		}
	}
}

// MatchingHosts exposes the pool's trigger evaluation for callers that want
// to preview which mirrors a gallery would reach.
func MatchingHosts(cfg *config.Config, gallery *queue.Gallery) []string {
	var hosts []string
	for _, host := range cfg.EnabledHosts() {
		if hostworkers.Matches(host, gallery) {
			hosts = append(hosts, host.Name)
		}
	}
	return hosts
}
