// Package rename runs the background FIFO of gallery rename requests
// against the primary host.
package rename

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"imxup/internal/config"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/services"
	"imxup/internal/status"
)

// statusKey identifies the rename worker in the worker-status table.
const statusKey = "rename"

// queueDepth bounds the pending rename requests.
const queueDepth = 128

// Renamer is the protocol surface the worker needs. Satisfied by
// *hostclient.Client.
type Renamer interface {
	Rename(ctx context.Context, hostGalleryID, name string) error
	InvalidateCredential()
}

// Request asks for one gallery to be renamed on the primary host.
type Request struct {
	GalleryID int64
	NewName   string
}

// Worker drains rename requests one at a time. Re-authentication after a
// permission-denied response is rate limited: no matter how many requests
// fail in a window, the login endpoint is hit at most once per interval.
type Worker struct {
	store  *queue.Store
	client Renamer
	table  *status.Table
	logger *slog.Logger

	requests       chan Request
	reauthInterval time.Duration
	lastReauth     time.Time
	now            func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg *config.Config, store *queue.Store, client Renamer, table *status.Table, logger *slog.Logger) *Worker {
	interval := time.Duration(cfg.Rename.ReauthInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	table.Configure(status.KindRename, map[string]bool{statusKey: true})
	return &Worker{
		store:          store,
		client:         client,
		table:          table,
		logger:         logging.NewComponentLogger(logger, "rename"),
		requests:       make(chan Request, queueDepth),
		reauthInterval: interval,
		now:            time.Now,
		done:           make(chan struct{}),
	}
}

// Enqueue offers a request to the worker. Returns false when the queue is
// full or the worker has stopped.
func (w *Worker) Enqueue(req Request) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.requests <- req:
		return true
	default:
		w.logger.Warn("rename queue full, dropping request",
			logging.Int64(logging.FieldGalleryID, req.GalleryID))
		return false
	}
}

// Start runs the worker loop until the context is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		w.logger.Info("rename worker started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case req := <-w.requests:
				w.process(ctx, req)
			}
		}
	}()
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Worker) process(ctx context.Context, req Request) {
	logger := w.logger.With(logging.Int64(logging.FieldGalleryID, req.GalleryID))

	name := SanitizeName(req.NewName)
	if name == "" {
		logger.Warn("rename rejected, name empty after sanitizing",
			logging.String("requested", req.NewName))
		return
	}

	gallery, err := w.store.GetByID(ctx, req.GalleryID)
	if err != nil || gallery == nil {
		logger.Error("load gallery for rename", logging.Error(err))
		return
	}
	if gallery.HostGalleryID == "" {
		logger.Warn("gallery has no host id, skipping rename")
		return
	}

	err = w.client.Rename(ctx, gallery.HostGalleryID, name)
	if errors.Is(err, services.ErrAuth) {
		// One re-login per interval regardless of request volume.
		if w.now().Sub(w.lastReauth) >= w.reauthInterval {
			w.lastReauth = w.now()
			w.client.InvalidateCredential()
			logger.Info("session rejected, re-authenticating")
			err = w.client.Rename(ctx, gallery.HostGalleryID, name)
		} else {
			w.table.SetError(statusKey, "session rejected, re-auth rate limited")
			logger.Warn("re-auth suppressed by rate limit")
			return
		}
	}
	if errors.Is(err, services.ErrChallenge) {
		w.table.SetError(statusKey, "host presented an anti-bot challenge")
		logger.Warn("rename blocked by anti-bot challenge")
		return
	}
	if err != nil {
		w.table.SetError(statusKey, err.Error())
		logger.Warn("rename failed", logging.Error(err))
		return
	}

	if err := w.store.UpdateFields(ctx, gallery.ID, queue.FieldPatch{Name: &name}); err != nil {
		logger.Error("record renamed gallery", logging.Error(err))
		return
	}
	logger.Info("gallery renamed", logging.String("name", name))
}

// hostRejected lists the characters the primary host refuses in gallery
// names.
const hostRejected = `<>:"/\|?*`

// SanitizeName strips characters the host rejects and collapses runs of
// whitespace before submission.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(hostRejected, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
