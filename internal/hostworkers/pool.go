// Package hostworkers mirrors finished galleries to the enabled secondary
// file hosts. Each host gets its own worker goroutine draining a FIFO job
// queue; hosts proceed independently and publish progress into the shared
// worker-status table.
package hostworkers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"imxup/internal/config"
	"imxup/internal/hostclient"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/status"
	"imxup/internal/tokens"
	"imxup/internal/uploader"
)

// queueDepth bounds each host's job queue. Dispatch drops jobs for a host
// whose queue is full rather than blocking the workflow manager.
const queueDepth = 64

// Client is the per-host protocol surface the pool needs. Satisfied by
// *hostclient.Client.
type Client interface {
	Upload(ctx context.Context, req hostclient.UploadRequest) hostclient.Outcome
	Quota(ctx context.Context) (used, total int64, err error)
	Host() string
}

// Job asks one host worker to mirror one gallery's archive.
type Job struct {
	GalleryID int64
	RequestID string
}

// Pool runs one worker per enabled secondary host.
type Pool struct {
	cfg        *config.Config
	store      *queue.Store
	table      *status.Table
	logger     *slog.Logger
	clients    map[string]Client
	stagingDir string

	mu      sync.Mutex
	queues  map[string]chan Job
	stopped bool
	wg      sync.WaitGroup
}

// New builds the pool. clients must contain one entry per enabled host;
// disabled hosts get placeholder status entries only.
func New(cfg *config.Config, store *queue.Store, table *status.Table, clients map[string]Client, logger *slog.Logger) *Pool {
	hosts := make(map[string]bool, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		hosts[host.Name] = host.Enabled
	}
	table.Configure(status.KindFileHost, hosts)

	return &Pool{
		cfg:        cfg,
		store:      store,
		table:      table,
		logger:     logging.NewComponentLogger(logger, "hostworkers"),
		clients:    clients,
		stagingDir: cfg.Paths.StagingDir,
		queues:     make(map[string]chan Job),
	}
}

// BuildClients constructs a protocol client per enabled host.
func BuildClients(cfg *config.Config, cache *tokens.Cache, logger *slog.Logger) map[string]Client {
	clients := make(map[string]Client)
	for _, host := range cfg.EnabledHosts() {
		clients[host.Name] = hostclient.New(cfg, host, cache, logger)
	}
	return clients
}

// Start launches one worker goroutine per enabled host. Workers exit when
// the context is cancelled or Stop closes their queue.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, host := range p.cfg.EnabledHosts() {
		client, ok := p.clients[host.Name]
		if !ok {
			p.logger.Error("no client for enabled host", logging.String(logging.FieldHost, host.Name))
			continue
		}
		jobs := make(chan Job, queueDepth)
		p.queues[host.Name] = jobs
		p.wg.Add(1)
		go p.worker(ctx, host, client, jobs)
	}
}

// Stop closes the job queues and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, jobs := range p.queues {
		close(jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Dispatch offers a finished gallery to every enabled host whose trigger
// predicate matches. Returns the names of the hosts that accepted a job.
func (p *Pool) Dispatch(gallery *queue.Gallery) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}

	var accepted []string
	for _, host := range p.cfg.EnabledHosts() {
		if !Matches(host, gallery) {
			continue
		}
		jobs, ok := p.queues[host.Name]
		if !ok {
			continue
		}
		job := Job{GalleryID: gallery.ID, RequestID: uuid.NewString()}
		select {
		case jobs <- job:
			accepted = append(accepted, host.Name)
		default:
			p.logger.Warn("host queue full, dropping mirror job",
				logging.String(logging.FieldHost, host.Name),
				logging.Int64(logging.FieldGalleryID, gallery.ID))
		}
	}
	return accepted
}

// Matches evaluates the host's trigger predicate against a gallery: at
// least MinImages files and, when set, a name containing NameContains.
func Matches(host config.Host, gallery *queue.Gallery) bool {
	if gallery.FileCount < host.MinImages {
		return false
	}
	if host.NameContains != "" && !strings.Contains(strings.ToLower(gallery.Name), strings.ToLower(host.NameContains)) {
		return false
	}
	return true
}

func (p *Pool) worker(ctx context.Context, host config.Host, client Client, jobs <-chan Job) {
	defer p.wg.Done()
	logger := p.logger.With(logging.String(logging.FieldHost, host.Name))
	logger.Info("host worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("host worker stopping")
			return
		case job, ok := <-jobs:
			if !ok {
				logger.Info("host worker drained")
				return
			}
			p.process(ctx, host, client, job, logger)
		}
	}
}

func (p *Pool) process(ctx context.Context, host config.Host, client Client, job Job, logger *slog.Logger) {
	logger = logger.With(
		logging.String(logging.FieldRequestID, job.RequestID),
		logging.Int64(logging.FieldGalleryID, job.GalleryID))

	gallery, err := p.store.GetByID(ctx, job.GalleryID)
	if err != nil || gallery == nil {
		logger.Error("load gallery for mirror", logging.Error(err))
		return
	}

	p.refreshQuota(ctx, host.Name, client, logger)

	archivePath, err := p.ensureArchive(ctx, gallery)
	if err != nil {
		logger.Error("build mirror archive", logging.Error(err))
		p.table.SetError(host.Name, err.Error())
		return
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		logger.Error("stat mirror archive", logging.Error(err))
		p.table.SetError(host.Name, err.Error())
		return
	}

	start := time.Now()
	outcome := client.Upload(ctx, hostclient.UploadRequest{
		Path: archivePath,
		Name: filepath.Base(archivePath),
		Size: info.Size(),
		Progress: func(done, total int64) {
			p.table.SetProgress(host.Name, gallery.ID, done, total)
			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				p.table.SetSpeed(host.Name, float64(done)/elapsed)
			}
		},
		ShouldStop: func() bool {
			return ctx.Err() != nil
		},
	})
	if !outcome.OK {
		message := fmt.Sprintf("mirror failed (%s)", outcome.Kind)
		if outcome.Err != nil {
			message = outcome.Err.Error()
		}
		p.table.SetError(host.Name, message)
		logger.Warn("mirror failed",
			logging.String("kind", string(outcome.Kind)),
			logging.Error(outcome.Err))
		return
	}

	p.table.SetProgress(host.Name, gallery.ID, info.Size(), info.Size())
	logger.Info("mirror completed",
		logging.String("file_id", outcome.FileID),
		logging.String("url", outcome.URL),
		logging.Duration("elapsed", time.Since(start)))
}

// refreshQuota fetches the host's storage quota unless a snapshot newer
// than the TTL is already cached in the status table.
func (p *Pool) refreshQuota(ctx context.Context, host string, client Client, logger *slog.Logger) {
	if p.table.QuotaFresh(host) {
		return
	}
	used, total, err := client.Quota(ctx)
	if err != nil {
		logger.Warn("quota lookup failed", logging.Error(err))
		return
	}
	p.table.SetQuota(host, used, total)
}

// ensureArchive returns the gallery's mirror archive, building and recording
// it on first use.
func (p *Pool) ensureArchive(ctx context.Context, gallery *queue.Gallery) (string, error) {
	if gallery.ArchivePath != "" {
		if _, err := os.Stat(gallery.ArchivePath); err == nil {
			return gallery.ArchivePath, nil
		}
	}

	path := filepath.Join(p.stagingDir, fmt.Sprintf("gallery-%d.zip", gallery.ID))
	if err := uploader.BuildArchive(gallery.SourcePath, path); err != nil {
		return "", err
	}
	if err := p.store.UpdateFields(ctx, gallery.ID, queue.FieldPatch{ArchivePath: &path}); err != nil {
		return "", err
	}
	gallery.ArchivePath = path
	return path, nil
}
