package hostworkers

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"imxup/internal/config"
	"imxup/internal/hostclient"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/status"
	"imxup/internal/testsupport"
)

type fakeClient struct {
	name string

	mu       sync.Mutex
	uploads  []string
	quotas   int
	outcome  hostclient.Outcome
	quotaErr error
}

func (f *fakeClient) Upload(_ context.Context, req hostclient.UploadRequest) hostclient.Outcome {
	f.mu.Lock()
	f.uploads = append(f.uploads, req.Path)
	f.mu.Unlock()
	if req.Progress != nil {
		req.Progress(req.Size, req.Size)
	}
	if f.outcome.OK || f.outcome.Kind != hostclient.FailureNone {
		return f.outcome
	}
	return hostclient.Outcome{OK: true, FileID: "mirror-1", URL: "https://" + f.name + "/mirror-1"}
}

func (f *fakeClient) Quota(context.Context) (int64, int64, error) {
	f.mu.Lock()
	f.quotas++
	f.mu.Unlock()
	if f.quotaErr != nil {
		return 0, 0, f.quotaErr
	}
	return 10, 100, nil
}

func (f *fakeClient) Host() string { return f.name }

func (f *fakeClient) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

func (f *fakeClient) quotaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotas
}

func mirrorHost(name string, enabled bool) config.Host {
	return config.Host{Name: name, Enabled: enabled, BaseURL: "https://" + name, Auth: config.AuthAPIKey, APIKey: "k"}
}

func completedGallery(t *testing.T, store *queue.Store, name string, imageCount int) *queue.Gallery {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	files := make([]queue.File, 0, imageCount)
	for i := 0; i < imageCount; i++ {
		fileName := fmt.Sprintf("img%d.jpg", i+1)
		path := filepath.Join(dir, fileName)
		if err := os.WriteFile(path, []byte("image-data"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
		files = append(files, queue.File{Name: fileName, Path: path, Bytes: 10, Position: i})
	}

	gallery, err := store.NewGallery(ctx, name, dir, 3, 0)
	if err != nil {
		t.Fatalf("new gallery: %v", err)
	}
	if err := store.AddFiles(ctx, gallery.ID, files); err != nil {
		t.Fatalf("add files: %v", err)
	}
	for _, step := range []struct {
		from queue.State
		to   queue.State
	}{
		{queue.StateValidating, queue.StateScanning},
		{queue.StateScanning, queue.StateReady},
		{queue.StateReady, queue.StateQueued},
		{queue.StateQueued, queue.StateUploading},
		{queue.StateUploading, queue.StateCompleted},
	} {
		if err := store.Transition(ctx, gallery.ID, []queue.State{step.from}, step.to); err != nil {
			t.Fatalf("advance to %s: %v", step.to, err)
		}
	}
	gallery, err = store.GetByID(ctx, gallery.ID)
	if err != nil {
		t.Fatalf("reload gallery: %v", err)
	}
	return gallery
}

func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatchHonorsTriggerPredicates(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHosts(
		func() config.Host { h := mirrorHost("open", true); h.MinImages = 1; return h }(),
		func() config.Host { h := mirrorHost("picky", true); h.MinImages = 5; return h }(),
		func() config.Host {
			h := mirrorHost("named", true)
			h.NameContains = "vacation"
			return h
		}(),
	))
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()

	clients := map[string]Client{
		"open":  &fakeClient{name: "open"},
		"picky": &fakeClient{name: "picky"},
		"named": &fakeClient{name: "named"},
	}
	pool := New(cfg, store, table, clients, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	gallery := completedGallery(t, store, "beach album", 2)
	accepted := pool.Dispatch(gallery)
	if len(accepted) != 1 || accepted[0] != "open" {
		t.Fatalf("accepted = %v, want [open]", accepted)
	}

	vacation := completedGallery(t, store, "Vacation 2026", 2)
	accepted = pool.Dispatch(vacation)
	if len(accepted) != 2 {
		t.Fatalf("accepted = %v, want open and named", accepted)
	}
}

func TestWorkerMirrorsArchive(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHosts(mirrorHost("mirror", true)))
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()

	client := &fakeClient{name: "mirror"}
	pool := New(cfg, store, table, map[string]Client{"mirror": client}, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	gallery := completedGallery(t, store, "mirrored", 3)
	if accepted := pool.Dispatch(gallery); len(accepted) != 1 {
		t.Fatalf("dispatch accepted %v", accepted)
	}
	waitFor(t, "mirror upload", func() bool { return client.uploadCount() == 1 })
	pool.Stop()

	// The archive was built, recorded on the gallery and is a valid
	// store-mode zip of the images.
	updated, _ := store.GetByID(context.Background(), gallery.ID)
	if updated.ArchivePath == "" {
		t.Fatal("archive path not recorded")
	}
	reader, err := zip.OpenReader(updated.ArchivePath)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer reader.Close()
	if len(reader.File) != 3 {
		t.Fatalf("archive has %d entries, want 3", len(reader.File))
	}

	entry := table.Get("mirror")
	if entry.DoneBytes == 0 || entry.DoneBytes != entry.TotalBytes {
		t.Fatalf("status progress not published: %+v", entry)
	}
	if entry.Quota.TotalBytes != 100 {
		t.Fatalf("quota not cached: %+v", entry.Quota)
	}
}

func TestQuotaCachedAcrossJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHosts(mirrorHost("mirror", true)))
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()

	client := &fakeClient{name: "mirror"}
	pool := New(cfg, store, table, map[string]Client{"mirror": client}, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	first := completedGallery(t, store, "first", 1)
	second := completedGallery(t, store, "second", 1)
	pool.Dispatch(first)
	pool.Dispatch(second)
	waitFor(t, "both mirrors", func() bool { return client.uploadCount() == 2 })
	pool.Stop()

	if client.quotaCount() != 1 {
		t.Fatalf("quota fetched %d times, want 1 within the TTL", client.quotaCount())
	}
}

func TestFailedMirrorRecordsStatusError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHosts(mirrorHost("mirror", true)))
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()

	client := &fakeClient{
		name:    "mirror",
		outcome: hostclient.Outcome{Kind: hostclient.FailureQuota, Err: fmt.Errorf("host storage full")},
	}
	pool := New(cfg, store, table, map[string]Client{"mirror": client}, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	gallery := completedGallery(t, store, "doomed", 1)
	pool.Dispatch(gallery)
	waitFor(t, "mirror attempt", func() bool { return client.uploadCount() == 1 })
	pool.Stop()

	entry := table.Get("mirror")
	if entry.LastError == "" {
		t.Fatal("status error not recorded")
	}
	// The gallery outcome is untouched by a mirror failure.
	updated, _ := store.GetByID(context.Background(), gallery.ID)
	if updated.State != queue.StateCompleted {
		t.Fatalf("gallery state = %s, want completed", updated.State)
	}
}

func TestDisabledHostGetsPlaceholderEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHosts(
		mirrorHost("active", true),
		mirrorHost("dormant", false),
	))
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()

	New(cfg, store, table, map[string]Client{"active": &fakeClient{name: "active"}}, logging.NewNop())

	if !table.Has("dormant") {
		t.Fatal("disabled host missing from status table")
	}
	entry := table.Get("dormant")
	if entry.Active {
		t.Fatal("disabled host marked active")
	}
	if !table.Get("active").Active {
		t.Fatal("enabled host not marked active")
	}
}
