package rename

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/services"
	"imxup/internal/status"
	"imxup/internal/testsupport"
)

type fakeRenamer struct {
	mu          sync.Mutex
	calls       []string
	invalidates int
	// errs is consumed one per Rename call; nil entries mean success.
	errs []error
}

func (f *fakeRenamer) Rename(_ context.Context, _, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeRenamer) InvalidateCredential() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidates++
}

func (f *fakeRenamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRenamer) invalidateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidates
}

func newWorker(t *testing.T, client Renamer) (*Worker, *queue.Store, *status.Table) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	table := status.NewTable()
	worker := New(cfg, store, client, table, logging.NewNop())
	return worker, store, table
}

func hostedGallery(t *testing.T, store *queue.Store) *queue.Gallery {
	t.Helper()
	ctx := context.Background()
	gallery, err := store.NewGallery(ctx, "old name", t.TempDir(), 3, 0)
	if err != nil {
		t.Fatalf("new gallery: %v", err)
	}
	hostID := "hg-42"
	if err := store.UpdateFields(ctx, gallery.ID, queue.FieldPatch{HostGalleryID: &hostID}); err != nil {
		t.Fatalf("set host id: %v", err)
	}
	gallery, _ = store.GetByID(ctx, gallery.ID)
	return gallery
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain name", "plain name"},
		{`bad<>:"/\|?*chars`, "badchars"},
		{"  spaced \t out  ", "spaced out"},
		{"ctrl\x00\x1fchars", "ctrlchars"},
		{`<>:"/\|?*`, ""},
	}
	for _, tc := range cases {
		if got := SanitizeName(tc.in); got != tc.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenameUpdatesQueueRecord(t *testing.T) {
	client := &fakeRenamer{}
	worker, store, _ := newWorker(t, client)
	gallery := hostedGallery(t, store)

	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: `new / name?`})

	if client.callCount() != 1 {
		t.Fatalf("rename calls = %d, want 1", client.callCount())
	}
	updated, _ := store.GetByID(context.Background(), gallery.ID)
	if updated.Name != "new name" {
		t.Fatalf("name = %q, want sanitized new name", updated.Name)
	}
}

func TestAuthFailureReauthenticatesOnce(t *testing.T) {
	client := &fakeRenamer{errs: []error{services.ErrAuth, nil}}
	worker, store, _ := newWorker(t, client)
	gallery := hostedGallery(t, store)

	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: "renamed"})

	if client.invalidateCount() != 1 {
		t.Fatalf("invalidates = %d, want 1", client.invalidateCount())
	}
	if client.callCount() != 2 {
		t.Fatalf("rename calls = %d, want retry after re-auth", client.callCount())
	}
	updated, _ := store.GetByID(context.Background(), gallery.ID)
	if updated.Name != "renamed" {
		t.Fatalf("name = %q, want renamed", updated.Name)
	}
}

func TestReauthIsRateLimited(t *testing.T) {
	client := &fakeRenamer{errs: []error{services.ErrAuth, services.ErrAuth, services.ErrAuth}}
	worker, store, table := newWorker(t, client)
	gallery := hostedGallery(t, store)

	clock := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	worker.now = func() time.Time { return clock }

	// First failure re-authenticates, second lands inside the window.
	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: "first"})
	clock = clock.Add(2 * time.Second)
	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: "second"})

	if client.invalidateCount() != 1 {
		t.Fatalf("invalidates = %d, want 1 within the interval", client.invalidateCount())
	}
	if entry := table.Get(statusKey); !strings.Contains(entry.LastError, "rate limited") {
		t.Fatalf("status error = %q, want rate limited", entry.LastError)
	}

	// Past the interval a new failure re-authenticates again.
	clock = clock.Add(10 * time.Second)
	client.mu.Lock()
	client.errs = []error{services.ErrAuth, nil}
	client.mu.Unlock()
	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: "third"})
	if client.invalidateCount() != 2 {
		t.Fatalf("invalidates = %d, want 2 after interval elapsed", client.invalidateCount())
	}
}

func TestChallengeIsDistinctFromFailure(t *testing.T) {
	client := &fakeRenamer{errs: []error{services.Wrap(services.ErrChallenge, "hostclient", "rename", "imx", nil)}}
	worker, store, table := newWorker(t, client)
	gallery := hostedGallery(t, store)

	worker.process(context.Background(), Request{GalleryID: gallery.ID, NewName: "blocked"})

	if client.invalidateCount() != 0 {
		t.Fatal("challenge must not trigger re-authentication")
	}
	if entry := table.Get(statusKey); !strings.Contains(entry.LastError, "challenge") {
		t.Fatalf("status error = %q, want challenge marker", entry.LastError)
	}
	updated, _ := store.GetByID(context.Background(), gallery.ID)
	if updated.Name != "old name" {
		t.Fatalf("name = %q, want unchanged", updated.Name)
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	client := &fakeRenamer{}
	worker, store, _ := newWorker(t, client)
	gallery := hostedGallery(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	defer worker.Stop()

	if !worker.Enqueue(Request{GalleryID: gallery.ID, NewName: "queued rename"}) {
		t.Fatal("enqueue refused")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if client.callCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("rename request not processed")
}
