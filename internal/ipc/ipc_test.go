package ipc_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"imxup/internal/daemon"
	"imxup/internal/ipc"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	var sawPrimary bool
	for _, worker := range status.Workers {
		if worker.Host == "primary" {
			sawPrimary = true
		}
	}
	if !sawPrimary {
		t.Fatalf("expected primary worker in status, got %#v", status.Workers)
	}

	// An empty folder fails validation, so the record parks in validating
	// and the manager never uploads it.
	enqResp, err := client.Enqueue(ipc.EnqueueRequest{
		Name:       "Empty Set",
		SourcePath: t.TempDir(),
		ThumbSize:  3,
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if enqResp.Item.ID == 0 || enqResp.Item.State != string(queue.StateValidating) {
		t.Fatalf("unexpected enqueued item: %#v", enqResp.Item)
	}

	descResp, err := client.QueueDescribe(enqResp.Item.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if descResp.Item.ID != enqResp.Item.ID || descResp.Item.Name != "Empty Set" {
		t.Fatalf("unexpected describe result: %#v", descResp.Item)
	}
	if _, err := client.QueueDescribe(999); err == nil {
		t.Fatal("expected error for unknown gallery id")
	}

	// No host gallery id yet, so the worker skips the request after
	// accepting it.
	renameResp, err := client.Rename(enqResp.Item.ID, "Empty Set v2")
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if !renameResp.Accepted {
		t.Fatal("expected rename request to be accepted")
	}

	// Stop the workers so a hand-built queued gallery is not claimed while
	// the pause and resume calls run against it.
	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	parked, err := store.NewGallery(ctx, "Parked Set", t.TempDir(), 3, 0)
	if err != nil {
		t.Fatalf("NewGallery: %v", err)
	}
	for _, edge := range []struct{ from, to queue.State }{
		{queue.StateValidating, queue.StateScanning},
		{queue.StateScanning, queue.StateReady},
		{queue.StateReady, queue.StateQueued},
	} {
		if err := store.Transition(ctx, parked.ID, []queue.State{edge.from}, edge.to); err != nil {
			t.Fatalf("transition %s -> %s: %v", edge.from, edge.to, err)
		}
	}

	pauseResp, err := client.Pause(parked.ID)
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !pauseResp.Paused {
		t.Fatal("expected pause to succeed")
	}
	paused, err := store.GetByID(ctx, parked.ID)
	if err != nil {
		t.Fatalf("GetByID after pause: %v", err)
	}
	if paused.State != queue.StatePaused || paused.ResumeState != queue.StateQueued {
		t.Fatalf("unexpected paused record: state=%s resume=%s", paused.State, paused.ResumeState)
	}

	resumeResp, err := client.Resume(parked.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumeResp.Resumed {
		t.Fatal("expected resume to succeed")
	}
	resumed, err := store.GetByID(ctx, parked.ID)
	if err != nil {
		t.Fatalf("GetByID after resume: %v", err)
	}
	if resumed.State != queue.StateQueued {
		t.Fatalf("expected queued after resume, got %s", resumed.State)
	}

	listResp, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Items) != 2 {
		t.Fatalf("expected 2 queue items, got %d", len(listResp.Items))
	}
	queuedResp, err := client.QueueList([]string{string(queue.StateQueued)})
	if err != nil {
		t.Fatalf("QueueList filtered failed: %v", err)
	}
	if len(queuedResp.Items) != 1 || queuedResp.Items[0].ID != parked.ID {
		t.Fatalf("expected queued item %d, got %#v", parked.ID, queuedResp.Items)
	}

	resetResp, err := client.QueueReset()
	if err != nil {
		t.Fatalf("QueueReset failed: %v", err)
	}
	if resetResp.Updated != 0 {
		t.Fatalf("expected 0 stuck items, got %d", resetResp.Updated)
	}

	removeResp, err := client.QueueRemove([]int64{parked.ID})
	if err != nil {
		t.Fatalf("QueueRemove failed: %v", err)
	}
	if removeResp.Removed != 1 {
		t.Fatalf("expected 1 item removed, got %d", removeResp.Removed)
	}

	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 1 {
		t.Fatalf("expected 1 item cleared, got %d", clearResp.Removed)
	}

	status2, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status2.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status2.QueueStats["total"] != 0 {
		t.Fatalf("expected empty queue, got %#v", status2.QueueStats)
	}
}
