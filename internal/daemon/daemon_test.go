package daemon

import (
	"context"
	"testing"

	"imxup/internal/logging"
	"imxup/internal/testsupport"
)

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer first.Close()

	second, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after lock release: %v", err)
	}
	second.Stop()
}

func TestStatusReportsRuntimeInformation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := New(cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx := context.Background()

	if st := d.Status(ctx); st.Running {
		t.Fatal("daemon reported running before start")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Close()

	gallery, err := d.Enqueue(ctx, "status check", t.TempDir(), 3, 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if gallery.ID == 0 {
		t.Fatal("gallery id not assigned")
	}

	st := d.Status(ctx)
	if !st.Running || st.PID == 0 || st.QueueDBPath == "" {
		t.Fatalf("incomplete status: %+v", st)
	}
	if st.Stats.Total == 0 {
		t.Fatalf("queue stats empty: %+v", st.Stats)
	}
	// The primary worker and rename worker are always present in the table.
	var sawPrimary, sawRename bool
	for _, entry := range st.Workers {
		switch entry.Host {
		case "primary":
			sawPrimary = true
		case "rename":
			sawRename = true
		}
	}
	if !sawPrimary || !sawRename {
		t.Fatalf("worker table missing baseline entries: %+v", st.Workers)
	}
}
