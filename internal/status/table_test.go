package status

import (
	"sync"
	"testing"
	"time"
)

func configuredTable() *Table {
	table := NewTable()
	table.Configure(KindFileHost, map[string]bool{
		"filespace": true,
		"fileboom":  false,
	})
	return table
}

func TestDisabledHostGetsPlaceholder(t *testing.T) {
	table := configuredTable()

	entry := table.Get("fileboom")
	if entry.Host != "fileboom" {
		t.Fatalf("unexpected host %q", entry.Host)
	}
	if entry.Active {
		t.Fatal("disabled host must be a placeholder")
	}
	if !table.Has("fileboom") {
		t.Fatal("configured host missing from table")
	}

	active := table.Get("filespace")
	if !active.Active {
		t.Fatal("enabled host must be active")
	}
}

func TestGetIsTotalForUnknownHost(t *testing.T) {
	table := configuredTable()

	entry := table.Get("never-configured")
	if entry.Host != "never-configured" || entry.Active {
		t.Fatalf("unexpected entry for unknown host: %#v", entry)
	}
}

func TestProgressIsMonotonicPerGallery(t *testing.T) {
	table := configuredTable()

	table.SetProgress("filespace", 1, 500, 1000)
	table.SetProgress("filespace", 1, 300, 1000)
	if got := table.Get("filespace").DoneBytes; got != 500 {
		t.Fatalf("stale progress accepted: %d", got)
	}

	// A new gallery resets the baseline.
	table.SetProgress("filespace", 2, 100, 400)
	if got := table.Get("filespace").DoneBytes; got != 100 {
		t.Fatalf("new gallery progress rejected: %d", got)
	}
}

func TestConcurrentProgressNeverDecreases(t *testing.T) {
	table := configuredTable()

	var wg sync.WaitGroup
	for i := int64(1); i <= 100; i++ {
		wg.Add(1)
		go func(done int64) {
			defer wg.Done()
			table.SetProgress("filespace", 7, done, 100)
		}(i)
	}
	wg.Wait()

	final := table.Get("filespace").DoneBytes
	if final < 1 || final > 100 {
		t.Fatalf("final progress out of range: %d", final)
	}

	table.SetProgress("filespace", 7, 0, 100)
	if table.Get("filespace").DoneBytes != final {
		t.Fatal("zero report rolled progress back")
	}
}

func TestQuotaFreshnessTTL(t *testing.T) {
	table := configuredTable()
	base := time.Now()
	table.now = func() time.Time { return base }

	if table.QuotaFresh("filespace") {
		t.Fatal("missing quota reported fresh")
	}

	table.SetQuota("filespace", 10, 100)
	if !table.QuotaFresh("filespace") {
		t.Fatal("just-fetched quota reported stale")
	}

	table.now = func() time.Time { return base.Add(QuotaTTL + time.Minute) }
	if table.QuotaFresh("filespace") {
		t.Fatal("expired quota reported fresh")
	}
}

func TestReconfigureReplacesHostSet(t *testing.T) {
	table := configuredTable()
	table.SetError("filespace", "boom")

	table.Configure(KindFileHost, map[string]bool{"newhost": true})
	if table.Has("filespace") {
		t.Fatal("old host survived reconfigure")
	}
	if !table.Has("newhost") {
		t.Fatal("new host missing after reconfigure")
	}
}

func TestSnapshotSortedByHost(t *testing.T) {
	table := configuredTable()
	table.Configure(KindRename, map[string]bool{"primary-rename": true})

	snapshot := table.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snapshot))
	}
	for i := 1; i < len(snapshot); i++ {
		if snapshot[i-1].Host > snapshot[i].Host {
			t.Fatalf("snapshot not sorted: %q before %q", snapshot[i-1].Host, snapshot[i].Host)
		}
	}
}
