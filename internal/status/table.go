// Package status holds the shared worker-status table the presentation
// layer polls. Every read and write path takes the same mutex; there is no
// lock-free fast path.
package status

import (
	"sort"
	"sync"
	"time"
)

// Kind identifies what sort of worker an entry describes.
type Kind string

const (
	KindPrimary  Kind = "primary"
	KindFileHost Kind = "filehost"
	KindRename   Kind = "rename"
)

// QuotaTTL bounds how long a storage-quota snapshot is served before a
// worker should fetch a fresh one.
const QuotaTTL = 30 * time.Minute

// Quota is a cached storage-quota snapshot for one host.
type Quota struct {
	UsedBytes  int64
	TotalBytes int64
	FetchedAt  time.Time
}

// Entry is the live status of one worker. Active is false for placeholder
// entries: hosts that are configured but disabled and therefore have no
// worker goroutine. Placeholders keep lookups by host identity total.
type Entry struct {
	Host       string
	Kind       Kind
	Active     bool
	GalleryID  int64
	SpeedBps   float64
	DoneBytes  int64
	TotalBytes int64
	LastError  string
	Quota      Quota
	UpdatedAt  time.Time
}

// Table is the mutex-guarded worker status map.
type Table struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

// NewTable builds an empty status table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Configure rebuilds the table for a host set. Every configured host gets
// an entry, enabled hosts as active workers and disabled hosts as
// placeholders, so Get never misses for a configured host.
func (t *Table) Configure(kind Kind, hosts map[string]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for host := range t.entries {
		if t.entries[host].Kind == kind {
			delete(t.entries, host)
		}
	}
	for host, enabled := range hosts {
		t.entries[host] = Entry{
			Host:      host,
			Kind:      kind,
			Active:    enabled,
			UpdatedAt: t.now(),
		}
	}
}

// Get returns the entry for host. Lookups are total: an unconfigured host
// yields an inactive placeholder rather than a missing-key fault.
func (t *Table) Get(host string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[host]; ok {
		return entry
	}
	return Entry{Host: host}
}

// Has reports whether host is configured in the table.
func (t *Table) Has(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[host]
	return ok
}

// SetProgress records transfer progress for host. Byte counts arriving out
// of order from different goroutines are accepted only when non-decreasing
// for the same gallery, so stale reports can never roll progress back.
func (t *Table) SetProgress(host string, galleryID, done, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[host]
	if !ok {
		return
	}
	if entry.GalleryID == galleryID && done < entry.DoneBytes {
		return
	}
	entry.GalleryID = galleryID
	entry.DoneBytes = done
	entry.TotalBytes = total
	entry.UpdatedAt = t.now()
	t.entries[host] = entry
}

// SetSpeed records the instantaneous transfer speed for host.
func (t *Table) SetSpeed(host string, bytesPerSecond float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[host]
	if !ok {
		return
	}
	entry.SpeedBps = bytesPerSecond
	entry.UpdatedAt = t.now()
	t.entries[host] = entry
}

// SetError records the last error observed by host's worker. Pass an empty
// string to clear.
func (t *Table) SetError(host, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[host]
	if !ok {
		return
	}
	entry.LastError = message
	entry.UpdatedAt = t.now()
	t.entries[host] = entry
}

// SetQuota stores a fresh storage-quota snapshot for host.
func (t *Table) SetQuota(host string, used, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[host]
	if !ok {
		return
	}
	entry.Quota = Quota{UsedBytes: used, TotalBytes: total, FetchedAt: t.now()}
	entry.UpdatedAt = entry.Quota.FetchedAt
	t.entries[host] = entry
}

// QuotaFresh reports whether host's quota snapshot is still inside the TTL.
// Workers use this to avoid hammering hosts that expose quota via separate
// calls.
func (t *Table) QuotaFresh(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[host]
	if !ok || entry.Quota.FetchedAt.IsZero() {
		return false
	}
	return t.now().Sub(entry.Quota.FetchedAt) < QuotaTTL
}

// Snapshot returns a copy of every entry ordered by host name. The copy is
// immutable from the table's point of view; readers never observe a
// half-updated entry.
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}
