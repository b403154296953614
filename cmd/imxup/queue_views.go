package main

import (
	"fmt"
	"strconv"
	"time"

	"imxup/internal/ipc"
	"imxup/internal/queue"
)

// stateOrder fixes the row order of the queue summary table.
var stateOrder = []string{
	"validating", "scanning", "ready", "queued", "uploading",
	"paused", "completed", "failed", "incomplete",
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, state := range stateOrder {
		count, ok := stats[state]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{state, strconv.Itoa(count)})
	}
	return rows
}

func buildQueueListRows(items []ipc.GalleryItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Name,
			item.State,
			strconv.Itoa(item.FileCount),
			formatProgress(item.DoneBytes, item.TotalBytes),
			item.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return rows
}

func galleryItemsFromStore(galleries []*queue.Gallery) []ipc.GalleryItem {
	items := make([]ipc.GalleryItem, 0, len(galleries))
	for _, gallery := range galleries {
		if gallery == nil {
			continue
		}
		items = append(items, ipc.FromGallery(gallery))
	}
	return items
}

func buildWorkerRows(workers []ipc.WorkerStatus) [][]string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		gallery := ""
		if w.GalleryID > 0 {
			gallery = strconv.FormatInt(w.GalleryID, 10)
		}
		quota := ""
		if w.QuotaTotal > 0 {
			quota = fmt.Sprintf("%s / %s", humanBytes(w.QuotaUsed), humanBytes(w.QuotaTotal))
		}
		rows = append(rows, []string{
			w.Host,
			w.Kind,
			yesNo(w.Active),
			gallery,
			formatProgress(w.DoneBytes, w.TotalBytes),
			formatSpeed(w.SpeedBps),
			quota,
			w.LastError,
		})
	}
	return rows
}

func formatProgress(done, total int64) string {
	if total <= 0 {
		return ""
	}
	percent := float64(done) / float64(total) * 100
	return fmt.Sprintf("%s / %s (%.0f%%)", humanBytes(done), humanBytes(total), percent)
}

func formatSpeed(bps float64) string {
	if bps <= 0 {
		return ""
	}
	return humanBytes(int64(bps)) + "/s"
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
