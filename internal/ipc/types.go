package ipc

import (
	"time"

	"imxup/internal/queue"
	"imxup/internal/status"
)

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// GalleryItem is the lightweight wire representation of a queue gallery.
type GalleryItem struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SourcePath    string    `json:"source_path"`
	State         string    `json:"state"`
	ResumeState   string    `json:"resume_state,omitempty"`
	FileCount     int       `json:"file_count"`
	TotalBytes    int64     `json:"total_bytes"`
	DoneBytes     int64     `json:"done_bytes"`
	HostGalleryID string    `json:"host_gallery_id,omitempty"`
	GalleryURL    string    `json:"gallery_url,omitempty"`
	TemplatePath  string    `json:"template_path,omitempty"`
	ArchivePath   string    `json:"archive_path,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	OriginID      int64     `json:"origin_id,omitempty"`
	Ext1          string    `json:"ext1,omitempty"`
	Ext2          string    `json:"ext2,omitempty"`
	Ext3          string    `json:"ext3,omitempty"`
	Ext4          string    `json:"ext4,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FromGallery converts a queue gallery into its wire representation.
func FromGallery(g *queue.Gallery) GalleryItem {
	return GalleryItem{
		ID:            g.ID,
		Name:          g.Name,
		SourcePath:    g.SourcePath,
		State:         string(g.State),
		ResumeState:   string(g.ResumeState),
		FileCount:     g.FileCount,
		TotalBytes:    g.TotalBytes,
		DoneBytes:     g.DoneBytes,
		HostGalleryID: g.HostGalleryID,
		GalleryURL:    g.GalleryURL,
		TemplatePath:  g.TemplatePath,
		ArchivePath:   g.ArchivePath,
		ErrorMessage:  g.ErrorMessage,
		ErrorKind:     g.ErrorKind,
		OriginID:      g.OriginID,
		Ext1:          g.Ext1,
		Ext2:          g.Ext2,
		Ext3:          g.Ext3,
		Ext4:          g.Ext4,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

// WorkerStatus is the wire representation of one worker-status table entry.
type WorkerStatus struct {
	Host         string  `json:"host"`
	Kind         string  `json:"kind"`
	Active       bool    `json:"active"`
	GalleryID    int64   `json:"gallery_id,omitempty"`
	SpeedBps     float64 `json:"speed_bps,omitempty"`
	DoneBytes    int64   `json:"done_bytes,omitempty"`
	TotalBytes   int64   `json:"total_bytes,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
	QuotaUsed    int64   `json:"quota_used,omitempty"`
	QuotaTotal   int64   `json:"quota_total,omitempty"`
	QuotaFetched string  `json:"quota_fetched,omitempty"`
}

// FromWorkerEntry converts a status-table entry into its wire representation.
func FromWorkerEntry(e status.Entry) WorkerStatus {
	ws := WorkerStatus{
		Host:       e.Host,
		Kind:       string(e.Kind),
		Active:     e.Active,
		GalleryID:  e.GalleryID,
		SpeedBps:   e.SpeedBps,
		DoneBytes:  e.DoneBytes,
		TotalBytes: e.TotalBytes,
		LastError:  e.LastError,
		QuotaUsed:  e.Quota.UsedBytes,
		QuotaTotal: e.Quota.TotalBytes,
	}
	if !e.Quota.FetchedAt.IsZero() {
		ws.QuotaFetched = e.Quota.FetchedAt.Format(time.RFC3339)
	}
	return ws
}

// StatusResponse represents combined daemon/queue status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	QueueDBPath string         `json:"queue_db_path"`
	LockPath    string         `json:"lock_path"`
	QueueStats  map[string]int `json:"queue_stats"`
	Workers     []WorkerStatus `json:"workers"`
}

// EnqueueRequest adds a gallery folder to the queue.
type EnqueueRequest struct {
	Name        string `json:"name"`
	SourcePath  string `json:"source_path"`
	ThumbSize   int    `json:"thumb_size"`
	ContentType int    `json:"content_type"`
}

// EnqueueResponse returns the created gallery.
type EnqueueResponse struct {
	Item GalleryItem `json:"item"`
}

// QueueListRequest filters queue listing by state.
type QueueListRequest struct {
	States []string `json:"states"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []GalleryItem `json:"items"`
}

// QueueDescribeRequest fetches a single gallery by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single gallery.
type QueueDescribeResponse struct {
	Item GalleryItem `json:"item"`
}

// PauseRequest pauses one gallery.
type PauseRequest struct {
	ID int64 `json:"id"`
}

// PauseResponse reports pause result.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// ResumeRequest returns a paused gallery to the queue.
type ResumeRequest struct {
	ID int64 `json:"id"`
}

// ResumeResponse reports resume result.
type ResumeResponse struct {
	Resumed bool `json:"resumed"`
}

// QueueRemoveRequest removes specific galleries by ID.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed entries.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearRequest removes all galleries.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearCompletedRequest removes completed galleries.
type QueueClearCompletedRequest struct{}

// QueueClearCompletedResponse reports number of removed entries.
type QueueClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearFailedRequest removes failed galleries.
type QueueClearFailedRequest struct{}

// QueueClearFailedResponse reports number of removed entries.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest returns galleries stranded in uploading to the queue.
type QueueResetRequest struct{}

// QueueResetResponse reports number of galleries reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// ReEnqueueRequest splits an incomplete gallery's remainder into a fresh
// queued record.
type ReEnqueueRequest struct {
	ID int64 `json:"id"`
}

// ReEnqueueResponse returns the fresh queued record.
type ReEnqueueResponse struct {
	Item GalleryItem `json:"item"`
}

// AppendRequest enqueues files added to a finished gallery's folder.
type AppendRequest struct {
	ID int64 `json:"id"`
}

// AppendResponse returns the record holding the appended files.
type AppendResponse struct {
	Item GalleryItem `json:"item"`
}

// RenameRequest queues a gallery rename against the primary host.
type RenameRequest struct {
	ID      int64  `json:"id"`
	NewName string `json:"new_name"`
}

// RenameResponse reports whether the rename was accepted by the worker queue.
type RenameResponse struct {
	Accepted bool `json:"accepted"`
}

// LogTailRequest reads daemon log lines. A negative Offset selects the last
// Limit lines; Follow with WaitMillis blocks until new lines appear or the
// wait expires.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int64 `json:"wait_millis"`
}

// LogTailResponse carries the lines read and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
