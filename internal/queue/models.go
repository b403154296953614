package queue

import (
	"strings"
	"time"
)

// State represents the lifecycle of a gallery.
type State string

const (
	StateValidating State = "validating"
	StateScanning   State = "scanning"
	StateReady      State = "ready"
	StateQueued     State = "queued"
	StateUploading  State = "uploading"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateIncomplete State = "incomplete"
)

var allStates = []State{
	StateValidating,
	StateScanning,
	StateReady,
	StateQueued,
	StateUploading,
	StatePaused,
	StateCompleted,
	StateFailed,
	StateIncomplete,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// validEdges is the gallery state machine. A transition is legal only when
// the target appears in the source's edge list. Paused records the state it
// was entered from so resume returns to the same place.
var validEdges = map[State][]State{
	StateValidating: {StateScanning, StateFailed},
	StateScanning:   {StateReady, StateFailed},
	StateReady:      {StateQueued},
	StateQueued:     {StateUploading, StatePaused},
	StateUploading:  {StateCompleted, StateFailed, StateIncomplete, StatePaused},
	StatePaused:     {StateQueued, StateUploading},
	StateCompleted:  {},
	StateFailed:     {},
	StateIncomplete: {},
}

// EdgeAllowed reports whether from -> to is a legal state machine edge.
func EdgeAllowed(from, to State) bool {
	for _, next := range validEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state has no outgoing edges. Incomplete is
// terminal but may be re-enqueued as a fresh record via ReEnqueueIncomplete.
func IsTerminal(state State) bool {
	return len(validEdges[state]) == 0
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// Gallery represents one upload unit persisted in SQLite. Galleries are
// owned by the Store; other components work on copies and never mutate a
// row except through Store methods.
type Gallery struct {
	ID         int64
	Name       string
	SourcePath string
	State      State
	// ResumeState is populated while paused and names the state the
	// gallery returns to on resume.
	ResumeState State
	FileCount   int
	TotalBytes  int64
	DoneBytes   int64
	// HostGalleryID is the identifier the primary host assigned.
	HostGalleryID string
	GalleryURL    string
	// TemplatePath and ArchivePath are artifact paths produced by the
	// primary upload flow, consumed by hooks and secondary workers.
	TemplatePath string
	ArchivePath  string
	ThumbSize    int
	ContentType  int
	ErrorMessage string
	ErrorKind    string
	// OriginID links a re-enqueued remainder back to the Incomplete
	// record it was split from.
	OriginID int64
	Ext1     string
	Ext2     string
	Ext3     string
	Ext4     string
	Custom1  string
	Custom2  string
	Custom3  string
	Custom4  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ext returns the 1-based ext field, empty for out-of-range indexes.
func (g *Gallery) Ext(i int) string {
	switch i {
	case 1:
		return g.Ext1
	case 2:
		return g.Ext2
	case 3:
		return g.Ext3
	case 4:
		return g.Ext4
	}
	return ""
}

// SetExt assigns the 1-based ext field; out-of-range indexes are ignored.
func (g *Gallery) SetExt(i int, value string) {
	switch i {
	case 1:
		g.Ext1 = value
	case 2:
		g.Ext2 = value
	case 3:
		g.Ext3 = value
	case 4:
		g.Ext4 = value
	}
}

// Custom returns the 1-based custom field, empty for out-of-range indexes.
func (g *Gallery) Custom(i int) string {
	switch i {
	case 1:
		return g.Custom1
	case 2:
		return g.Custom2
	case 3:
		return g.Custom3
	case 4:
		return g.Custom4
	}
	return ""
}

// File represents one image inside a gallery.
type File struct {
	ID          int64
	GalleryID   int64
	Name        string
	Path        string
	Bytes       int64
	Position    int
	Uploaded    bool
	HostImageID string
	UploadedAt  *time.Time
}

// Stats aggregates gallery counts per lifecycle state.
type Stats struct {
	Total      int
	Queued     int
	Uploading  int
	Paused     int
	Completed  int
	Failed     int
	Incomplete int
}
