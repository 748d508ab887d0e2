package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Unit describes a tracked work item in a transport-friendly format.
type Unit struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	InputRef    string `json:"inputRef,omitempty"`
	OutputRef   string `json:"outputRef,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
	FromID      int64  `json:"fromId,omitempty"`
	ToID        int64  `json:"toId,omitempty"`
}

// Aggregate summarizes the status distribution of a unit collection.
type Aggregate struct {
	Pending    int     `json:"pending"`
	Processing int     `json:"processing"`
	Completed  int     `json:"completed"`
	Error      int     `json:"error"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
}

// PipelineStatus summarizes the frame pipeline.
type PipelineStatus struct {
	Phase               string    `json:"phase"`
	LastError           string    `json:"lastError,omitempty"`
	Frames              []Unit    `json:"frames"`
	FrameAggregate      Aggregate `json:"frameAggregate"`
	Transitions         []Unit    `json:"transitions"`
	TransitionAggregate Aggregate `json:"transitionAggregate"`
}

// BatchStatus summarizes the sequential edit queue.
type BatchStatus struct {
	Running   bool      `json:"running"`
	Items     []Unit    `json:"items"`
	Aggregate Aggregate `json:"aggregate"`
}

// ChainSegment is one completed step of an iterative chain.
type ChainSegment struct {
	VideoRef          string `json:"videoRef"`
	StartAnchorRef    string `json:"startAnchorRef"`
	EndAnchorRef      string `json:"endAnchorRef"`
	LocalArtifactPath string `json:"localArtifactPath,omitempty"`
	PromptText        string `json:"promptText,omitempty"`
}

// ChainStatus summarizes the iterative chain runner.
type ChainStatus struct {
	Running     bool           `json:"running"`
	Segments    []ChainSegment `json:"segments"`
	Anchor      string         `json:"anchor,omitempty"`
	StitchedRef string         `json:"stitchedRef,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
}

// GalleryEntry describes one persisted artifact.
type GalleryEntry struct {
	ID        int64             `json:"id"`
	Kind      string            `json:"kind"`
	Ref       string            `json:"ref"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"createdAt,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	GalleryDB    string         `json:"galleryDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Batch        BatchStatus    `json:"batch"`
	Chain        ChainStatus    `json:"chain"`
	Providers    []string       `json:"providers"`
}

// GalleryListResponse wraps a collection of gallery entries.
type GalleryListResponse struct {
	Entries []GalleryEntry `json:"entries"`
}
