package ipc

import "gridflow/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse carries the full daemon status snapshot.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ProjectNewRequest replaces the current project with the given frames.
type ProjectNewRequest struct {
	Frames []string `json:"frames"`
}

// ProjectNewResponse reports how many frames were accepted.
type ProjectNewResponse struct {
	FrameCount int `json:"frame_count"`
}

// SkipUpscaleRequest passes remaining frames through unmodified.
type SkipUpscaleRequest struct{}

// SkipUpscaleResponse acknowledges the skip.
type SkipUpscaleResponse struct {
	Skipped bool `json:"skipped"`
}

// StartVideosRequest launches transition generation.
type StartVideosRequest struct{}

// StartVideosResponse acknowledges the start.
type StartVideosResponse struct {
	Started bool `json:"started"`
}

// TransitionCancelRequest aborts one in-flight transition by id.
type TransitionCancelRequest struct {
	ID int64 `json:"id"`
}

// TransitionCancelResponse reports whether a handle was cancelled.
type TransitionCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// TransitionRetryRequest restarts one settled transition by id.
type TransitionRetryRequest struct {
	ID int64 `json:"id"`
}

// TransitionRetryResponse acknowledges the retry.
type TransitionRetryResponse struct {
	Started bool `json:"started"`
}

// PhaseRetryRequest re-runs the active phase after a failure.
type PhaseRetryRequest struct{}

// PhaseRetryResponse acknowledges the retry.
type PhaseRetryResponse struct {
	Started bool `json:"started"`
}

// BatchEnqueueRequest appends items to the edit queue.
type BatchEnqueueRequest struct {
	Refs []string `json:"refs"`
}

// BatchEnqueueResponse reports how many items were added.
type BatchEnqueueResponse struct {
	Added int `json:"added"`
}

// BatchRunRequest starts a sequential edit pass.
type BatchRunRequest struct {
	Prompt string `json:"prompt"`
}

// BatchRunResponse acknowledges the run.
type BatchRunResponse struct {
	Started bool `json:"started"`
}

// BatchStopRequest interrupts the batch run between items.
type BatchStopRequest struct{}

// BatchStopResponse acknowledges the stop.
type BatchStopResponse struct {
	Stopping bool `json:"stopping"`
}

// ChainRunRequest starts an iterative chain.
type ChainRunRequest struct {
	Anchor string `json:"anchor"`
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
}

// ChainRunResponse acknowledges the run.
type ChainRunResponse struct {
	Started bool `json:"started"`
}

// ChainStopRequest aborts remaining steps and stitches what exists.
type ChainStopRequest struct{}

// ChainStopResponse carries the stitched artifact reference.
type ChainStopResponse struct {
	StitchedRef string `json:"stitched_ref"`
}

// ChainResetRequest discards accumulated chain state.
type ChainResetRequest struct{}

// ChainResetResponse acknowledges the reset.
type ChainResetResponse struct {
	Reset bool `json:"reset"`
}

// GalleryListRequest lists persisted artifacts, optionally by kind.
type GalleryListRequest struct {
	Kind  string `json:"kind"`
	Limit int    `json:"limit"`
}

// GalleryListResponse contains gallery entries, newest first.
type GalleryListResponse struct {
	Entries []api.GalleryEntry `json:"entries"`
}

// GalleryDeleteRequest removes one artifact record by id.
type GalleryDeleteRequest struct {
	ID int64 `json:"id"`
}

// GalleryDeleteResponse acknowledges the delete.
type GalleryDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
