package api

import (
	"time"

	"gridflow/internal/chain"
	"gridflow/internal/gallery"
	"gridflow/internal/pipeline"
	"gridflow/internal/render"
	"gridflow/internal/unit"
)

// FromUnit converts a tracked unit to its API representation.
func FromUnit(u unit.Unit) Unit {
	return Unit{
		ID:          u.ID,
		Status:      string(u.Status),
		InputRef:    u.InputRef,
		OutputRef:   u.OutputRef,
		ErrorDetail: u.ErrorDetail,
		FromID:      u.FromID,
		ToID:        u.ToID,
	}
}

// FromUnits converts a slice of tracked units into API DTOs.
func FromUnits(units []unit.Unit) []Unit {
	if len(units) == 0 {
		return nil
	}
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		out = append(out, FromUnit(u))
	}
	return out
}

// FromAggregate converts status counts to the API payload.
func FromAggregate(a unit.Aggregate) Aggregate {
	return Aggregate{
		Pending:    a.Pending,
		Processing: a.Processing,
		Completed:  a.Completed,
		Error:      a.Error,
		Total:      a.Total,
		Percent:    a.Percent,
	}
}

// FromPipelineSnapshot converts a pipeline snapshot to the API payload.
func FromPipelineSnapshot(snap pipeline.Snapshot) PipelineStatus {
	return PipelineStatus{
		Phase:               string(snap.Phase),
		LastError:           snap.LastError,
		Frames:              FromUnits(snap.Frames),
		FrameAggregate:      FromAggregate(snap.FrameAggregate),
		Transitions:         FromUnits(snap.Transitions),
		TransitionAggregate: FromAggregate(snap.TransitionAggregate),
	}
}

// FromChainSnapshot converts a chain snapshot to the API payload.
func FromChainSnapshot(snap chain.Snapshot) ChainStatus {
	segments := make([]ChainSegment, 0, len(snap.Segments))
	for _, segment := range snap.Segments {
		segments = append(segments, ChainSegment{
			VideoRef:          segment.VideoRef,
			StartAnchorRef:    segment.StartAnchorRef,
			EndAnchorRef:      segment.EndAnchorRef,
			LocalArtifactPath: segment.LocalArtifactPath,
			PromptText:        segment.PromptText,
		})
	}
	return ChainStatus{
		Running:     snap.Running,
		Segments:    segments,
		Anchor:      snap.Anchor,
		StitchedRef: snap.StitchedRef,
		LastError:   snap.LastError,
	}
}

// FromGalleryEntry converts a persisted artifact to the API payload.
func FromGalleryEntry(entry gallery.Entry) GalleryEntry {
	return GalleryEntry{
		ID:        entry.ID,
		Kind:      entry.Kind,
		Ref:       entry.Ref,
		Metadata:  entry.Metadata,
		CreatedAt: FormatTime(entry.CreatedAt),
	}
}

// FromGalleryEntries converts a slice of artifacts into API DTOs.
func FromGalleryEntries(entries []gallery.Entry) []GalleryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]GalleryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromGalleryEntry(entry))
	}
	return out
}

// ProviderIDs converts registry identifiers into plain strings.
func ProviderIDs(ids []render.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
