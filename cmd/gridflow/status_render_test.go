package main

import (
	"bytes"
	"strings"
	"testing"

	"gridflow/internal/api"
)

func TestRenderStatusShowsAllSections(t *testing.T) {
	status := api.DaemonStatus{
		Running:      true,
		PID:          4242,
		GalleryDB:    "/tmp/gallery.db",
		LockFilePath: "/tmp/gridflowd.lock",
		Providers:    []string{"gemini", "comfy"},
		Pipeline: api.PipelineStatus{
			Phase: "generatingVideos",
			Transitions: []api.Unit{
				{ID: 1, Status: "completed", InputRef: "a.png", OutputRef: "t1.mp4"},
				{ID: 2, Status: "error", InputRef: "b.png", ErrorDetail: "model refused"},
			},
			TransitionAggregate: api.Aggregate{Completed: 1, Error: 1, Total: 2, Percent: 50},
		},
		Batch: api.BatchStatus{Running: true, Aggregate: api.Aggregate{Pending: 3, Total: 3}},
		Chain: api.ChainStatus{
			Segments:    []api.ChainSegment{{VideoRef: "seg.mp4"}},
			StitchedRef: "stitched.mp4",
			LastError:   "stitching failed",
		},
	}

	var buf bytes.Buffer
	renderStatus(&buf, status, false)
	out := buf.String()

	for _, want := range []string{
		"Running",
		"4242",
		"gemini, comfy",
		"Generating Videos",
		"1/2 done (50%), 0 active, 1 failed",
		"model refused",
		"stitched.mp4",
		"stitching failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered status missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusStopped(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, api.DaemonStatus{}, false)
	if !strings.Contains(buf.String(), "Stopped") {
		t.Errorf("expected Stopped label, got:\n%s", buf.String())
	}
}

func TestDisplayPhase(t *testing.T) {
	cases := map[string]string{
		"idle":             "Idle",
		"slicing":          "Slicing",
		"generatingVideos": "Generating Videos",
		"":                 "",
	}
	for input, want := range cases {
		if got := displayPhase(input); got != want {
			t.Errorf("displayPhase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestAggregateSummaryEmpty(t *testing.T) {
	if got := aggregateSummary(api.Aggregate{}); got != "none" {
		t.Errorf("expected none for empty aggregate, got %q", got)
	}
}

func TestStatusLabelWithoutColor(t *testing.T) {
	if got := statusLabel("processing", false); got != "Processing" {
		t.Errorf("statusLabel = %q, want Processing", got)
	}
}
