package pipeline

// Phase is the project-level state machine. It moves strictly forward; the
// only way back is replacing the whole project with a new source asset.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseSlicing          Phase = "slicing"
	PhaseUpscaling        Phase = "upscaling"
	PhaseGeneratingVideos Phase = "generatingVideos"
	PhaseCompleted        Phase = "completed"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:             0,
	PhaseSlicing:          1,
	PhaseUpscaling:        2,
	PhaseGeneratingVideos: 3,
	PhaseCompleted:        4,
}

// CanAdvance reports whether moving from one phase to the next is a legal
// forward step.
func CanAdvance(from, to Phase) bool {
	fromRank, ok := phaseOrder[from]
	if !ok {
		return false
	}
	toRank, ok := phaseOrder[to]
	if !ok {
		return false
	}
	return toRank == fromRank+1
}
