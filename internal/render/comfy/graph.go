package comfy

import (
	"fmt"
	"math/rand"
)

// Graph is a workflow in the engine's prompt format: node id → node.
type Graph map[string]Node

// Node is one workflow node. Inputs hold literals or [nodeID, outputIndex]
// references to upstream nodes.
type Node struct {
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Role names an output socket a caller needs to read after execution.
// Graphs declare which node serves which role instead of callers hardcoding
// node ids.
type Role string

const (
	RolePrimaryOutput Role = "primary_output"
	RoleLastFrame     Role = "last_frame"
)

// Workflow pairs a graph with its role map.
type Workflow struct {
	Graph Graph
	Roles map[Role]string
}

// Validate checks that every declared role points at an existing node. A
// graph whose roles do not resolve is rejected before submission.
func (w Workflow) Validate(required ...Role) error {
	for _, role := range required {
		nodeID, ok := w.Roles[role]
		if !ok || nodeID == "" {
			return fmt.Errorf("workflow missing role %q", role)
		}
		if _, ok := w.Graph[nodeID]; !ok {
			return fmt.Errorf("workflow role %q points at unknown node %q", role, nodeID)
		}
	}
	return nil
}

// NodeFor returns the node id serving a role; empty when undeclared.
func (w Workflow) NodeFor(role Role) string {
	return w.Roles[role]
}

// UpscaleWorkflow builds the diffusion upscaler graph around an uploaded
// input image.
func UpscaleWorkflow(inputName string) Workflow {
	graph := Graph{
		"10": {
			ClassType: "SeedVR2VideoUpscaler",
			Inputs: map[string]any{
				"seed":               rand.Int63n(1_000_000_000),
				"resolution":         2048,
				"max_resolution":     4096,
				"batch_size":         1,
				"uniform_batch_size": false,
				"color_correction":   "lab",
				"temporal_overlap":   0,
				"prepend_frames":     0,
				"input_noise_scale":  0,
				"latent_noise_scale": 0,
				"offload_device":     "cpu",
				"enable_debug":       false,
				"image":              []any{"17", 0},
				"dit":                []any{"14", 0},
				"vae":                []any{"13", 0},
			},
		},
		"13": {
			ClassType: "SeedVR2LoadVAEModel",
			Inputs: map[string]any{
				"model":               "ema_vae_fp16.safetensors",
				"device":              "cuda:0",
				"encode_tiled":        true,
				"encode_tile_size":    1024,
				"encode_tile_overlap": 128,
				"decode_tiled":        true,
				"decode_tile_size":    1024,
				"decode_tile_overlap": 128,
				"tile_debug":          "false",
				"offload_device":      "cpu",
				"cache_model":         false,
			},
		},
		"14": {
			ClassType: "SeedVR2LoadDiTModel",
			Inputs: map[string]any{
				"model":              "seedvr2_ema_7b_sharp_fp16.safetensors",
				"device":             "cuda:0",
				"blocks_to_swap":     36,
				"swap_io_components": false,
				"offload_device":     "cpu",
				"cache_model":        false,
				"attention_mode":     "sdpa",
			},
		},
		"15": {
			ClassType: "SaveImage",
			Inputs: map[string]any{
				"filename_prefix": "gridflow_upscale",
				"images":          []any{"10", 0},
			},
		},
		"16": {
			ClassType: "LoadImage",
			Inputs: map[string]any{
				"image":  inputName,
				"upload": "image",
			},
		},
		"17": {
			ClassType: "JoinImageWithAlpha",
			Inputs: map[string]any{
				"image": []any{"16", 0},
				"alpha": []any{"16", 1},
			},
		},
	}
	return Workflow{
		Graph: graph,
		Roles: map[Role]string{RolePrimaryOutput: "15"},
	}
}

// EditWorkflow builds an instruction-guided image edit graph around an
// uploaded input image.
func EditWorkflow(inputName, prompt string) Workflow {
	graph := Graph{
		"1": {
			ClassType: "LoadImage",
			Inputs: map[string]any{
				"image":  inputName,
				"upload": "image",
			},
		},
		"2": {
			ClassType: "ImageEditModelLoader",
			Inputs: map[string]any{
				"model": "qwen_image_edit_fp8.safetensors",
			},
		},
		"3": {
			ClassType: "ImageEdit",
			Inputs: map[string]any{
				"seed":   rand.Int63n(1_000_000_000),
				"prompt": prompt,
				"image":  []any{"1", 0},
				"model":  []any{"2", 0},
			},
		},
		"4": {
			ClassType: "SaveImage",
			Inputs: map[string]any{
				"filename_prefix": "gridflow_edit",
				"images":          []any{"3", 0},
			},
		},
	}
	return Workflow{
		Graph: graph,
		Roles: map[Role]string{RolePrimaryOutput: "4"},
	}
}

// ImageToVideoWorkflow builds the image-to-video graph. Besides the saved
// video it wires the generated batch's final frame into its own save node
// so chained generations have an anchor without decoding the video.
func ImageToVideoWorkflow(inputName, prompt, aspect string) Workflow {
	width, height := videoDimensions(aspect)
	graph := Graph{
		"1": {
			ClassType: "LoadImage",
			Inputs: map[string]any{
				"image":  inputName,
				"upload": "image",
			},
		},
		"2": {
			ClassType: "WanVideoModelLoader",
			Inputs: map[string]any{
				"model": "wan2.2_i2v_rapid_fp8.safetensors",
			},
		},
		"3": {
			ClassType: "WanImageToVideo",
			Inputs: map[string]any{
				"seed":   rand.Int63n(1_000_000_000),
				"prompt": prompt,
				"width":  width,
				"height": height,
				"length": 81,
				"fps":    16,
				"image":  []any{"1", 0},
				"model":  []any{"2", 0},
			},
		},
		"4": {
			ClassType: "SaveVideo",
			Inputs: map[string]any{
				"filename_prefix": "gridflow_video",
				"frames":          []any{"3", 0},
				"fps":             16,
			},
		},
		"5": {
			ClassType: "ImageFromBatch",
			Inputs: map[string]any{
				"image":       []any{"3", 0},
				"batch_index": 80,
				"length":      1,
			},
		},
		"6": {
			ClassType: "SaveImage",
			Inputs: map[string]any{
				"filename_prefix": "gridflow_lastframe",
				"images":          []any{"5", 0},
			},
		},
	}
	return Workflow{
		Graph: graph,
		Roles: map[Role]string{
			RolePrimaryOutput: "4",
			RoleLastFrame:     "6",
		},
	}
}

func videoDimensions(aspect string) (int, int) {
	switch aspect {
	case "9:16":
		return 720, 1280
	case "1:1":
		return 960, 960
	case "3:4":
		return 832, 1104
	case "4:3":
		return 1104, 832
	default:
		return 1280, 720
	}
}
