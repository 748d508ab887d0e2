// Package mediaref handles the opaque media references passed between
// schedulers and providers: data URLs, local file paths, and HTTP URLs.
// Adapters use it to decode inline payloads for upload and to persist
// fetched binaries where the stitch collaborator can reach them.
package mediaref

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Kind classifies a media reference by its addressing scheme.
type Kind int

const (
	KindUnknown Kind = iota
	KindDataURL
	KindFile
	KindHTTP
)

// Classify sniffs the scheme of a reference.
func Classify(ref string) Kind {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return KindDataURL
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return KindHTTP
	case strings.HasPrefix(ref, "/"), strings.HasPrefix(ref, "file://"):
		return KindFile
	default:
		return KindUnknown
	}
}

// DecodeDataURL returns the raw bytes and media type of a data URL. A bare
// base64 string (no data: prefix) is accepted for compatibility with
// backends that strip the prefix themselves.
func DecodeDataURL(ref string) ([]byte, string, error) {
	mediaType := "image/png"
	payload := ref
	if strings.HasPrefix(ref, "data:") {
		rest := strings.TrimPrefix(ref, "data:")
		semi := strings.Index(rest, ";base64,")
		if semi < 0 {
			return nil, "", fmt.Errorf("media ref: unsupported data URL encoding")
		}
		if mt := strings.TrimSpace(rest[:semi]); mt != "" {
			mediaType = mt
		}
		payload = rest[semi+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("media ref: decode base64: %w", err)
	}
	return raw, mediaType, nil
}

// EncodeDataURL wraps raw bytes in a data URL.
func EncodeDataURL(raw []byte, mediaType string) string {
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// Base64Payload strips any data URL prefix and returns the bare base64
// string, which several backends expect in their request bodies.
func Base64Payload(ref string) string {
	if !strings.HasPrefix(ref, "data:") {
		return ref
	}
	if idx := strings.Index(ref, ";base64,"); idx >= 0 {
		return ref[idx+len(";base64,"):]
	}
	return ref
}

// FilePath resolves a file-kind reference to a plain path.
func FilePath(ref string) string {
	return strings.TrimPrefix(ref, "file://")
}

// ExtractLastFrame decodes the final frame of a local video into a PNG at
// outPath. Backends that do not hand back a last frame themselves rely on
// this so chained generations have an anchor to continue from.
func ExtractLastFrame(ctx context.Context, videoPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("media ref: create frame dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-sseof", "-0.1",
		"-i", videoPath,
		"-frames:v", "1",
		"-update", "1",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 300 {
			detail = detail[len(detail)-300:]
		}
		return fmt.Errorf("media ref: extract last frame: %w: %s", err, detail)
	}
	return nil
}

// WriteArtifact persists raw bytes under dir with the given name and
// returns a file reference usable by collaborators that need local paths.
func WriteArtifact(dir, name string, raw []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("media ref: create artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("media ref: write artifact: %w", err)
	}
	return path, nil
}
