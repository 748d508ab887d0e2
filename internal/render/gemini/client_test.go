package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"gridflow/internal/render"
)

func TestUpscaleImageReturnsInlineData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{
						{"text": "here you go"},
						{"inlineData": map[string]any{"mimeType": "image/png", "data": "QUJD"}},
					},
				},
			}},
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	got, err := client.UpscaleImage(context.Background(), "data:image/png;base64,AAAA", 2, render.UpscaleHints{})
	if err != nil {
		t.Fatalf("UpscaleImage: %v", err)
	}
	if got != "data:image/png;base64,QUJD" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestUpscaleImageWithoutImagePartFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "no image today"}}},
			}},
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.UpscaleImage(context.Background(), "AAAA", 2, render.UpscaleHints{})
	if !errors.Is(err, render.ErrInvalidResponse) {
		t.Fatalf("expected invalid response error, got %v", err)
	}
}

func TestAuthFailureClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer server.Close()

	client := NewClient("bad-key", WithBaseURL(server.URL))
	_, err := client.UpscaleImage(context.Background(), "AAAA", 2, render.UpscaleHints{})
	if !errors.Is(err, render.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("nested message not unwrapped: %v", err)
	}
}

func TestMissingAPIKeyFailsBeforeRequest(t *testing.T) {
	client := NewClient("")
	_, err := client.UpscaleImage(context.Background(), "AAAA", 2, render.UpscaleHints{})
	if !errors.Is(err, render.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestGenerateVideoTransitionPollsAndDownloads(t *testing.T) {
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, ":predictLongRunning"):
			var req videoRequest
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.Instances) != 1 || req.Instances[0].LastFrame == nil {
				t.Errorf("transition request missing last frame: %+v", req)
			}
			if req.Parameters.AspectRatio != "16:9" {
				t.Errorf("square aspect should clamp to 16:9, got %s", req.Parameters.AspectRatio)
			}
			json.NewEncoder(w).Encode(map[string]any{"name": "operations/abc123"})
		case strings.HasSuffix(r.URL.Path, "/operations/abc123"):
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(map[string]any{"name": "operations/abc123", "done": false})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"name": "operations/abc123",
				"done": true,
				"response": map[string]any{
					"generatedVideos": []map[string]any{{"video": map[string]any{"uri": server.URL + "/files/out.mp4?alt=media"}}},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/files/"):
			if r.URL.Query().Get("key") != "test-key" {
				t.Errorf("download missing key parameter")
			}
			w.Write([]byte("fake-video-bytes"))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient("test-key",
		WithBaseURL(server.URL),
		WithPollInterval(10*time.Millisecond),
		WithDownloadDir(t.TempDir()),
	)
	path, err := client.GenerateVideoTransition(context.Background(), "AAAA", "BBBB", render.AspectSquare)
	if err != nil {
		t.Fatalf("GenerateVideoTransition: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded video: %v", err)
	}
	if string(raw) != "fake-video-bytes" {
		t.Fatalf("unexpected video contents %q", raw)
	}
}

func TestGenerateVideoTransitionCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":predictLongRunning") {
			json.NewEncoder(w).Encode(map[string]any{"name": "operations/slow"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "operations/slow", "done": false})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient("test-key", WithBaseURL(server.URL), WithPollInterval(10*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := client.GenerateVideoTransition(ctx, "AAAA", "BBBB", render.AspectWide)
		done <- err
	}()
	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !render.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled transition did not return")
	}
}

func TestOperationFailureSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ":predictLongRunning") {
			json.NewEncoder(w).Encode(map[string]any{"name": "operations/fail"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"name":  "operations/fail",
			"done":  true,
			"error": map[string]any{"code": 3, "message": "prompt rejected"},
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithPollInterval(10*time.Millisecond))
	_, err := client.GenerateVideoTransition(context.Background(), "AAAA", "BBBB", render.AspectWide)
	if err == nil || !strings.Contains(err.Error(), "prompt rejected") {
		t.Fatalf("expected operation failure message, got %v", err)
	}
}
