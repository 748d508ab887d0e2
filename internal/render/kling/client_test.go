package kling

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

	"github.com/golang-jwt/jwt/v5"

	"gridflow/internal/render"
)

func TestMintTokenCarriesIssuer(t *testing.T) {
	client := NewClient("access", "secret")
	signed, err := client.mintToken()
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}
	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte("secret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "access" {
		t.Fatalf("issuer claim = %v", claims["iss"])
	}
	exp, _ := claims.GetExpirationTime()
	if exp == nil || time.Until(exp.Time) > tokenTTL {
		t.Fatalf("expiry out of range: %v", exp)
	}
}

func TestGenerateVideoTransitionPollsUntilSucceed(t *testing.T) {
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/videos/image2video":
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				t.Errorf("missing bearer token")
			}
			var req createTaskRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Image != "QUJD" {
				t.Errorf("data url prefix not stripped: %q", req.Image)
			}
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"task_id": "task-7"}})
		case r.Method == http.MethodGet && r.URL.Path == "/videos/image2video/task-7":
			polls++
			status := "processing"
			body := map[string]any{"task_id": "task-7", "task_status": status}
			if polls >= 2 {
				body["task_status"] = taskStatusSucceed
				body["task_result"] = map[string]any{
					"videos": []map[string]any{{"url": server.URL + "/files/clip.mp4"}},
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": body})
		case r.URL.Path == "/files/clip.mp4":
			w.Write([]byte("clip-bytes"))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient("access", "secret",
		WithBaseURL(server.URL),
		WithPolling(10*time.Millisecond, time.Second),
		WithDownloadDir(t.TempDir()),
	)
	path, err := client.GenerateVideoTransition(context.Background(), "data:image/png;base64,QUJD", "ignored", render.AspectWide)
	if err != nil {
		t.Fatalf("GenerateVideoTransition: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded clip: %v", err)
	}
	if string(raw) != "clip-bytes" {
		t.Fatalf("unexpected clip contents %q", raw)
	}
}

func TestPollBlipToleratedThenSucceeds(t *testing.T) {
	polls := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"task_id": "task-8"}})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/videos/"):
			polls++
			if polls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{
				"task_id":     "task-8",
				"task_status": taskStatusSucceed,
				"task_result": map[string]any{"videos": []map[string]any{{"url": server.URL + "/clip"}}},
			}})
		default:
			w.Write([]byte("clip"))
		}
	}))
	defer server.Close()

	client := NewClient("access", "secret",
		WithBaseURL(server.URL),
		WithPolling(10*time.Millisecond, time.Second),
		WithDownloadDir(t.TempDir()),
	)
	if _, err := client.GenerateVideoTransition(context.Background(), "AAAA", "BBBB", render.AspectWide); err != nil {
		t.Fatalf("transient poll failure should be tolerated: %v", err)
	}
	if polls < 2 {
		t.Fatalf("expected at least two polls, got %d", polls)
	}
}

func TestFailedTaskIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"task_id": "task-9"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{
			"task_id":         "task-9",
			"task_status":     taskStatusFailed,
			"task_status_msg": "content policy violation",
		}})
	}))
	defer server.Close()

	client := NewClient("access", "secret",
		WithBaseURL(server.URL),
		WithPolling(10*time.Millisecond, time.Second),
	)
	_, err := client.GenerateVideoTransition(context.Background(), "AAAA", "BBBB", render.AspectWide)
	if err == nil || !strings.Contains(err.Error(), "content policy violation") {
		t.Fatalf("expected terminal task failure, got %v", err)
	}
}

func TestPollDeadlineReturnsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"task_id": "task-10"}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{
			"task_id":     "task-10",
			"task_status": "processing",
		}})
	}))
	defer server.Close()

	client := NewClient("access", "secret",
		WithBaseURL(server.URL),
		WithPolling(10*time.Millisecond, 50*time.Millisecond),
	)
	_, err := client.GenerateVideoTransition(context.Background(), "AAAA", "BBBB", render.AspectWide)
	if !errors.Is(err, render.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestUpscaleUnsupported(t *testing.T) {
	client := NewClient("access", "secret")
	_, err := client.UpscaleImage(context.Background(), "AAAA", 2, render.UpscaleHints{})
	if !errors.Is(err, render.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
