package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gridflow/internal/render"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// engineStub simulates the node-graph engine end to end: upload, queue,
// websocket event stream, history, and artifact view.
func engineStub(t *testing.T, promptID string, finish func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/image", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse upload form: %v", err)
		}
		if r.FormValue("overwrite") != "true" {
			t.Errorf("overwrite flag missing")
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "stored.png", "subfolder": "", "type": "input"})
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt   Graph  `json:"prompt"`
			ClientID string `json:"client_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode queue request: %v", err)
		}
		if req.ClientID == "" {
			t.Errorf("client id missing")
		}
		json.NewEncoder(w).Encode(map[string]any{"prompt_id": promptID})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		finish(conn)
	})
	mux.HandleFunc("/history/"+promptID, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			promptID: map[string]any{
				"outputs": map[string]any{
					"15": map[string]any{
						"images": []map[string]any{{"filename": "out.png", "subfolder": "", "type": "output"}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filename") != "out.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("artifact-bytes"))
	})
	mux.HandleFunc("/free", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func announceDone(promptID string) func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type": "executing",
			"data": map[string]any{"node": "10", "prompt_id": promptID},
		})
		// Binary previews are interleaved with events.
		conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2, 3})
		conn.WriteJSON(map[string]any{
			"type": "executing",
			"data": map[string]any{"node": nil, "prompt_id": promptID},
		})
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSubmitAwaitFetchRoundTrip(t *testing.T) {
	server := engineStub(t, "job-1", announceDone("job-1"))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	name, err := client.UploadImage(ctx, []byte("png-bytes"))
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if name != "stored.png" {
		t.Fatalf("unexpected stored name %q", name)
	}

	wf := UpscaleWorkflow(name)
	if err := wf.Validate(RolePrimaryOutput); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	job, err := client.Submit(ctx, wf.Graph)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.PromptID != "job-1" || job.ClientID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
	if err := client.AwaitCompletion(ctx, job); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	raw, err := client.FetchArtifact(ctx, job, wf.NodeFor(RolePrimaryOutput), ArtifactImage)
	if err != nil {
		t.Fatalf("FetchArtifact: %v", err)
	}
	if string(raw) != "artifact-bytes" {
		t.Fatalf("unexpected artifact %q", raw)
	}
}

func TestAwaitIgnoresOtherJobs(t *testing.T) {
	finish := func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type": "executing",
			"data": map[string]any{"node": nil, "prompt_id": "someone-else"},
		})
		conn.WriteJSON(map[string]any{
			"type": "executing",
			"data": map[string]any{"node": nil, "prompt_id": "job-2"},
		})
		time.Sleep(50 * time.Millisecond)
	}
	server := engineStub(t, "job-2", finish)
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.AwaitCompletion(context.Background(), Job{PromptID: "job-2", ClientID: "c"}); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	finish := func(conn *websocket.Conn) {
		// Never announce completion; hold the connection open.
		time.Sleep(500 * time.Millisecond)
	}
	server := engineStub(t, "job-3", finish)
	defer server.Close()

	client := NewClient(server.URL, WithWaitTimeout(50*time.Millisecond))
	err := client.AwaitCompletion(context.Background(), Job{PromptID: "job-3", ClientID: "c"})
	if !errors.Is(err, render.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestAwaitCancelled(t *testing.T) {
	finish := func(conn *websocket.Conn) {
		time.Sleep(500 * time.Millisecond)
	}
	server := engineStub(t, "job-4", finish)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL)
	done := make(chan error, 1)
	go func() {
		done <- client.AwaitCompletion(ctx, Job{PromptID: "job-4", ClientID: "c"})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !render.IsCancelled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled wait did not return")
	}
}

func TestSubmitRejectionIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid prompt: missing node input"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Submit(context.Background(), UpscaleWorkflow("x.png").Graph)
	if !errors.Is(err, render.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing node input") {
		t.Fatalf("rejection message not unwrapped: %v", err)
	}
}

func TestFetchArtifactMissingNode(t *testing.T) {
	server := engineStub(t, "job-5", announceDone("job-5"))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.FetchArtifact(context.Background(), Job{PromptID: "job-5"}, "99", ArtifactImage)
	if !errors.Is(err, render.ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found, got %v", err)
	}
}

func TestWorkflowRoleValidation(t *testing.T) {
	wf := ImageToVideoWorkflow("in.png", "a slow zoom", "16:9")
	if err := wf.Validate(RolePrimaryOutput, RoleLastFrame); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	broken := wf
	broken.Roles = map[Role]string{RolePrimaryOutput: "4", RoleLastFrame: "404"}
	if err := broken.Validate(RolePrimaryOutput, RoleLastFrame); err == nil {
		t.Fatal("dangling role node should fail validation")
	}

	missing := wf
	missing.Roles = map[Role]string{RolePrimaryOutput: "4"}
	if err := missing.Validate(RolePrimaryOutput, RoleLastFrame); err == nil {
		t.Fatal("undeclared role should fail validation")
	}
}
