package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Gridflow.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Gridflow.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectNew replaces the current project with the given frames.
func (c *Client) ProjectNew(frames []string) (*ProjectNewResponse, error) {
	var resp ProjectNewResponse
	if err := c.client.Call("Gridflow.ProjectNew", ProjectNewRequest{Frames: frames}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SkipUpscale passes remaining frames through unmodified.
func (c *Client) SkipUpscale() (*SkipUpscaleResponse, error) {
	var resp SkipUpscaleResponse
	if err := c.client.Call("Gridflow.SkipUpscale", SkipUpscaleRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartVideos launches transition generation.
func (c *Client) StartVideos() (*StartVideosResponse, error) {
	var resp StartVideosResponse
	if err := c.client.Call("Gridflow.StartVideos", StartVideosRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransitionCancel aborts one in-flight transition.
func (c *Client) TransitionCancel(id int64) (*TransitionCancelResponse, error) {
	var resp TransitionCancelResponse
	if err := c.client.Call("Gridflow.TransitionCancel", TransitionCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TransitionRetry restarts one settled transition.
func (c *Client) TransitionRetry(id int64) (*TransitionRetryResponse, error) {
	var resp TransitionRetryResponse
	if err := c.client.Call("Gridflow.TransitionRetry", TransitionRetryRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PhaseRetry re-runs the active phase after a failure.
func (c *Client) PhaseRetry() (*PhaseRetryResponse, error) {
	var resp PhaseRetryResponse
	if err := c.client.Call("Gridflow.PhaseRetry", PhaseRetryRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchEnqueue appends items to the edit queue.
func (c *Client) BatchEnqueue(refs []string) (*BatchEnqueueResponse, error) {
	var resp BatchEnqueueResponse
	if err := c.client.Call("Gridflow.BatchEnqueue", BatchEnqueueRequest{Refs: refs}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchRun starts a sequential edit pass.
func (c *Client) BatchRun(prompt string) (*BatchRunResponse, error) {
	var resp BatchRunResponse
	if err := c.client.Call("Gridflow.BatchRun", BatchRunRequest{Prompt: prompt}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchStop interrupts the batch run between items.
func (c *Client) BatchStop() (*BatchStopResponse, error) {
	var resp BatchStopResponse
	if err := c.client.Call("Gridflow.BatchStop", BatchStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChainRun starts an iterative chain.
func (c *Client) ChainRun(anchor, prompt string, steps int) (*ChainRunResponse, error) {
	var resp ChainRunResponse
	req := ChainRunRequest{Anchor: anchor, Prompt: prompt, Steps: steps}
	if err := c.client.Call("Gridflow.ChainRun", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChainStop aborts remaining steps and stitches what exists.
func (c *Client) ChainStop() (*ChainStopResponse, error) {
	var resp ChainStopResponse
	if err := c.client.Call("Gridflow.ChainStop", ChainStopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChainReset discards accumulated chain state.
func (c *Client) ChainReset() (*ChainResetResponse, error) {
	var resp ChainResetResponse
	if err := c.client.Call("Gridflow.ChainReset", ChainResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GalleryList returns persisted artifacts, newest first.
func (c *Client) GalleryList(kind string, limit int) (*GalleryListResponse, error) {
	var resp GalleryListResponse
	req := GalleryListRequest{Kind: kind, Limit: limit}
	if err := c.client.Call("Gridflow.GalleryList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GalleryDelete removes one artifact record.
func (c *Client) GalleryDelete(id int64) (*GalleryDeleteResponse, error) {
	var resp GalleryDeleteResponse
	if err := c.client.Call("Gridflow.GalleryDelete", GalleryDeleteRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Gridflow.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
