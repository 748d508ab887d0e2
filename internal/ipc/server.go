package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"gridflow/internal/api"
	"gridflow/internal/daemon"
	"gridflow/internal/logging"
	"gridflow/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Gridflow", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status()
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC")
	return nil
}

func (s *service) ProjectNew(req ProjectNewRequest, resp *ProjectNewResponse) error {
	s.log().Debug("project replacement requested", logging.Int("frame_count", len(req.Frames)))
	if err := s.daemon.NewProject(req.Frames); err != nil {
		return err
	}
	resp.FrameCount = len(req.Frames)
	return nil
}

func (s *service) SkipUpscale(_ SkipUpscaleRequest, resp *SkipUpscaleResponse) error {
	if err := s.daemon.SkipUpscaling(); err != nil {
		return err
	}
	resp.Skipped = true
	return nil
}

func (s *service) StartVideos(_ StartVideosRequest, resp *StartVideosResponse) error {
	if err := s.daemon.StartVideos(); err != nil {
		return err
	}
	resp.Started = true
	return nil
}

func (s *service) TransitionCancel(req TransitionCancelRequest, resp *TransitionCancelResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid transition id %d", req.ID)
	}
	cancelled, err := s.daemon.CancelTransition(req.ID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	return nil
}

func (s *service) TransitionRetry(req TransitionRetryRequest, resp *TransitionRetryResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid transition id %d", req.ID)
	}
	if err := s.daemon.RetryTransition(req.ID); err != nil {
		return err
	}
	resp.Started = true
	return nil
}

func (s *service) PhaseRetry(_ PhaseRetryRequest, resp *PhaseRetryResponse) error {
	if err := s.daemon.RetryPhase(); err != nil {
		return err
	}
	resp.Started = true
	return nil
}

func (s *service) BatchEnqueue(req BatchEnqueueRequest, resp *BatchEnqueueResponse) error {
	added, err := s.daemon.EnqueueBatch(req.Refs)
	if err != nil {
		return err
	}
	resp.Added = added
	return nil
}

func (s *service) BatchRun(req BatchRunRequest, resp *BatchRunResponse) error {
	s.log().Debug("batch run requested")
	if err := s.daemon.RunBatch(req.Prompt); err != nil {
		return err
	}
	resp.Started = true
	return nil
}

func (s *service) BatchStop(_ BatchStopRequest, resp *BatchStopResponse) error {
	s.daemon.StopBatch()
	resp.Stopping = true
	return nil
}

func (s *service) ChainRun(req ChainRunRequest, resp *ChainRunResponse) error {
	s.log().Debug("chain run requested", logging.Int("steps", req.Steps))
	if err := s.daemon.RunChain(req.Anchor, req.Prompt, req.Steps); err != nil {
		return err
	}
	resp.Started = true
	return nil
}

func (s *service) ChainStop(_ ChainStopRequest, resp *ChainStopResponse) error {
	ref, err := s.daemon.StopChain()
	if err != nil {
		return err
	}
	resp.StitchedRef = ref
	return nil
}

func (s *service) ChainReset(_ ChainResetRequest, resp *ChainResetResponse) error {
	if err := s.daemon.ResetChain(); err != nil {
		return err
	}
	resp.Reset = true
	return nil
}

func (s *service) GalleryList(req GalleryListRequest, resp *GalleryListResponse) error {
	entries, err := s.daemon.GalleryList(s.ctx, req.Kind, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = api.FromGalleryEntries(entries)
	return nil
}

func (s *service) GalleryDelete(req GalleryDeleteRequest, resp *GalleryDeleteResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid gallery entry id %d", req.ID)
	}
	if err := s.daemon.GalleryDelete(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
