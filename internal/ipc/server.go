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

	"imxup/internal/daemon"
	"imxup/internal/logging"
	"imxup/internal/logs"
	"imxup/internal/queue"
)

// maxLogTailWait caps how long a single LogTail call may block in follow mode
// so a client cannot pin a server goroutine indefinitely.
const maxLogTailWait = 30 * time.Second

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

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Imxup", srv); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before the next start"))
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
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status(s.ctx)
	resp.Running = st.Running
	resp.PID = st.PID
	resp.QueueDBPath = st.QueueDBPath
	resp.LockPath = st.LockFilePath
	resp.QueueStats = map[string]int{
		"total":      st.Stats.Total,
		"queued":     st.Stats.Queued,
		"uploading":  st.Stats.Uploading,
		"paused":     st.Stats.Paused,
		"completed":  st.Stats.Completed,
		"failed":     st.Stats.Failed,
		"incomplete": st.Stats.Incomplete,
	}
	resp.Workers = make([]WorkerStatus, 0, len(st.Workers))
	for _, entry := range st.Workers {
		resp.Workers = append(resp.Workers, FromWorkerEntry(entry))
	}
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	gallery, err := s.daemon.Enqueue(s.ctx, req.Name, req.SourcePath, req.ThumbSize, req.ContentType)
	if err != nil {
		return err
	}
	resp.Item = FromGallery(gallery)
	s.log().Info("gallery enqueued via IPC",
		logging.String(logging.FieldEventType, "gallery_enqueue"),
		logging.Int64(logging.FieldGalleryID, gallery.ID))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	states := make([]queue.State, 0, len(req.States))
	for _, raw := range req.States {
		parsed, ok := queue.ParseState(raw)
		if !ok {
			continue
		}
		states = append(states, parsed)
	}
	galleries, err := s.daemon.ListQueue(s.ctx, states)
	if err != nil {
		return err
	}
	resp.Items = make([]GalleryItem, 0, len(galleries))
	for _, gallery := range galleries {
		if gallery == nil {
			continue
		}
		resp.Items = append(resp.Items, FromGallery(gallery))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid gallery id %d", req.ID)
	}
	gallery, err := s.daemon.GetGallery(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if gallery == nil {
		return fmt.Errorf("gallery %d not found", req.ID)
	}
	resp.Item = FromGallery(gallery)
	return nil
}

func (s *service) Pause(req PauseRequest, resp *PauseResponse) error {
	if err := s.daemon.Pause(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Paused = true
	s.log().Info("gallery paused via IPC",
		logging.String(logging.FieldEventType, "gallery_pause"),
		logging.Int64(logging.FieldGalleryID, req.ID))
	return nil
}

func (s *service) Resume(req ResumeRequest, resp *ResumeResponse) error {
	if err := s.daemon.Resume(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Resumed = true
	s.log().Info("gallery resumed via IPC",
		logging.String(logging.FieldEventType, "gallery_resume"),
		logging.Int64(logging.FieldGalleryID, req.ID))
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue remove requires at least one id")
	}
	removed, err := s.daemon.Remove(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue entries removed",
		logging.String(logging.FieldEventType, "queue_remove"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed galleries cleared",
		logging.String(logging.FieldEventType, "queue_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClearFailed(_ QueueClearFailedRequest, resp *QueueClearFailedResponse) error {
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("failed galleries cleared",
		logging.String(logging.FieldEventType, "queue_clear_failed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueReset(_ QueueResetRequest, resp *QueueResetResponse) error {
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("stuck galleries reset",
		logging.String(logging.FieldEventType, "queue_reset_stuck"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) ReEnqueue(req ReEnqueueRequest, resp *ReEnqueueResponse) error {
	gallery, err := s.daemon.ReEnqueue(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Item = FromGallery(gallery)
	s.log().Info("incomplete gallery re-enqueued",
		logging.String(logging.FieldEventType, "gallery_reenqueue"),
		logging.Int64(logging.FieldGalleryID, req.ID),
		logging.Int64("new_gallery_id", gallery.ID))
	return nil
}

func (s *service) Append(req AppendRequest, resp *AppendResponse) error {
	gallery, err := s.daemon.Append(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Item = FromGallery(gallery)
	s.log().Info("gallery additions enqueued",
		logging.String(logging.FieldEventType, "gallery_append"),
		logging.Int64(logging.FieldGalleryID, req.ID),
		logging.Int64("new_gallery_id", gallery.ID))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > maxLogTailWait {
		wait = maxLogTailWait
	}
	result, err := logs.Tail(s.ctx, s.daemon.LogPath(), logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) Rename(req RenameRequest, resp *RenameResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid gallery id %d", req.ID)
	}
	resp.Accepted = s.daemon.RequestRename(req.ID, req.NewName)
	s.log().Info("rename requested via IPC",
		logging.String(logging.FieldEventType, "gallery_rename"),
		logging.Int64(logging.FieldGalleryID, req.ID),
		logging.Bool("accepted", resp.Accepted))
	return nil
}
