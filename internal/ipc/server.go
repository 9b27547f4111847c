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

	"log/slog"

	"ferry/internal/daemon"
	"ferry/internal/logging"
	"ferry/internal/store"
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
	if err := rpcServer.RegisterName("Ferry", srv); err != nil {
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
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
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"))
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
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}

	resp.Running = status.Running
	resp.Paused = status.Workflow.Paused
	resp.PauseReason = status.Workflow.PauseReason
	resp.StateDBPath = status.StateDBPath
	resp.LockPath = status.LockFilePath
	resp.DiskUsed = status.Workflow.DiskUsed
	resp.DiskReserved = status.Workflow.DiskReserved
	resp.DiskCeiling = status.Workflow.DiskCeiling
	resp.PID = os.Getpid()

	resp.ArchivePhases = make(map[string]int, len(status.Workflow.ArchivePhases))
	for phase, count := range status.Workflow.ArchivePhases {
		resp.ArchivePhases[string(phase)] = count
	}
	resp.ItemPhases = make(map[string]int, len(status.Workflow.ItemPhases))
	for phase, count := range status.Workflow.ItemPhases {
		resp.ItemPhases[string(phase)] = count
	}
	resp.Stages = make([]StageHealth, 0, len(status.Workflow.Stages))
	for _, health := range status.Workflow.Stages {
		resp.Stages = append(resp.Stages, StageHealth{
			Name:   health.Stage,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return nil
}

func (s *service) ListArchives(_ ArchiveListRequest, resp *ArchiveListResponse) error {
	archives, err := s.daemon.ListArchives(s.ctx)
	if err != nil {
		return err
	}
	resp.Archives = make([]ArchiveRow, 0, len(archives))
	for _, archive := range archives {
		resp.Archives = append(resp.Archives, archiveRow(archive))
	}
	return nil
}

func (s *service) FailedItems(_ FailedItemsRequest, resp *FailedItemsResponse) error {
	items, err := s.daemon.FailedItems(s.ctx)
	if err != nil {
		return err
	}
	resp.Items = make([]ItemRow, 0, len(items))
	for _, item := range items {
		resp.Items = append(resp.Items, itemRow(item))
	}
	return nil
}

func (s *service) Retry(req RetryRequest, resp *RetryResponse) error {
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed items re-admitted via IPC", logging.Int64("count", updated))
	return nil
}

func (s *service) Reacquire(req ReacquireRequest, resp *ReacquireResponse) error {
	if err := s.daemon.Reacquire(s.ctx, req.ArchiveID); err != nil {
		return err
	}
	s.log().Info("archive reset for re-download via IPC",
		logging.String("archive_id", req.ArchiveID))
	return nil
}

func (s *service) Pause(req PauseRequest, resp *PauseResponse) error {
	reason := req.Reason
	if reason == "" {
		reason = "paused by operator"
	}
	return s.daemon.Pause(s.ctx, reason)
}

func (s *service) Resume(_ ResumeRequest, resp *ResumeResponse) error {
	return s.daemon.Resume(s.ctx)
}

func (s *service) ResetStuck(_ ResetRequest, resp *ResetResponse) error {
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func archiveRow(archive *store.Archive) ArchiveRow {
	return ArchiveRow{
		ID:            archive.ID,
		DisplayName:   archive.DisplayName,
		Phase:         string(archive.Phase),
		ExpectedBytes: archive.ExpectedBytes,
		Attempts:      archive.AttemptCount,
		ErrorKind:     archive.ErrorKind,
		LastError:     archive.LastError,
		UpdatedAt:     archive.UpdatedAt,
	}
}

func itemRow(item *store.Item) ItemRow {
	return ItemRow{
		ID:         item.ID,
		ArchiveID:  item.ArchiveID,
		SourcePath: item.SourcePath,
		Phase:      string(item.Phase),
		Attempts:   item.AttemptCount,
		ErrorKind:  item.ErrorKind,
		LastError:  item.LastError,
		RemoteID:   item.RemoteID,
	}
}
