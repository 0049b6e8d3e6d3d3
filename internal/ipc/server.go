package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"harvester/internal/api"
	"harvester/internal/daemon"
	"harvester/internal/logging"
)

// ServiceName is the JSON-RPC service name.
const ServiceName = "Harvester"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server
	svc       *service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. A stale
// socket file is removed first.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		svc:       srv,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// OnShutdown registers the callback run by the Shutdown RPC.
func (s *Server) OnShutdown(fn func()) {
	s.svc.mu.Lock()
	s.svc.shutdown = fn
	s.svc.mu.Unlock()
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
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
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

// Close stops the server and removes the socket file. Open client
// connections are served until the client hangs up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context

	mu       sync.Mutex
	shutdown func()
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	ack, err := s.daemon.StartCycle(s.ctx)
	if err != nil {
		return err
	}
	resp.Ack = ack
	s.logger.Info("cycle start requested via IPC",
		logging.String(logging.FieldEventType, "ipc_start"),
		logging.Bool("noop", ack.Noop),
	)
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	resp.Ack = s.daemon.StopCycle()
	s.logger.Info("cycle stop requested via IPC",
		logging.String(logging.FieldEventType, "ipc_stop"),
		logging.Bool("noop", resp.Ack.Noop),
	)
	return nil
}

func (s *service) ResetFailed(_ ResetFailedRequest, resp *ResetFailedResponse) error {
	ack, err := s.daemon.ResetFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Ack = ack
	return nil
}

func (s *service) Status(req StatusRequest, resp *StatusResponse) error {
	snap, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	if !req.IncludeTasks {
		snap.Tasks = []api.Task{}
		snap.DownloadQueued = nil
		snap.UploadQueued = nil
	}
	info := s.daemon.Info()
	resp.Status = snap
	resp.PID = info.PID
	resp.TaskDBPath = info.TaskDBPath
	resp.DedupDBPath = info.DedupDBPath
	resp.LockPath = info.LockPath
	resp.LogPath = info.LogPath
	resp.APIBind = info.APIBind
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	stages, err := api.ParseStages(req.Stages)
	if err != nil {
		return err
	}
	tasks, err := s.daemon.ListTasks(s.ctx, stages)
	if err != nil {
		return err
	}
	resp.Tasks = tasks
	return nil
}

func (s *service) TaskShow(req TaskShowRequest, resp *TaskShowResponse) error {
	task, err := s.daemon.Task(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %q not found", req.ID)
	}
	resp.Task = *task
	return nil
}

func (s *service) ClearFinished(_ ClearFinishedRequest, resp *ClearFinishedResponse) error {
	removed, err := s.daemon.ClearFinished(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) DedupList(_ DedupListRequest, resp *DedupListResponse) error {
	entries, err := s.daemon.DedupList(s.ctx)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) DedupRecord(req DedupRecordRequest, resp *DedupRecordResponse) error {
	if err := s.daemon.DedupRecord(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Recorded = true
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalTasks = health.TotalTasks
	resp.Error = health.Error
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.mu.Lock()
	fn := s.shutdown
	s.mu.Unlock()
	if fn == nil {
		return errors.New("shutdown not supported by this daemon")
	}
	s.logger.Info("daemon shutdown requested via IPC", logging.String(logging.FieldEventType, "ipc_shutdown"))
	resp.Accepted = true
	go fn()
	return nil
}
