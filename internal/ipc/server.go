package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sort"
	"sync"
	"time"

	"log/slog"

	"hackercast/internal/daemon"
	"hackercast/internal/logging"
	"hackercast/internal/logs"
	"hackercast/internal/queue"
	"hackercast/internal/workflow"
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
	if err := rpcServer.RegisterName("Hackercast", srv); err != nil {
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
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun hackercast stop"))
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
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.DatabasePath = status.DatabasePath
	resp.ScheduleEnabled = status.ScheduleEnabled
	resp.ScheduleCron = status.ScheduleCron
	if status.NextRun != nil {
		resp.NextRun = status.NextRun.Format(time.RFC3339)
	}
	resp.BatchActive = status.BatchActive
	resp.LastError = status.Workflow.LastError
	if report := status.Workflow.LastBatch; report != nil {
		resp.LastBatch = convertBatchReport(report)
	}
	resp.QueueStats = make(map[string]int, len(status.Workflow.QueueStats))
	for stage, count := range status.Workflow.QueueStats {
		resp.QueueStats[string(stage)] = count
	}
	if len(status.Workflow.StageHealth) > 0 {
		names := make([]string, 0, len(status.Workflow.StageHealth))
		for name := range status.Workflow.StageHealth {
			names = append(names, name)
		}
		sort.Strings(names)
		resp.StageHealth = make([]StageHealth, 0, len(names))
		for _, name := range names {
			health := status.Workflow.StageHealth[name]
			resp.StageHealth = append(resp.StageHealth, StageHealth{
				Name:   name,
				Ready:  health.Ready,
				Detail: health.Detail,
			})
		}
	}
	for _, snapshot := range status.Workflow.Breakers {
		entry := BreakerStatus{
			Name:     snapshot.Name,
			State:    snapshot.State,
			Failures: snapshot.Failures,
		}
		if !snapshot.OpenedAt.IsZero() {
			entry.OpenedAt = snapshot.OpenedAt.Format(time.RFC3339)
		}
		resp.Breakers = append(resp.Breakers, entry)
	}
	return nil
}

func convertBatchReport(report *workflow.BatchReport) *BatchReport {
	dto := &BatchReport{
		BatchID:         report.BatchID,
		Outcome:         report.Outcome,
		ItemCount:       report.ItemCount,
		Published:       report.Published,
		DeadLettered:    report.DeadLettered,
		DurationSeconds: report.Duration.Seconds(),
	}
	if len(report.KindBreakdown) > 0 {
		dto.KindBreakdown = make(map[string]int, len(report.KindBreakdown))
		for kind, count := range report.KindBreakdown {
			dto.KindBreakdown[kind] = count
		}
	}
	return dto
}

func (s *service) RunBatch(req RunBatchRequest, resp *RunBatchResponse) error {
	s.log().Debug("batch run requested",
		logging.String(logging.FieldBatchID, req.BatchID),
		logging.Int("story_count", req.StoryCount))
	batchReq := workflow.BatchRequest{
		BatchID:    req.BatchID,
		StoryIDs:   req.StoryIDs,
		StoryCount: req.StoryCount,
		Deadline:   time.Duration(req.DeadlineMinutes) * time.Minute,
	}
	started, message := s.daemon.TriggerBatch(batchReq)
	resp.Started = started
	resp.Message = message
	if started {
		s.log().Info("batch run triggered via IPC",
			logging.String(logging.FieldEventType, "batch_triggered"),
			logging.String(logging.FieldBatchID, req.BatchID))
	}
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	stages := make([]queue.Stage, 0, len(req.Stages))
	for _, raw := range req.Stages {
		parsed, ok := queue.ParseStage(raw)
		if !ok {
			continue
		}
		stages = append(stages, parsed)
	}
	items, err := s.daemon.ListItems(s.ctx, req.Batch, stages)
	if err != nil {
		return err
	}
	resp.Items = make([]Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Items = append(resp.Items, FromQueueItem(item))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid queue item id %d", req.ID)
	}
	item, err := s.daemon.DescribeItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %d not found", req.ID)
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) QueueRemove(req QueueRemoveRequest, resp *QueueRemoveResponse) error {
	s.log().Debug("queue remove requested", logging.Int("ids", len(req.IDs)))
	removed, err := s.daemon.RemoveItems(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClear(_ QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested")
	removed, err := s.daemon.ClearQueue(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueClearTerminal(_ QueueClearTerminalRequest, resp *QueueClearTerminalResponse) error {
	s.log().Debug("queue clear terminal requested")
	removed, err := s.daemon.ClearTerminal(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Published = health.Published
	resp.DeadLettered = health.DeadLettered
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TablesPresent = append(resp.TablesPresent, health.TablesPresent...)
	resp.MissingTables = append(resp.MissingTables, health.MissingTables...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalItems = health.TotalItems
	resp.Error = health.Error
	return err
}

func (s *service) BatchList(req BatchListRequest, resp *BatchListResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	batches, err := s.daemon.RecentBatches(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Batches = make([]BatchSummary, 0, len(batches))
	for _, batch := range batches {
		if batch == nil {
			continue
		}
		summary := BatchSummary{
			ID:           batch.ID,
			CreatedAt:    batch.CreatedAt.Format(time.RFC3339),
			ItemCount:    batch.ItemCount,
			Succeeded:    batch.Succeeded,
			DeadLettered: batch.DeadLettered,
			Outcome:      batch.Outcome,
		}
		if batch.Deadline != nil {
			summary.Deadline = batch.Deadline.Format(time.RFC3339)
		}
		if batch.CompletedAt != nil {
			summary.CompletedAt = batch.CompletedAt.Format(time.RFC3339)
		}
		resp.Batches = append(resp.Batches, summary)
	}
	return nil
}

func (s *service) DeadLetterList(req DeadLetterListRequest, resp *DeadLetterListResponse) error {
	entries, err := s.daemon.DeadLetters(s.ctx, req.Batch)
	if err != nil {
		return err
	}
	resp.Entries = make([]DeadLetterEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		resp.Entries = append(resp.Entries, DeadLetterEntry{
			ID:           entry.ID,
			BatchID:      entry.BatchID,
			ItemID:       entry.ItemID,
			Stage:        string(entry.Stage),
			ErrorKind:    entry.ErrorKind,
			Message:      entry.Message,
			AttemptCount: entry.AttemptCount,
			CreatedAt:    entry.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil
}

func (s *service) Replay(req ReplayRequest, resp *ReplayResponse) error {
	if req.Batch == "" {
		return errors.New("replay requires a batch id")
	}
	if req.ItemID <= 0 {
		return fmt.Errorf("invalid item id %d", req.ItemID)
	}
	item, err := s.daemon.ReplayItem(s.ctx, req.Batch, req.ItemID)
	if err != nil {
		return err
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) FeedWrite(_ FeedWriteRequest, resp *FeedWriteResponse) error {
	s.log().Debug("feed write requested")
	path, episodes, err := s.daemon.WriteFeed(s.ctx)
	if err != nil {
		return err
	}
	resp.Path = path
	resp.Episodes = episodes
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
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
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		// A canceled follow just means no new lines arrived in time.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
