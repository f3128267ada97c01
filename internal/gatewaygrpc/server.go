package gatewaygrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// Emitter publishes one event back to the client that dispatched the run.
type Emitter func(schema.InboundMessage) error

// Executor runs dispatched commands. Execute blocks until the command ends
// or ctx is canceled; a stop request cancels ctx.
type Executor interface {
	Execute(ctx context.Context, msg schema.OutboundMessage, emit Emitter) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, msg schema.OutboundMessage, emit Emitter) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, msg schema.OutboundMessage, emit Emitter) error {
	return f(ctx, msg, emit)
}

var errChannelDone = errors.New("channel done")

const shutdownGrace = 2 * time.Second

// Server implements the executor side of the gateway channel.
type Server struct {
	cfg      Config
	executor Executor
	logger   pslog.Logger

	mu      sync.Mutex
	runs    map[schema.TabID]map[uint64]context.CancelFunc
	nextRun uint64
}

// NewServer constructs a gateway gRPC server around executor.
func NewServer(cfg Config, executor Executor) *Server {
	return &Server{cfg: cfg, executor: executor, runs: make(map[schema.TabID]map[uint64]context.CancelFunc)}
}

// ListenAndServe listens on cfg.Network/cfg.Address and serves until ctx is
// done. Stale unix sockets are replaced.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Address == "" {
		return errors.New("gateway address is required")
	}
	network := s.cfg.network()
	if network == "unix" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Address), 0o755); err != nil {
			return err
		}
		_ = os.Remove(s.cfg.Address)
	}
	listener, err := net.Listen(network, s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve serves the gateway channel on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	grpcServer := grpc.NewServer(grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}))
	grpcServer.RegisterService(&serviceDesc, s)
	s.logger.Info("gateway grpc listening", "network", listener.Addr().Network(), "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		s.cancelAll()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		// Open channels never finish on their own.
		select {
		case <-stopped:
		case <-time.After(shutdownGrace):
			grpcServer.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Channel serves one client channel. Executions started on the channel are
// canceled when it closes.
func (s *Server) Channel(stream grpc.ServerStream) error {
	log := s.log(stream.Context())
	log.Info("gateway channel opened")
	var sendMu sync.Mutex
	emit := func(msg schema.InboundMessage) error {
		st, err := EncodeInbound(msg)
		if err != nil {
			return err
		}
		sendMu.Lock()
		defer sendMu.Unlock()
		return stream.SendMsg(st)
	}

	g, gctx := errgroup.WithContext(stream.Context())
	g.Go(func() error {
		for {
			in := new(structpb.Struct)
			if err := stream.RecvMsg(in); err != nil {
				if errors.Is(err, io.EOF) {
					return errChannelDone
				}
				return err
			}
			msg, err := DecodeOutbound(in)
			if err != nil {
				log.Warn("gateway message rejected", "id", messageID(in), "err", err)
				continue
			}
			msgLog := log.With("id", messageID(in), "tab", msg.TabID)
			switch msg.Type {
			case schema.MessageStop:
				stopped := s.stopTab(msg.TabID)
				msgLog.Info("gateway stop", "canceled", stopped)
			default:
				runCtx, id := s.track(gctx, msg.TabID)
				msgLog.Info("gateway execute", "type", msg.Type, "stream", msg.OutputID, "workdir", msg.WorkingDirectory)
				g.Go(func() error {
					defer s.untrack(msg.TabID, id)
					s.execute(runCtx, msgLog, msg, emit)
					return nil
				})
			}
		}
	})
	err := g.Wait()
	if errors.Is(err, errChannelDone) {
		err = nil
	}
	if err != nil && stream.Context().Err() == nil {
		logGRPCError(log, "gateway channel failed", err)
		return err
	}
	log.Info("gateway channel closed")
	return nil
}

func (s *Server) execute(ctx context.Context, log pslog.Logger, msg schema.OutboundMessage, emit Emitter) {
	started := time.Now()
	err := s.executor.Execute(pslog.ContextWithLogger(ctx, log), msg, emit)
	if err != nil && ctx.Err() == nil {
		log.Warn("gateway execute failed", "err", err, "duration_ms", time.Since(started).Milliseconds())
		if sendErr := emit(schema.InboundMessage{Type: schema.EventError, TabID: msg.TabID, OutputID: msg.OutputID, Payload: err.Error()}); sendErr != nil {
			log.Warn("gateway error report failed", "err", sendErr)
		}
		return
	}
	log.Debug("gateway execute finished", "canceled", ctx.Err() != nil, "duration_ms", time.Since(started).Milliseconds())
}

func (s *Server) track(parent context.Context, tabID schema.TabID) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun++
	id := s.nextRun
	if s.runs[tabID] == nil {
		s.runs[tabID] = make(map[uint64]context.CancelFunc)
	}
	s.runs[tabID][id] = cancel
	return ctx, id
}

func (s *Server) untrack(tabID schema.TabID, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.runs[tabID][id]; ok {
		cancel()
		delete(s.runs[tabID], id)
	}
	if len(s.runs[tabID]) == 0 {
		delete(s.runs, tabID)
	}
}

// stopTab cancels every execution of a tab and reports how many there were.
func (s *Server) stopTab(tabID schema.TabID) int {
	s.mu.Lock()
	runs := s.runs[tabID]
	delete(s.runs, tabID)
	s.mu.Unlock()
	for _, cancel := range runs {
		cancel()
	}
	return len(runs)
}

// Running reports the number of executions in flight for a tab.
func (s *Server) Running(tabID schema.TabID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs[tabID])
}

func (s *Server) cancelAll() {
	s.mu.Lock()
	runs := s.runs
	s.runs = make(map[schema.TabID]map[uint64]context.CancelFunc)
	s.mu.Unlock()
	for _, tab := range runs {
		for _, cancel := range tab {
			cancel()
		}
	}
}

func (s *Server) log(ctx context.Context) pslog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}
