package attackdeck

import (
	"context"
	"errors"
	"io"
	"sync"

	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/core"
	"pkt.systems/attackdeck/httpapi"
	"pkt.systems/attackdeck/internal/command"
	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/attackdeck/internal/vault"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// Server composes the HTTP API and an optional in-process executor gateway.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
	Gateway gatewaygrpc.Config
	Vault   VaultConfig
}

// VaultConfig locates the saved configuration vault. An empty KeyStorePath
// disables saved configurations.
type VaultConfig struct {
	KeyStorePath string
	Dir          string
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	ServiceDeps core.ServiceDeps
	// Executor backs the in-process gateway server enabled by WithExecutor.
	Executor gatewaygrpc.Executor
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP     bool
	enableExecutor bool
}

// WithHTTP enables the HTTP API.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithExecutor serves deps.Executor on the gateway address.
func WithExecutor() ServerOption {
	return func(o *serverOptions) { o.enableExecutor = true }
}

// New constructs a composable attackdeck server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableExecutor {
		return nil, errors.New("no services enabled")
	}
	if options.enableExecutor && deps.Executor == nil {
		return nil, errors.New("executor dependency is required")
	}

	srv := &compositeServer{cfg: cfg, options: options, gateway: deps.ServiceDeps.Gateway}
	if options.enableExecutor {
		srv.executor = gatewaygrpc.NewServer(cfg.Gateway, deps.Executor)
	}
	if !options.enableHTTP {
		return srv, nil
	}
	if deps.ServiceDeps.Gateway == nil {
		return nil, errors.New("gateway dependency is required")
	}

	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	srv.cfg = cfg

	serviceDeps := deps.ServiceDeps
	if serviceDeps.Catalog == nil {
		serviceDeps.Catalog, err = catalog.Default()
		if err != nil {
			return nil, err
		}
	}
	hub := httpapi.NewHub(cfg.HTTP.HubHistory)
	if serviceDeps.EventSink == nil {
		serviceDeps.EventSink = hub
	} else {
		serviceDeps.EventSink = eventFanout{sinks: []core.EventSink{serviceDeps.EventSink, hub}}
	}

	service, err := core.NewService(cfg.Service, serviceDeps)
	if err != nil {
		return nil, err
	}
	srv.service = service

	var configs httpapi.ConfigStore
	handlerCfg := command.HandlerConfig{
		Catalog:             serviceDeps.Catalog,
		DisableAuditLogging: cfg.Service.DisableAuditLogging,
	}
	if cfg.Vault.KeyStorePath != "" {
		store, err := vault.NewStoreWithLogger(cfg.Vault.KeyStorePath, cfg.Vault.Dir, serviceDeps.Logger)
		if err != nil {
			service.Close()
			return nil, err
		}
		configs = store
		handlerCfg.Configs = store
	}
	cmdHandler := command.NewHandler(service, handlerCfg)
	srv.httpSrv = httpapi.NewServer(cfg.HTTP, service, serviceDeps.Catalog, cmdHandler, configs, hub)
	return srv, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	service  core.Service
	gateway  core.Gateway
	httpSrv  *httpapi.Server
	executor *gatewaygrpc.Server
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"executor", s.options.enableExecutor,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_path", s.cfg.HTTP.BasePath,
		"gateway_network", s.cfg.Gateway.Network,
		"gateway_address", s.cfg.Gateway.Address,
	)
	if s.executor != nil {
		go func() {
			if err := s.executor.ListenAndServe(s.ctx); err != nil {
				log.Error("executor gateway failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.service != nil {
		s.service.Close()
	}
	if closer, ok := s.gateway.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("server gateway close failed", "err", err)
		} else {
			log.Info("server gateway close ok")
		}
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
